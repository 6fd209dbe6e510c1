package sql

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/syssam/vlquery/dialect"
)

// SlowStatement describes a statement that ran past the threshold of a
// SlowDriver.
type SlowStatement struct {
	Op       string // "query" or "exec"
	Query    string
	Args     []any
	Duration time.Duration
	Err      error
}

// SlowDriver wraps a Driver and reports statements slower than a
// threshold. Statements queued by a pool during an outage include their
// waiting time.
type SlowDriver struct {
	dialect.Driver
	threshold time.Duration
	report    func(context.Context, SlowStatement)
}

// SlowOption configures the SlowDriver.
type SlowOption func(*SlowDriver)

// WithSlowHook sets the function called for every slow statement.
func WithSlowHook(fn func(context.Context, SlowStatement)) SlowOption {
	return func(d *SlowDriver) {
		d.report = fn
	}
}

// WithSlowLog logs slow statements at warn level to the given logger.
func WithSlowLog(logger *slog.Logger) SlowOption {
	return WithSlowHook(func(ctx context.Context, s SlowStatement) {
		attrs := []any{"duration", s.Duration, "query", s.Query, "args", s.Args}
		if s.Err != nil {
			attrs = append(attrs, "error", s.Err)
		}
		logger.WarnContext(ctx, "slow "+s.Op, attrs...)
	})
}

// NewSlowDriver wraps drv. A threshold of zero or less reports every
// statement. Without options, slow statements go to the default logger.
//
//	drv := sql.NewSlowDriver(mgr, 200*time.Millisecond, sql.WithSlowLog(logger))
func NewSlowDriver(drv dialect.Driver, threshold time.Duration, opts ...SlowOption) *SlowDriver {
	d := &SlowDriver{Driver: drv, threshold: threshold}
	WithSlowLog(slog.Default())(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Query executes a query and reports it if slow.
func (d *SlowDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.observe(ctx, "query", query, args, time.Since(start), err)
	return err
}

// Exec executes a statement and reports it if slow.
func (d *SlowDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.observe(ctx, "exec", query, args, time.Since(start), err)
	return err
}

func (d *SlowDriver) observe(ctx context.Context, op, query string, args any, took time.Duration, err error) {
	if took < d.threshold {
		return
	}
	argv, _ := args.([]any)
	d.report(ctx, SlowStatement{Op: op, Query: query, Args: argv, Duration: took, Err: err})
}

// DebugDriver wraps a Driver with statement logging.
type DebugDriver struct {
	dialect.Driver
	log    func(context.Context, ...any)
	inline bool
}

// DebugOption configures the DebugDriver.
type DebugOption func(*DebugDriver)

// DebugWithLog sets a custom log function.
func DebugWithLog(logFunc func(context.Context, ...any)) DebugOption {
	return func(d *DebugDriver) {
		d.log = logFunc
	}
}

// DebugWithLogger logs statements at debug level to the given logger.
func DebugWithLogger(logger *slog.Logger) DebugOption {
	return DebugWithLog(func(ctx context.Context, v ...any) {
		logger.DebugContext(ctx, fmt.Sprint(v...))
	})
}

// DebugWithInline logs statements with their arguments written in place of
// the placeholders.
func DebugWithInline() DebugOption {
	return func(d *DebugDriver) {
		d.inline = true
	}
}

// NewDebugDriver wraps a Driver with statement logging.
//
//	drv := sql.NewDebugDriver(mgr, sql.DebugWithLog(func(ctx context.Context, v ...any) {
//	    log.Println(v...)
//	}))
func NewDebugDriver(drv dialect.Driver, opts ...DebugOption) *DebugDriver {
	d := &DebugDriver{
		Driver: drv,
		log: func(_ context.Context, v ...any) {
			slog.Info(fmt.Sprint(v...))
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Query executes a query and logs it.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.log(ctx, d.format("query", query, args))
	return d.Driver.Query(ctx, query, args, v)
}

// Exec executes a statement and logs it.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.log(ctx, d.format("exec", query, args))
	return d.Driver.Exec(ctx, query, args, v)
}

func (d *DebugDriver) format(op, query string, args any) string {
	if argv, ok := args.([]any); ok && d.inline {
		return fmt.Sprintf("%s: %s", op, Inline(query, argv))
	}
	return fmt.Sprintf("%s: %s args: %v", op, query, args)
}

var (
	_ dialect.Driver = (*SlowDriver)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
)
