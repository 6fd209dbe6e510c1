package vlquery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/syssam/vlquery/codec"
	"github.com/syssam/vlquery/config"
	"github.com/syssam/vlquery/contrib/dataloader"
	"github.com/syssam/vlquery/dialect"
	vsql "github.com/syssam/vlquery/dialect/sql"
	"github.com/syssam/vlquery/dialect/sql/pool"
	sqlschema "github.com/syssam/vlquery/dialect/sql/schema"
	"github.com/syssam/vlquery/graph"
	"github.com/syssam/vlquery/ir"
	"github.com/syssam/vlquery/privacy"
	"github.com/syssam/vlquery/schema"
)

// VerboseEnv enables verbose statement logging when set to a true value.
const VerboseEnv = "VLQUERY_VERBOSE"

// Client executes queries and writes against a schema registry.
type Client struct {
	driver   dialect.Driver
	registry *schema.Registry
	codecs   *codec.Registry
	logger   *slog.Logger
	verbose  bool
	vars     [][2]string
	batch    time.Duration
	loader   graph.Loader
	policy   privacy.Policy
	db       *sql.DB // owned handle, set by Open
}

// Option configures a Client.
type Option func(*Client)

// Driver sets the driver statements are executed with, usually a
// *pool.Manager.
func Driver(drv dialect.Driver) Option {
	return func(c *Client) {
		c.driver = drv
	}
}

// Schema sets the entity metadata.
func Schema(r *schema.Registry) Option {
	return func(c *Client) {
		c.registry = r
	}
}

// Codecs sets the codec registry. Defaults to codec.Default.
func Codecs(r *codec.Registry) Option {
	return func(c *Client) {
		if r != nil {
			c.codecs = r
		}
	}
}

// Logger sets the logger used for verbose statement logging.
func Logger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Verbose logs every statement with its parameters inlined. It overrides
// the VLQUERY_VERBOSE environment variable.
func Verbose(v bool) Option {
	return func(c *Client) {
		c.verbose = v
	}
}

// SessionVar sets a session variable, such as statement_timeout, before
// every statement.
func SessionVar(name, value string) Option {
	return func(c *Client) {
		c.vars = append(c.vars, [2]string{name, value})
	}
}

// BatchLoads makes lazy relation loads that arrive within wait of each
// other run as one query. See contrib/dataloader. Loads are only batched
// with loads of the same privacy viewer, which must then be comparable
// (a pointer, typically).
func BatchLoads(wait time.Duration) Option {
	return func(c *Client) {
		c.batch = wait
	}
}

// NewClient returns a client configured with the given options.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		codecs: codec.Default,
		logger: slog.Default(),
	}
	if v := os.Getenv(VerboseEnv); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("vlquery: invalid %s %q: %w", VerboseEnv, v, err)
		}
		c.verbose = b
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.driver == nil {
		return nil, fmt.Errorf("vlquery: missing driver")
	}
	if c.registry == nil {
		return nil, fmt.Errorf("vlquery: missing schema")
	}
	if c.verbose {
		c.driver = vsql.NewDebugDriver(c.driver, vsql.DebugWithInline(), vsql.DebugWithLog(func(ctx context.Context, v ...any) {
			c.logger.InfoContext(ctx, fmt.Sprint(v...))
		}))
	}
	c.loader = c
	if c.batch > 0 {
		c.loader = dataloader.New(c, dataloader.WithWait(c.batch), dataloader.WithScope(policyScope))
	}
	return c, nil
}

// Open builds a client from a configuration: it loads the schema file,
// opens a lib/pq backed pool and connects it. A failed first connection is
// logged and retried in the background; statements issued meanwhile wait
// for it.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vlquery: %w", err)
	}
	registry, err := schema.Load(cfg.Schema)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()
	mgr, db, err := pool.Open("postgres", cfg.Database.DSN,
		pool.WithSize(cfg.Database.PoolSize),
		pool.WithRetryDelay(cfg.Database.RetryDelay.Duration),
		pool.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	var drv dialect.Driver = mgr
	if d := cfg.Database.SlowThreshold.Duration; d > 0 {
		drv = vsql.NewSlowDriver(drv, d, vsql.WithSlowLog(logger))
	}
	base := []Option{Driver(drv), Schema(registry), Logger(logger)}
	if cfg.Verbose {
		base = append(base, Verbose(true))
	}
	if d := cfg.Database.StatementTimeout.Duration; d > 0 {
		base = append(base, SessionVar("statement_timeout", strconv.FormatInt(d.Milliseconds(), 10)))
	}
	if d := cfg.Database.BatchWait.Duration; d > 0 {
		base = append(base, BatchLoads(d))
	}
	c, err := NewClient(append(base, opts...)...)
	if err != nil {
		return nil, errors.Join(err, mgr.Close(), db.Close())
	}
	c.db = db
	if err := mgr.Connect(ctx); err != nil {
		logger.WarnContext(ctx, "initial connect failed", "error", err)
	}
	return c, nil
}

// Schema returns the entity metadata.
func (c *Client) Schema() *schema.Registry { return c.registry }

// Driver returns the driver statements are executed with.
func (c *Client) Driver() dialect.Driver { return c.driver }

// Set returns the entity set with the given name. An unknown name is
// reported by the first operation on the set.
func (c *Client) Set(name string) *Set {
	return &Set{client: c, entity: name}
}

// Close closes the underlying driver.
func (c *Client) Close() error {
	err := c.driver.Close()
	if c.db != nil {
		err = errors.Join(err, c.db.Close())
	}
	return err
}

// Load implements graph.Loader. It is used by lazy relation handles.
func (c *Client) Load(ctx context.Context, entity, column string, value any, include ...string) ([]*graph.Entity, error) {
	return c.Set(entity).Where(ir.P(column).EQ(value)).Include(include...).All(ctx)
}

// LoadMany implements dataloader.Source.
func (c *Client) LoadMany(ctx context.Context, entity, column string, values []any, include ...string) ([]*graph.Entity, error) {
	return c.Set(entity).Where(ir.P(column).Call("includedIn", values)).Include(include...).All(ctx)
}

// Verify compares the entity metadata with the tables of the connected
// database.
func (c *Client) Verify(ctx context.Context, opts ...sqlschema.VerifyOption) (*sqlschema.ValidationResult, error) {
	return sqlschema.Check(c.context(ctx), c.driver, c.registry, opts...)
}

// policyScope keys batched loads by what the privacy policy sees, since a
// batch runs with the context of its first load.
func policyScope(ctx context.Context) any {
	type scope struct {
		viewer   privacy.Viewer
		decision error
	}
	decision, _ := privacy.DecisionFromContext(ctx)
	return scope{viewer: privacy.ViewerFromContext(ctx), decision: decision}
}

// context attaches the configured session variables.
func (c *Client) context(ctx context.Context) context.Context {
	for _, v := range c.vars {
		ctx = vsql.WithVar(ctx, v[0], v[1])
	}
	return ctx
}

func (c *Client) query(ctx context.Context, query string, args []any, rows *vsql.Rows) error {
	return c.driver.Query(c.context(ctx), query, args, rows)
}

func (c *Client) exec(ctx context.Context, query string, args []any, res *vsql.Result) error {
	return c.driver.Exec(c.context(ctx), query, args, res)
}

var (
	_ graph.Loader      = (*Client)(nil)
	_ dataloader.Source = (*Client)(nil)
)
