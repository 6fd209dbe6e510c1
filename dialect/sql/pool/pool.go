package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/vlquery/dialect"
	vsql "github.com/syssam/vlquery/dialect/sql"
	"github.com/syssam/vlquery/dialect/sql/sqlgraph"
)

// State is the connection state of a Manager.
type State int

// Connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const (
	// DefaultSize is the default number of physical connections.
	DefaultSize = 4
	// DefaultRetryDelay is the delay between failed reconnect attempts.
	DefaultRetryDelay = 2 * time.Second
)

// ErrClosed is returned for requests submitted to, or still queued in, a
// closed Manager.
var ErrClosed = errors.New("vlquery: connection pool is closed")

// ConnectionError is returned to the caller whose request observed a
// connection failure while the manager still considered itself connected.
// Requests failing after that point are queued and replayed instead.
type ConnectionError struct {
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return "vlquery: connection lost: " + e.Err.Error()
}

// Unwrap returns the driver error.
func (e *ConnectionError) Unwrap() error { return e.Err }

// Option configures a Manager.
type Option func(*Manager)

// WithSize sets the number of physical connections.
func WithSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.size = n
		}
	}
}

// WithRetryDelay sets the delay between failed reconnect attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retryDelay = d
		}
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager is a dialect.Driver over a fixed set of physical connections.
//
// Statements are spread over the connections round-robin. While the manager
// is not connected, statements are queued with their original template and
// arguments and replayed in order once a connection set is established, so
// callers block across an outage instead of failing. Replay is
// at-least-once: a write whose connection dropped before its outcome was
// known may run twice. The queue is unbounded; a caller leaves it only by
// canceling its context.
type Manager struct {
	connector  Connector
	size       int
	retryDelay time.Duration
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu     sync.Mutex
	state  State
	closed bool
	conns  []Conn
	gen    uint64 // incremented on every new connection set
	next   uint64
	queue  *list.List // of *request
}

// New returns a disconnected Manager. Call Connect to open the connections.
func New(connector Connector, opts ...Option) *Manager {
	m := &Manager{
		connector:  connector,
		size:       DefaultSize,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
		queue:      list.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending returns the number of queued requests.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}

// Dialect implements the dialect.Driver interface.
func (*Manager) Dialect() string { return dialect.Postgres }

// Connect opens the connection set and replays requests queued so far. If
// it fails, the manager keeps retrying in the background and Connect
// returns the first error. Connect on a manager that is not disconnected is
// a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.state != Disconnected:
		m.mu.Unlock()
		return nil
	}
	m.setState(Connecting)
	m.mu.Unlock()
	if err := m.establish(ctx); err != nil {
		m.mu.Lock()
		if !m.closed {
			m.setState(Reconnecting)
		}
		m.mu.Unlock()
		go m.reconnect(true)
		return fmt.Errorf("vlquery/pool: connect: %w", err)
	}
	return nil
}

// Close closes the connections and fails every queued request with
// ErrClosed.
func (m *Manager) Close() error {
	m.cancel()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conns := m.conns
	m.conns = nil
	for e := m.queue.Front(); e != nil; e = e.Next() {
		req := e.Value.(*request)
		req.elem = nil
		req.done <- ErrClosed
	}
	m.queue.Init()
	m.setState(Disconnected)
	m.mu.Unlock()
	return closeAll(conns)
}

// Query implements the dialect.Driver interface.
func (m *Manager) Query(ctx context.Context, query string, args, v any) error {
	return m.do(newRequest(ctx, query, args, v, false))
}

// Exec implements the dialect.Driver interface.
func (m *Manager) Exec(ctx context.Context, query string, args, v any) error {
	return m.do(newRequest(ctx, query, args, v, true))
}

func (m *Manager) do(req *request) error {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrClosed
		}
		if m.state != Connected {
			m.enqueue(req)
			m.mu.Unlock()
			return m.wait(req)
		}
		conn, gen := m.pick()
		m.mu.Unlock()

		err := req.run(conn)
		if !sqlgraph.IsConnectionError(err) {
			return err
		}
		m.mu.Lock()
		switch {
		case m.closed:
			m.mu.Unlock()
			return ErrClosed
		case m.state != Connected:
			// The outage was already observed. Replay once reconnected.
			m.enqueue(req)
			m.mu.Unlock()
			return m.wait(req)
		case m.gen != gen:
			// Failed on a connection set that has since been replaced.
			m.mu.Unlock()
			continue
		}
		m.setState(Reconnecting)
		m.mu.Unlock()
		m.logger.Warn("connection lost", "error", err)
		go m.reconnect(false)
		return &ConnectionError{Err: err}
	}
}

// enqueue appends req to the stalled queue. m.mu must be held.
func (m *Manager) enqueue(req *request) {
	req.elem = m.queue.PushBack(req)
}

func (m *Manager) wait(req *request) error {
	select {
	case err := <-req.done:
		return err
	case <-req.ctx.Done():
		m.mu.Lock()
		if req.elem != nil {
			m.queue.Remove(req.elem)
			req.elem = nil
			m.mu.Unlock()
			return req.ctx.Err()
		}
		m.mu.Unlock()
		// Already picked up for replay.
		return <-req.done
	}
}

// pick returns the next connection round-robin. m.mu must be held.
func (m *Manager) pick() (Conn, uint64) {
	c := m.conns[m.next%uint64(len(m.conns))]
	m.next++
	return c, m.gen
}

// setState records a transition. m.mu must be held.
func (m *Manager) setState(s State) {
	if m.state == s {
		return
	}
	m.logger.Info("pool state changed", "from", m.state, "to", s)
	m.state = s
}

// reconnect retries establish until it succeeds or the manager is closed.
// Concurrent calls share one attempt loop.
func (m *Manager) reconnect(wait bool) {
	_, _, _ = m.group.Do("reconnect", func() (any, error) {
		for attempt := 1; ; attempt++ {
			if wait {
				select {
				case <-m.ctx.Done():
					return nil, ErrClosed
				case <-time.After(m.retryDelay):
				}
			}
			wait = true
			err := m.establish(m.ctx)
			if err == nil {
				return nil, nil
			}
			if errors.Is(err, ErrClosed) || m.ctx.Err() != nil {
				return nil, ErrClosed
			}
			m.logger.Warn("reconnect failed", "attempt", attempt, "retry_in", m.retryDelay, "error", err)
		}
	})
}

// establish replaces the connection set and drains the queue. The manager
// reports Connected only once the queue is empty, so requests submitted
// during the drain are queued behind the replayed ones.
func (m *Manager) establish(ctx context.Context) error {
	m.mu.Lock()
	old := m.conns
	m.conns = nil
	m.mu.Unlock()
	_ = closeAll(old)

	conns, err := m.open(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = closeAll(conns)
		return ErrClosed
	}
	m.conns = conns
	m.gen++
	m.mu.Unlock()
	return m.drain()
}

func (m *Manager) open(ctx context.Context) ([]Conn, error) {
	conns := make([]Conn, m.size)
	g, ctx := errgroup.WithContext(ctx)
	for i := range conns {
		g.Go(func() error {
			c, err := m.connector.Connect(ctx)
			if err != nil {
				return err
			}
			conns[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = closeAll(conns)
		return nil, err
	}
	return conns, nil
}

// drain replays queued requests in FIFO order. A request that fails with a
// connection error goes back to the front of the queue.
func (m *Manager) drain() error {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrClosed
		}
		front := m.queue.Front()
		if front == nil {
			m.setState(Connected)
			m.mu.Unlock()
			return nil
		}
		req := m.queue.Remove(front).(*request)
		req.elem = nil
		conn, _ := m.pick()
		m.mu.Unlock()

		if err := req.ctx.Err(); err != nil {
			req.done <- err
			continue
		}
		err := req.run(conn)
		if sqlgraph.IsConnectionError(err) {
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				req.done <- ErrClosed
				return ErrClosed
			}
			req.elem = m.queue.PushFront(req)
			m.mu.Unlock()
			return err
		}
		req.done <- err
	}
}

// request is one submitted statement. query and args are kept as
// submitted; named arguments are rewritten on every attempt.
type request struct {
	ctx   context.Context
	query string
	args  any
	v     any
	exec  bool
	done  chan error
	elem  *list.Element
}

func newRequest(ctx context.Context, query string, args, v any, exec bool) *request {
	return &request{ctx: ctx, query: query, args: args, v: v, exec: exec, done: make(chan error, 1)}
}

func (r *request) run(c Conn) error {
	query, args := r.query, r.args
	if argv, ok := args.([]any); ok {
		query, args = vsql.Rewrite(query, argv)
	}
	if r.exec {
		return c.Exec(r.ctx, query, args, r.v)
	}
	return c.Query(r.ctx, query, args, r.v)
}

var _ dialect.Driver = (*Manager)(nil)
