package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/syssam/vlquery/dialect"
	vsql "github.com/syssam/vlquery/dialect/sql"
)

// Conn is one physical connection owned by a Manager.
type Conn interface {
	dialect.ExecQuerier
	Close() error
}

// Connector opens physical connections.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Conn, error)

// Connect calls f(ctx).
func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) { return f(ctx) }

// DB returns a Connector that checks out dedicated connections from db.
// Closing a Conn returns it to db, which discards it if the driver reports
// it as broken.
func DB(db *sql.DB) Connector {
	return ConnectorFunc(func(ctx context.Context) (Conn, error) {
		c, err := db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.PingContext(ctx); err != nil {
			return nil, errors.Join(err, c.Close())
		}
		return &dbConn{Conn: vsql.Conn{ExecQuerier: c}, raw: c}, nil
	})
}

type dbConn struct {
	vsql.Conn
	raw *sql.Conn
}

func (c *dbConn) Close() error { return c.raw.Close() }

// Open opens a database/sql handle for the DSN and returns a Manager over
// it. The Manager is not connected yet.
func Open(driverName, dsn string, opts ...Option) (*Manager, *sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("vlquery/pool: open %s: %w", driverName, err)
	}
	return New(DB(db), opts...), db, nil
}

// closeAll closes every non-nil connection.
func closeAll(conns []Conn) error {
	var errs []error
	for _, c := range conns {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
