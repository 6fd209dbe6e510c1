// Package sqlgraph classifies PostgreSQL driver errors.
package sqlgraph

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"
)

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// sqlStateError is an interface for errors that provide SQLSTATE codes.
// Implemented by pgx and pq wrappers.
type sqlStateError interface {
	SQLState() string
}

// PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"

	pgConnectionClass  = "08"
	pgAdminShutdown    = "57P01"
	pgCrashShutdown    = "57P02"
	pgCannotConnectNow = "57P03"
)

// sqlState returns the SQLSTATE code carried by err, if any.
func sqlState(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	if e, ok := asError[sqlStateError](err); ok {
		return e.SQLState(), true
	}
	return "", false
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqlState(err); ok {
		return code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "violates unique constraint")
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. deleting a row that is still referenced.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqlState(err); ok {
		return code == pgForeignKeyViolation
	}
	return strings.Contains(err.Error(), "violates foreign key constraint")
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqlState(err); ok {
		return code == pgCheckViolation
	}
	return strings.Contains(err.Error(), "violates check constraint")
}

// IsConnectionError reports whether err means the connection it was raised
// on is no longer usable: a broken or closed connection, an unexpected end
// of stream, a network failure, or a server-side connection exception or
// shutdown. Context cancellation is not a connection error.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if code, ok := sqlState(err); ok {
		switch {
		case strings.HasPrefix(code, pgConnectionClass),
			code == pgAdminShutdown, code == pgCrashShutdown, code == pgCannotConnectNow:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}
