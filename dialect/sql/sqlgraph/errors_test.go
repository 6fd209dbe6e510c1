package sqlgraph

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

type stateErr string

func (e stateErr) Error() string    { return "state " + string(e) }
func (e stateErr) SQLState() string { return string(e) }

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad_conn", driver.ErrBadConn, true},
		{"conn_done", sql.ErrConnDone, true},
		{"eof", io.EOF, true},
		{"unexpected_eof_wrapped", fmt.Errorf("dialect/sql: query: %w", io.ErrUnexpectedEOF), true},
		{"net", &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}, true},
		{"pq_connection_failure", &pq.Error{Code: "08006"}, true},
		{"pq_admin_shutdown", &pq.Error{Code: "57P01"}, true},
		{"pq_cannot_connect_now", &pq.Error{Code: "57P03"}, true},
		{"pq_query_canceled", &pq.Error{Code: "57014"}, false},
		{"pq_syntax", &pq.Error{Code: "42601"}, false},
		{"sqlstate", stateErr("08003"), true},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		{"plain", errors.New("boom"), false},
		{"joined", errors.Join(errors.New("a"), driver.ErrBadConn), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectionError(tt.err))
		})
	}
}

func TestConstraintErrors(t *testing.T) {
	fk := fmt.Errorf("dialect/sql: exec: %w", &pq.Error{Code: "23503", Message: "update or delete violates foreign key constraint"})
	unique := &pq.Error{Code: "23505"}
	check := stateErr("23514")

	assert.True(t, IsForeignKeyConstraintError(fk))
	assert.False(t, IsForeignKeyConstraintError(unique))
	assert.True(t, IsUniqueConstraintError(unique))
	assert.True(t, IsCheckConstraintError(check))
	assert.True(t, IsConstraintError(fk))
	assert.True(t, IsConstraintError(check))
	assert.False(t, IsConstraintError(errors.New("boom")))
	assert.False(t, IsConstraintError(nil))

	assert.True(t, IsForeignKeyConstraintError(errors.New(`pq: insert or update on table "orders" violates foreign key constraint "fk"`)))
	assert.True(t, IsUniqueConstraintError(errors.New(`duplicate key value violates unique constraint "pk"`)))
}
