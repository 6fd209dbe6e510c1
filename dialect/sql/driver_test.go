package sql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/vlquery/dialect"
)

func newMock(t *testing.T) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return OpenDB(db), mock
}

func TestWithVars(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	drv := OpenDB(db)
	mock.ExpectExec("SET foo = 'bar'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec("RESET foo").WillReturnResult(sqlmock.NewResult(0, 0))
	rows := &Rows{}
	err = drv.Query(
		WithVar(context.Background(), "foo", "bar"),
		"SELECT 1",
		[]any{},
		rows,
	)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 1, rows.Len())

	mock.ExpectExec("SET foo = 'bar'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET foo = 'baz'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec("RESET foo").WillReturnResult(sqlmock.NewResult(0, 0))
	err = drv.Query(
		WithVar(WithVar(context.Background(), "foo", "bar"), "foo", "baz"),
		"SELECT 1",
		[]any{},
		rows,
	)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec("SET foo = 'qux'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO users DEFAULT VALUES").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("RESET foo").WillReturnResult(sqlmock.NewResult(0, 0))
	err = drv.Exec(
		WithVar(context.Background(), "foo", "qux"),
		"INSERT INTO users DEFAULT VALUES",
		[]any{},
		nil,
	)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithVarsDedicatedConn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("SET statement_timeout = '5000'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec("RESET statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	err = Conn{conn}.Query(WithVar(context.Background(), "statement_timeout", "5000"), "SELECT 1", []any{}, &Rows{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVarFromContext(t *testing.T) {
	ctx := WithVar(context.Background(), "foo", "bar")
	v, ok := VarFromContext(ctx, "foo")
	require.True(t, ok)
	assert.Equal(t, "bar", v)

	v, _ = VarFromContext(WithVar(ctx, "foo", "baz"), "foo")
	assert.Equal(t, "baz", v)
	v, _ = VarFromContext(ctx, "foo")
	assert.Equal(t, "bar", v, "parent context is not modified")

	_, ok = VarFromContext(ctx, "missing")
	assert.False(t, ok)
}

func TestDriverQuery(t *testing.T) {
	drv, mock := newMock(t)

	t.Run("simple_query", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name FROM users").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
				AddRow(int64(1), "Alice").
				AddRow(int64(2), "Bob"))

		rows := &Rows{}
		err := drv.Query(context.Background(), "SELECT id, name FROM users", []any{}, rows)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, []string{"id", "name"}, rows.Columns)
		assert.Equal(t, [][]any{{int64(1), "Alice"}, {int64(2), "Bob"}}, rows.Values)
		names, err := rows.Column("name")
		require.NoError(t, err)
		assert.Equal(t, []any{"Alice", "Bob"}, names)
		_, err = rows.Column("missing")
		assert.Error(t, err)
	})

	t.Run("query_with_args", func(t *testing.T) {
		mock.ExpectQuery("SELECT name FROM users WHERE id = $1").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Alice"))

		rows := &Rows{}
		err := drv.Query(context.Background(), "SELECT name FROM users WHERE id = $1", []any{1}, rows)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("named_args", func(t *testing.T) {
		mock.ExpectQuery("SELECT name FROM users WHERE id = $2 AND tenant = $1").
			WithArgs("t1", 7).
			WillReturnRows(sqlmock.NewRows([]string{"name"}))

		rows := &Rows{}
		err := drv.Query(context.Background(), "SELECT name FROM users WHERE id = @id AND tenant = @tenant",
			[]any{Named("id", 7), Named("tenant", "t1")}, rows)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Zero(t, rows.Len())
	})

	t.Run("query_error", func(t *testing.T) {
		expectedErr := errors.New("database error")
		mock.ExpectQuery("SELECT").WillReturnError(expectedErr)

		err := drv.Query(context.Background(), "SELECT", []any{}, &Rows{})
		require.ErrorIs(t, err, expectedErr)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row_error", func(t *testing.T) {
		expectedErr := errors.New("connection reset")
		mock.ExpectQuery("SELECT id FROM users").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).
				AddRow(int64(1)).
				AddRow(int64(2)).
				RowError(1, expectedErr))

		err := drv.Query(context.Background(), "SELECT id FROM users", []any{}, &Rows{})
		require.ErrorIs(t, err, expectedErr)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_destination", func(t *testing.T) {
		var rows []any
		err := drv.Query(context.Background(), "SELECT 1", []any{}, &rows)
		require.Error(t, err)
	})

	t.Run("invalid_args", func(t *testing.T) {
		err := drv.Query(context.Background(), "SELECT 1", map[string]any{}, &Rows{})
		require.Error(t, err)
	})
}

func TestDriverExec(t *testing.T) {
	drv, mock := newMock(t)

	t.Run("simple_exec", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO users (name) VALUES ('test')").
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := drv.Exec(context.Background(), "INSERT INTO users (name) VALUES ('test')", []any{}, nil)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec_with_result", func(t *testing.T) {
		mock.ExpectExec("UPDATE users SET name = $1 WHERE id = $2").
			WithArgs("Alice", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		var res Result
		err := drv.Exec(context.Background(), "UPDATE users SET name = $1 WHERE id = $2", []any{"Alice", 1}, &res)
		require.NoError(t, err)
		n, err := res.RowsAffected()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec_error", func(t *testing.T) {
		expectedErr := errors.New("constraint violation")
		mock.ExpectExec("DELETE FROM users").WillReturnError(expectedErr)

		err := drv.Exec(context.Background(), "DELETE FROM users", []any{}, nil)
		require.ErrorIs(t, err, expectedErr)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDialectMethod(t *testing.T) {
	drv, _ := newMock(t)
	assert.Equal(t, dialect.Postgres, drv.Dialect())
}

func TestContextCancellation(t *testing.T) {
	drv, mock := newMock(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock.ExpectQuery("SELECT 1").WillReturnError(context.Canceled)
	err := drv.Query(ctx, "SELECT 1", []any{}, &Rows{})
	assert.Error(t, err)
}

func TestNullValues(t *testing.T) {
	drv, mock := newMock(t)

	mock.ExpectQuery("SELECT name, email FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"name", "email"}).
			AddRow("Alice", nil).
			AddRow(nil, "bob@example.com"))

	rows := &Rows{}
	err := drv.Query(context.Background(), "SELECT name, email FROM users", []any{}, rows)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, [][]any{{"Alice", nil}, {nil, "bob@example.com"}}, rows.Values)
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"valid_simple", "foo", true},
		{"valid_with_underscore", "statement_timeout", true},
		{"valid_with_number", "foo123", true},
		{"valid_with_dot", "app.tenant", true},
		{"valid_starting_underscore", "_private", true},
		{"invalid_empty", "", false},
		{"invalid_starting_number", "123foo", false},
		{"invalid_with_space", "foo bar", false},
		{"invalid_with_quote", "foo'bar", false},
		{"invalid_with_semicolon", "foo;DROP TABLE", false},
		{"invalid_with_dash", "foo-bar", false},
		{"invalid_too_long", string(make([]byte, 129)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isValidIdentifier(tt.input))
		})
	}
}

func TestEscapeStringValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no_escaping_needed", "hello", "hello"},
		{"single_quote", "it's", "it''s"},
		{"multiple_quotes", "he said 'hello'", "he said ''hello''"},
		{"backslash_kept", `path\to\file`, `path\to\file`},
		{"empty_string", "", ""},
		{"sql_injection_attempt", "'; DROP TABLE users; --", "''; DROP TABLE users; --"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeStringValue(tt.input))
		})
	}
}

func TestWithVarsInvalidIdentifier(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	drv := OpenDB(db)

	err = drv.Query(
		WithVar(context.Background(), "foo; DROP TABLE users; --", "bar"),
		"SELECT 1",
		[]any{},
		&Rows{},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session variable name")
}

func TestWithVarsEscapedValue(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	drv := OpenDB(db)

	mock.ExpectExec("SET foo = 'it''s escaped'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec("RESET foo").WillReturnResult(sqlmock.NewResult(0, 0))

	err = drv.Query(
		WithVar(context.Background(), "foo", "it's escaped"),
		"SELECT 1",
		[]any{},
		&Rows{},
	)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
