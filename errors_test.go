package vlquery_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/vlquery"
	"github.com/syssam/vlquery/ir"
)

func TestCardinalityError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		assert.Equal(t, "vlquery: Customer not found", (&vlquery.CardinalityError{Entity: "Customer"}).Error())
		assert.Equal(t, "vlquery: Customer not singular (got 2 results, expected 1)",
			(&vlquery.CardinalityError{Entity: "Customer", Count: 2}).Error())
	})

	t.Run("NotFound", func(t *testing.T) {
		err := &vlquery.CardinalityError{Entity: "Order", Count: 0}
		assert.True(t, vlquery.IsNotFound(err))
		assert.True(t, vlquery.IsNotSingular(err))
		assert.True(t, vlquery.IsCardinalityError(err))
		assert.True(t, vlquery.IsNotFound(fmt.Errorf("wrapper: %w", err)))
	})

	t.Run("NotSingular", func(t *testing.T) {
		err := &vlquery.CardinalityError{Entity: "Order", Count: 3}
		assert.False(t, vlquery.IsNotFound(err))
		assert.True(t, vlquery.IsNotSingular(err))
		assert.True(t, errors.Is(err, vlquery.ErrNotSingular))
	})

	t.Run("Sentinels", func(t *testing.T) {
		assert.True(t, vlquery.IsNotFound(vlquery.ErrNotFound))
		assert.True(t, vlquery.IsNotSingular(vlquery.ErrNotSingular))
		assert.False(t, vlquery.IsNotFound(nil))
		assert.False(t, vlquery.IsNotSingular(errors.New("other error")))
		assert.False(t, vlquery.IsCardinalityError(vlquery.ErrNotFound))
	})
}

func TestIntegrityError(t *testing.T) {
	t.Run("Counted", func(t *testing.T) {
		err := &vlquery.IntegrityError{Entity: "Customer", Referrer: "Order", Relation: "customer", Count: 2}
		assert.Equal(t, `vlquery: cannot delete Customer: referenced by 2 Order rows through "customer"`, err.Error())
		assert.True(t, vlquery.IsIntegrityError(err))
		assert.Nil(t, errors.Unwrap(err))
	})

	t.Run("Database", func(t *testing.T) {
		pqErr := &pq.Error{Code: "23503", Message: "violates foreign key constraint"}
		err := &vlquery.IntegrityError{Entity: "Customer", Count: -1, Err: pqErr}
		assert.Equal(t, "vlquery: cannot delete Customer: still referenced", err.Error())
		var target *pq.Error
		require.True(t, errors.As(err, &target))
		assert.Equal(t, pq.ErrorCode("23503"), target.Code)
		assert.True(t, vlquery.IsIntegrityError(fmt.Errorf("wrapper: %w", err)))
	})

	assert.False(t, vlquery.IsIntegrityError(errors.New("other error")))
}

func TestReexportedErrors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		msg   string
	}{
		{
			name:  "IRError",
			err:   ir.Errorf("unknown operator %q", "~"),
			check: vlquery.IsIRError,
			msg:   `vlquery: invalid expression: unknown operator "~"`,
		},
		{
			name:  "SchemaResolutionError",
			err:   &vlquery.SchemaResolutionError{Entity: "Order", Name: "nope"},
			check: vlquery.IsSchemaResolutionError,
			msg:   `vlquery: cannot resolve "nope" on Order`,
		},
		{
			name:  "NotLoadedError",
			err:   &vlquery.NotLoadedError{Entity: "Order", Relation: "items"},
			check: vlquery.IsNotLoaded,
			msg:   `vlquery: relation "items" of Order was not loaded`,
		},
		{
			name:  "ConnectionError",
			err:   &vlquery.ConnectionError{Err: io.ErrUnexpectedEOF},
			check: vlquery.IsConnectionError,
			msg:   "vlquery: connection lost: unexpected EOF",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.msg, tt.err.Error())
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapper: %w", tt.err)))
			assert.False(t, tt.check(errors.New("other error")))
		})
	}
}

func TestValidationError(t *testing.T) {
	underlying := errors.New("cannot bind int as bytea")
	err := &vlquery.ValidationError{Name: "image", Err: underlying}
	assert.Equal(t, `vlquery: invalid value for column "image": cannot bind int as bytea`, err.Error())
	assert.True(t, vlquery.IsValidationError(err))
	assert.True(t, errors.Is(err, underlying))
	assert.False(t, vlquery.IsValidationError(underlying))
}

func TestQueryAndMutationErrors(t *testing.T) {
	underlying := errors.New("relation does not exist")

	qerr := &vlquery.QueryError{Entity: "Order", Op: vlquery.OpSelect, Err: underlying}
	assert.Equal(t, "vlquery: querying Order (select): relation does not exist", qerr.Error())
	assert.Equal(t, "vlquery: querying Order: relation does not exist", (&vlquery.QueryError{Entity: "Order", Err: underlying}).Error())
	assert.True(t, vlquery.IsQueryError(qerr))
	assert.True(t, errors.Is(qerr, underlying))

	merr := &vlquery.MutationError{Entity: "Order", Op: vlquery.OpUpdate, Err: underlying}
	assert.Equal(t, "vlquery: update Order: relation does not exist", merr.Error())
	assert.True(t, vlquery.IsMutationError(merr))
	assert.False(t, vlquery.IsQueryError(merr))
	assert.True(t, errors.Is(merr, underlying))
}
