package codec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Identity binds and decodes values unchanged.
type Identity struct{}

func (Identity) Encode(ref string) string    { return ref }
func (Identity) Param(v any) (any, error)    { return v, nil }
func (Identity) Decode(raw any) (any, error) { return raw, nil }

// Int decodes integer columns into int64.
type Int struct{}

func (Int) Encode(ref string) string { return ref }
func (Int) Param(v any) (any, error) { return v, nil }

func (Int) Decode(raw any) (any, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return nil, decodeErr(raw, "integer", err)
		}
		return i, nil
	case float64:
		return int64(v), nil
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, decodeErr(raw, "integer", err)
		}
		return i, nil
	}
	return nil, decodeErr(raw, "integer", nil)
}

// Float decodes floating point columns into float64.
type Float struct{}

func (Float) Encode(ref string) string { return ref }
func (Float) Param(v any) (any, error) { return v, nil }

func (Float) Decode(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, decodeErr(raw, "float", err)
		}
		return f, nil
	case int64:
		return float64(v), nil
	case string:
		// jsonb renders NaN and infinities as strings.
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, decodeErr(raw, "float", err)
		}
		return f, nil
	}
	return nil, decodeErr(raw, "float", nil)
}

// Decimal maps numeric columns to decimal.Decimal.
type Decimal struct{}

func (Decimal) Encode(ref string) string { return ref }

func (Decimal) Param(v any) (any, error) {
	switch v := v.(type) {
	case decimal.Decimal:
		return v.String(), nil
	case *decimal.Decimal:
		if v == nil {
			return nil, nil
		}
		return v.String(), nil
	}
	return v, nil
}

func (Decimal) Decode(raw any) (any, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, nil
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	case string:
		d, err = decimal.NewFromString(v)
	case float64:
		d = decimal.NewFromFloat(v)
	case int64:
		d = decimal.NewFromInt(v)
	default:
		return nil, decodeErr(raw, "numeric", nil)
	}
	if err != nil {
		return nil, decodeErr(raw, "numeric", err)
	}
	return d, nil
}

// UUID maps uuid columns to uuid.UUID.
type UUID struct{}

func (UUID) Encode(ref string) string { return ref }

func (UUID) Param(v any) (any, error) {
	switch v := v.(type) {
	case uuid.UUID:
		return v.String(), nil
	case *uuid.UUID:
		if v == nil {
			return nil, nil
		}
		return v.String(), nil
	}
	return v, nil
}

func (UUID) Decode(raw any) (any, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, decodeErr(raw, "uuid", err)
		}
		return id, nil
	case []byte:
		id, err := uuid.ParseBytes(v)
		if err != nil {
			return nil, decodeErr(raw, "uuid", err)
		}
		return id, nil
	}
	return nil, decodeErr(raw, "uuid", nil)
}

// layouts accepted by Time.Decode, in the order they are tried.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
	"15:04:05.999999999Z07:00",
	"15:04:05.999999999",
}

// Time maps date and time columns to time.Time.
type Time struct{}

func (Time) Encode(ref string) string { return ref }
func (Time) Param(v any) (any, error) { return v, nil }

func (Time) Decode(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range layouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
	}
	return nil, decodeErr(raw, "time", nil)
}

// Bytea binds binary data as hex text and decodes it on the server.
type Bytea struct{}

func (Bytea) Encode(ref string) string {
	return "decode(" + ref + ", 'hex')"
}

func (Bytea) Param(v any) (any, error) {
	switch v := v.(type) {
	case []byte:
		return hex.EncodeToString(v), nil
	case string:
		return hex.EncodeToString([]byte(v)), nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("vlquery/codec: cannot bind %T as bytea", v)
}

func (Bytea) Decode(raw any) (any, error) {
	switch v := raw.(type) {
	case []byte:
		return v, nil
	case string:
		b, err := hex.DecodeString(strings.TrimPrefix(v, `\x`))
		if err != nil {
			return nil, decodeErr(raw, "bytea", err)
		}
		return b, nil
	}
	return nil, decodeErr(raw, "bytea", nil)
}

// Enum casts the parameter to a database type the registry has no codec for,
// typically a native enumeration.
type Enum struct {
	Type string
}

func (e Enum) Encode(ref string) string { return ref + "::" + e.Type }

func (Enum) Param(v any) (any, error) {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return v, nil
}

func (Enum) Decode(raw any) (any, error) { return raw, nil }

func decodeErr(raw any, typ string, err error) error {
	if err != nil {
		return fmt.Errorf("vlquery/codec: decode %T as %s: %w", raw, typ, err)
	}
	return fmt.Errorf("vlquery/codec: decode %T as %s", raw, typ)
}
