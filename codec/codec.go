// Package codec maps physical column types to the SQL fragment a bound
// parameter is written with, the value handed to the driver and the typed Go
// value a JSON-decoded column is turned back into.
//
// Column values reach Decode from a jsonb payload, so numbers arrive as
// json.Number, binary data as "\x..." hex text and timestamps as ISO strings.
package codec

import (
	"strings"
	"sync"
)

// Codec converts values of one physical type.
type Codec interface {
	// Encode returns the SQL fragment for the parameter reference ref
	// ("$3" or "@name").
	Encode(ref string) string
	// Param converts a Go value into the value bound to the parameter.
	Param(v any) (any, error)
	// Decode converts a raw payload value into its Go value. A nil raw value
	// is never passed.
	Decode(raw any) (any, error)
}

// Registry resolves codecs by type tag. The zero value is not usable; call
// NewRegistry. A Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry returns a registry preloaded with the built-in codecs.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	for _, t := range []string{"text", "varchar", "char", "bpchar", "citext", "bool", "boolean", "json", "jsonb"} {
		r.codecs[t] = Identity{}
	}
	for _, t := range []string{"int2", "int4", "int8", "integer", "bigint", "smallint", "serial", "bigserial"} {
		r.codecs[t] = Int{}
	}
	for _, t := range []string{"float4", "float8", "real", "double precision"} {
		r.codecs[t] = Float{}
	}
	for _, t := range []string{"numeric", "decimal", "money"} {
		r.codecs[t] = Decimal{}
	}
	r.codecs["uuid"] = UUID{}
	for _, t := range []string{"timestamp", "timestamptz", "date", "time", "timetz"} {
		r.codecs[t] = Time{}
	}
	r.codecs["bytea"] = Bytea{}
	return r
}

// Register installs c for the given type tags, replacing existing entries.
func (r *Registry) Register(c Codec, types ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range types {
		r.codecs[normalize(t)] = c
	}
}

// Lookup returns the codec for a type tag. Unregistered tags resolve to an
// Enum codec casting to that type.
func (r *Registry) Lookup(typ string) Codec {
	typ = normalize(typ)
	r.mu.RLock()
	c, ok := r.codecs[typ]
	r.mu.RUnlock()
	if ok {
		return c
	}
	if typ == "" {
		return Identity{}
	}
	return Enum{Type: typ}
}

// Registered reports whether typ has an explicitly registered codec.
func (r *Registry) Registered(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.codecs[normalize(typ)]
	return ok
}

func normalize(typ string) string {
	return strings.ToLower(strings.TrimSpace(typ))
}

// Default is the registry used when no registry is configured.
var Default = NewRegistry()
