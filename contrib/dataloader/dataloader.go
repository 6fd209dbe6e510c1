// Package dataloader batches the lazy relation loads of materialized
// entities.
//
// Fetching a lazy relation on every entity of a result issues one query per
// entity. A Loader collects the loads that arrive within a short window and
// runs them as a single query over all requested keys:
//
//	client, err := vlquery.NewClient(
//	    vlquery.Driver(mgr),
//	    vlquery.Schema(reg),
//	    vlquery.BatchLoads(2*time.Millisecond),
//	)
//
//	for _, order := range orders {
//	    go order.Ref("customer").Fetch(ctx) // one query for all customers
//	}
package dataloader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/syssam/vlquery/graph"
)

// Defaults used by New.
const (
	DefaultWait     = 2 * time.Millisecond
	DefaultMaxBatch = 100
)

// Source loads the entities whose column matches any of the values.
type Source interface {
	LoadMany(ctx context.Context, entity, column string, values []any, include ...string) ([]*graph.Entity, error)
}

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// GroupByKey groups values by a key function, keeping their order within
// each group.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// Key normalizes a column value into a batch key, so that a uuid.UUID and
// its string form, or an int and an int64, select the same group.
func Key(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Option configures a Loader.
type Option func(*Loader)

// WithWait sets how long a batch collects keys before it runs.
func WithWait(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.wait = d
		}
	}
}

// WithMaxBatch sets the number of keys that makes a batch run immediately.
func WithMaxBatch(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBatch = n
		}
	}
}

// WithScope only batches loads whose contexts map to the same scope, for
// example the same authenticated viewer. fn must return a comparable value.
func WithScope(fn func(context.Context) any) Option {
	return func(l *Loader) {
		l.scope = fn
	}
}

// Loader is a graph.Loader that batches loads by entity, column and
// include list.
type Loader struct {
	src      Source
	wait     time.Duration
	maxBatch int
	scope    func(context.Context) any

	mu      sync.Mutex
	pending map[batchKey]*batch
}

// New returns a Loader over src.
func New(src Source, opts ...Option) *Loader {
	l := &Loader{
		src:      src,
		wait:     DefaultWait,
		maxBatch: DefaultMaxBatch,
		pending:  make(map[batchKey]*batch),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type batchKey struct {
	entity, column, include string
	scope                   any
}

type batch struct {
	key     batchKey
	include []string
	// ctx is the context of the first load, detached from its cancellation
	// because the other loads in the batch depend on the query.
	ctx    context.Context
	seen   map[string]struct{}
	values []any
	once   sync.Once
	done   chan struct{}
	groups map[string][]*graph.Entity
	err    error
}

// Load implements graph.Loader.
func (l *Loader) Load(ctx context.Context, entity, column string, value any, include ...string) ([]*graph.Entity, error) {
	k := batchKey{entity: entity, column: column, include: strings.Join(include, ",")}
	if l.scope != nil {
		k.scope = l.scope(ctx)
	}
	key := Key(value)

	l.mu.Lock()
	b, ok := l.pending[k]
	if !ok {
		b = &batch{
			key:     k,
			include: include,
			ctx:     context.WithoutCancel(ctx),
			seen:    make(map[string]struct{}),
			done:    make(chan struct{}),
		}
		l.pending[k] = b
		time.AfterFunc(l.wait, func() { l.dispatch(b) })
	}
	if _, dup := b.seen[key]; !dup {
		b.seen[key] = struct{}{}
		b.values = append(b.values, value)
	}
	full := len(b.values) >= l.maxBatch
	if full {
		delete(l.pending, k)
	}
	l.mu.Unlock()
	if full {
		go b.once.Do(func() { l.run(b) })
	}

	select {
	case <-b.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.groups[key], nil
}

// dispatch runs b once its wait elapsed, unless it already ran because it
// filled up.
func (l *Loader) dispatch(b *batch) {
	l.mu.Lock()
	if l.pending[b.key] == b {
		delete(l.pending, b.key)
	}
	l.mu.Unlock()
	b.once.Do(func() { l.run(b) })
}

func (l *Loader) run(b *batch) {
	defer close(b.done)
	es, err := l.src.LoadMany(b.ctx, b.key.entity, b.key.column, b.values, b.include...)
	if err != nil {
		b.err = err
		return
	}
	column := b.key.column
	b.groups = GroupByKey(es, func(e *graph.Entity) string {
		v, _ := e.Get(column)
		return Key(v)
	})
}

var _ graph.Loader = (*Loader)(nil)
