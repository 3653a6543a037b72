// Package repocache caches repository (ORM) reads through the cache facade.
// A generic decorator wraps a caller-supplied repository: read methods are
// served from the cache under deterministic method+args keys, write methods
// hit the base repository and then invalidate or refresh the affected keys.
package repocache

import (
	"context"
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vmihailenco/msgpack/v5"

	stratacache "github.com/stratacache/go-strata-cache"
)

// Repository is the contract a base repository must satisfy to be wrapped.
// Criteria values take part in the cache key, so they must serialize
// deterministically (see Keys).
type Repository[T any] interface {
	Get(ctx context.Context, criteria ...any) (T, error)
	GetByID(ctx context.Context, id string) (T, error)
	List(ctx context.Context, criteria ...any) ([]T, error)
	Count(ctx context.Context, criteria ...any) (int, error)
	Create(ctx context.Context, record T) (T, error)
	Update(ctx context.Context, record T) (T, error)
	Save(ctx context.Context, record T) (T, error)
	Delete(ctx context.Context, record T) error
}

// Cacher is the slice of the cache facade the decorator needs.
type Cacher interface {
	Get(key string, loader stratacache.Loader) ([]byte, error)
	Invalidate(key string)
}

// WritePolicy selects what happens to cached reads after a write.
type WritePolicy string

const (
	// WritePolicyInvalidate drops every tracked key (write-around).
	WritePolicyInvalidate WritePolicy = "invalidate"
	// WritePolicyRefresh additionally re-caches the written record under its
	// GetByID key, so the next read is a hit.
	WritePolicyRefresh WritePolicy = "refresh"
)

// Cached decorates a Repository with caching. Instances are cheap; use one
// per entity type so key tracking stays scoped.
type Cached[T any] struct {
	base     Repository[T]
	cache    Cacher
	keys     *Keys
	registry *xsync.MapOf[string, struct{}]
	policy   WritePolicy
}

type Option[T any] func(*Cached[T])

// WithWritePolicy overrides the default invalidate policy.
func WithWritePolicy[T any](p WritePolicy) Option[T] {
	return func(c *Cached[T]) { c.policy = p }
}

// WithKeys overrides the key serializer, e.g. to add a tenant prefix.
func WithKeys[T any](k *Keys) Option[T] {
	return func(c *Cached[T]) { c.keys = k }
}

func New[T any](base Repository[T], cache Cacher, opts ...Option[T]) *Cached[T] {
	c := &Cached[T]{
		base:     base,
		cache:    cache,
		keys:     NewKeys(),
		registry: xsync.NewMapOf[string, struct{}](),
		policy:   WritePolicyInvalidate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// countRecord wraps Count results so every cached value is a msgpack struct.
type countRecord struct {
	N int `msgpack:"n"`
}

func (c *Cached[T]) Get(ctx context.Context, criteria ...any) (T, error) {
	return cachedCall[T, T](ctx, c, c.keys.Serialize("Get", criteria...), func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
}

func (c *Cached[T]) GetByID(ctx context.Context, id string) (T, error) {
	return cachedCall[T, T](ctx, c, c.keys.Serialize("GetByID", id), func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id)
	})
}

func (c *Cached[T]) List(ctx context.Context, criteria ...any) ([]T, error) {
	return cachedCall[T, []T](ctx, c, c.keys.Serialize("List", criteria...), func(ctx context.Context) ([]T, error) {
		return c.base.List(ctx, criteria...)
	})
}

func (c *Cached[T]) Count(ctx context.Context, criteria ...any) (int, error) {
	r, err := cachedCall[T, countRecord](ctx, c, c.keys.Serialize("Count", criteria...), func(ctx context.Context) (countRecord, error) {
		n, err := c.base.Count(ctx, criteria...)
		return countRecord{N: n}, err
	})
	return r.N, err
}

func (c *Cached[T]) Create(ctx context.Context, record T) (T, error) {
	out, err := c.base.Create(ctx, record)
	if err == nil {
		c.afterWrite(out)
	}
	return out, err
}

func (c *Cached[T]) Update(ctx context.Context, record T) (T, error) {
	out, err := c.base.Update(ctx, record)
	if err == nil {
		c.afterWrite(out)
	}
	return out, err
}

func (c *Cached[T]) Save(ctx context.Context, record T) (T, error) {
	out, err := c.base.Save(ctx, record)
	if err == nil {
		c.afterWrite(out)
	}
	return out, err
}

func (c *Cached[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.invalidateAll()
	}
	return err
}

// cachedCall serves one read through the cache: hit decodes the cached
// msgpack payload, miss runs fetch and caches its encoded result. Errors
// from fetch cache nothing and propagate.
func cachedCall[T, R any](ctx context.Context, c *Cached[T], key string, fetch func(ctx context.Context) (R, error)) (R, error) {
	c.registry.Store(key, struct{}{})

	var fetchErr error
	payload, err := c.cache.Get(key, func(stratacache.Item) ([]byte, error) {
		out, err := fetch(ctx)
		if err != nil {
			fetchErr = err
			return nil, err
		}
		return msgpack.Marshal(out)
	})

	var zero R
	if fetchErr != nil {
		return zero, fetchErr
	}
	if err != nil {
		return zero, err
	}

	var out R
	if err := msgpack.Unmarshal(payload, &out); err != nil {
		return zero, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return out, nil
}

// afterWrite applies the write policy once the base repository accepted the
// record.
func (c *Cached[T]) afterWrite(record T) {
	c.invalidateAll()

	if c.policy != WritePolicyRefresh {
		return
	}
	id, ok := extractID(record)
	if !ok {
		return
	}
	payload, err := msgpack.Marshal(record)
	if err != nil {
		return
	}
	key := c.keys.Serialize("GetByID", id)
	c.registry.Store(key, struct{}{})
	_, _ = c.cache.Get(key, func(stratacache.Item) ([]byte, error) {
		return payload, nil
	})
}

// invalidateAll drops every key this decorator ever served. Coarse, but any
// criteria-based read may cover the written record.
func (c *Cached[T]) invalidateAll() {
	c.registry.Range(func(key string, _ struct{}) bool {
		c.cache.Invalidate(key)
		c.registry.Delete(key)
		return true
	})
}

// extractID pulls a string representation of the record's ID field.
func extractID(record any) (string, bool) {
	v := reflect.ValueOf(record)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", false
	}
	for _, name := range []string{"ID", "Id", "UUID"} {
		field := v.FieldByName(name)
		if field.IsValid() && field.CanInterface() {
			return fmt.Sprintf("%v", field.Interface()), true
		}
	}
	return "", false
}
