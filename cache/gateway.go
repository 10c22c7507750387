package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Meschack/lyriks/logcolors"
	"github.com/Meschack/lyriks/stats"

	log "github.com/sirupsen/logrus"
)

// Status is the outcome of a Gateway read.
type Status int

const (
	Miss  Status = iota
	Hit          // value decoded into dest
	Fault        // store or decode failure, treated as a miss
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case Fault:
		return "fault"
	default:
		return "miss"
	}
}

// Gateway is the best-effort cache used by the services. Keys are namespaced
// before reaching the store, values are JSON, and no store error ever reaches
// the caller: reads degrade to a miss and writes are dropped after logging.
type Gateway struct {
	store     Store
	namespace string
}

// NewGateway wraps store. An empty namespace leaves keys untouched.
func NewGateway(store Store, namespace string) *Gateway {
	return &Gateway{store: store, namespace: namespace}
}

func (g *Gateway) key(k string) string {
	if g.namespace == "" {
		return k
	}
	return g.namespace + ":" + k
}

// Get decodes the value stored under key into dest.
func (g *Gateway) Get(ctx context.Context, key string, dest interface{}) Status {
	data, err := g.store.Get(ctx, g.key(key))
	if errors.Is(err, ErrNotFound) {
		return Miss
	}
	if err != nil {
		g.fault("get", key, err)
		return Fault
	}

	if err := json.Unmarshal(data, dest); err != nil {
		g.fault("decode", key, err)
		return Fault
	}
	return Hit
}

// Set encodes value and stores it for ttl. Failures are logged and dropped.
func (g *Gateway) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		g.fault("encode", key, err)
		return
	}
	if err := g.store.Set(ctx, g.key(key), data, ttl); err != nil {
		g.fault("set", key, err)
	}
}

// Delete removes key. Failures are logged and dropped.
func (g *Gateway) Delete(ctx context.Context, key string) {
	if err := g.store.Delete(ctx, g.key(key)); err != nil {
		g.fault("delete", key, err)
	}
}

// DeletePrefix removes every namespaced key starting with prefix. Unlike the
// per-key operations it reports errors, since only admin endpoints call it.
func (g *Gateway) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	return g.store.DeletePrefix(ctx, g.key(prefix))
}

// Ping reports store availability.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.store.Ping(ctx)
}

func (g *Gateway) fault(op, key string, err error) {
	stats.Get().RecordCacheFault()
	log.WithError(err).Warnf("%s %s failed for key %s", logcolors.LogCacheFault, op, key)
}
