package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/claimscope/claimscope/internal/observability"
)

// Cache serves immutable catalog epochs with copy-on-refresh semantics.
// Readers always get a complete snapshot; a concurrent refresh builds a new
// epoch and swaps the pointer atomically. If a rebuild fails the last good
// epoch keeps serving and Get reports degraded mode through Stale.
type Cache struct {
	source Source
	ttl    time.Duration
	clock  func() time.Time

	current atomic.Pointer[Catalog]
	epoch   atomic.Int64

	// refreshMu serializes rebuilds so concurrent expired readers do not
	// stampede the metadata source.
	refreshMu sync.Mutex
}

// Snapshot pairs a catalog epoch with the cache's degraded-mode signal.
type Snapshot struct {
	Catalog *Catalog
	// Stale is true when the snapshot outlived its TTL because the most
	// recent rebuild attempt failed.
	Stale bool
}

func NewCache(source Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Cache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
	}
}

// Get returns the current epoch, building it on first use or after expiry.
// When a rebuild fails and a previous epoch exists, that epoch is returned
// with Stale set and a nil error; the request must not fail just because the
// metadata source is down.
func (c *Cache) Get(ctx context.Context) (Snapshot, error) {
	if snap := c.current.Load(); snap != nil && c.clock().Sub(snap.BuiltAt) < c.ttl {
		observability.SetCatalogStale(false)
		return Snapshot{Catalog: snap}, nil
	}

	rebuilt, err := c.rebuild(ctx, false)
	if err != nil {
		if prev := c.current.Load(); prev != nil {
			observability.SetCatalogStale(true)
			return Snapshot{Catalog: prev, Stale: true}, nil
		}
		return Snapshot{}, fmt.Errorf("build schema catalog: %w", err)
	}
	observability.SetCatalogStale(false)
	return Snapshot{Catalog: rebuilt}, nil
}

// Refresh forces a rebuild and swaps the epoch. In-flight readers keep the
// snapshot they already obtained. On failure the previous epoch remains
// current and the error is returned.
func (c *Cache) Refresh(ctx context.Context) (*Catalog, error) {
	rebuilt, err := c.rebuild(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("refresh schema catalog: %w", err)
	}
	return rebuilt, nil
}

// Invalidate expires the current epoch so the next Get rebuilds.
func (c *Cache) Invalidate() {
	if snap := c.current.Load(); snap != nil {
		expired := *snap
		expired.BuiltAt = time.Time{}
		c.current.Store(&expired)
	}
}

func (c *Cache) rebuild(ctx context.Context, force bool) (*Catalog, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have rebuilt while this one waited on the lock.
	if !force {
		if snap := c.current.Load(); snap != nil && c.clock().Sub(snap.BuiltAt) < c.ttl {
			return snap, nil
		}
	}

	tables, err := c.source.Load(ctx)
	if err == nil && len(tables) == 0 {
		err = fmt.Errorf("metadata source returned no tables")
	}
	observability.ObserveCatalogRefresh(err)
	if err != nil {
		return nil, err
	}

	built := NewCatalog(c.epoch.Add(1), c.clock(), tables)
	c.current.Store(built)
	return built, nil
}

// LogCatalog emits a one-line summary of a freshly built epoch.
func LogCatalog(logger *slog.Logger, catalog *Catalog) {
	if logger == nil || catalog == nil {
		return
	}
	logger.Info("schema catalog built",
		slog.Int64("epoch", catalog.Epoch),
		slog.Int("tables", catalog.Len()),
		slog.Time("built_at", catalog.BuiltAt),
	)
}
