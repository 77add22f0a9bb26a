package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// cacheEntry wraps a cached value with its expiry
type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *cacheEntry[T]) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// versionFloorTTL is how long an invalidation keeps rejecting older fills
const versionFloorTTL = time.Hour

// InMemoryOrderCache implements purchasing.OrderCache in process memory.
// Orders are copied on the way in and out so callers never share state.
type InMemoryOrderCache struct {
	orders sync.Map // map[uuid.UUID]*cacheEntry[purchasing.PurchaseOrder]
	// mu orders writes against invalidations; floors holds the last
	// committed version per invalidated order
	mu      sync.Mutex
	floors  map[uuid.UUID]*cacheEntry[int]
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped atomic.Bool

	hits   atomic.Int64
	misses atomic.Int64
}

// NewInMemoryOrderCache creates the cache and starts its expiry sweep
func NewInMemoryOrderCache(logger *zap.Logger) *InMemoryOrderCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &InMemoryOrderCache{
		floors: make(map[uuid.UUID]*cacheEntry[int]),
		logger: logger,
		stopCh: make(chan struct{}),
	}
	go c.sweepLoop(defaultCleanupInterval)
	return c
}

// Get returns a copy of the cached order, or nil on a miss
func (c *InMemoryOrderCache) Get(_ context.Context, id uuid.UUID) (*purchasing.PurchaseOrder, error) {
	v, ok := c.orders.Load(id)
	if !ok {
		c.misses.Add(1)
		return nil, nil
	}
	entry := v.(*cacheEntry[purchasing.PurchaseOrder])
	if entry.isExpired(time.Now()) {
		c.orders.CompareAndDelete(id, v)
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)
	return cloneOrder(&entry.value), nil
}

// Set stores a copy of order for ttl. Orders older than the cached copy or
// than the last invalidated version are ignored.
func (c *InMemoryOrderCache) Set(_ context.Context, order *purchasing.PurchaseOrder, ttl time.Duration) error {
	if order == nil {
		return nil
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if floor, ok := c.floors[order.ID]; ok && !floor.isExpired(now) && order.Version < floor.value {
		c.logger.Debug("Stale order fill dropped",
			zap.String("order_id", order.ID.String()),
			zap.Int("version", order.Version),
			zap.Int("committed_version", floor.value),
		)
		return nil
	}
	if v, ok := c.orders.Load(order.ID); ok {
		current := v.(*cacheEntry[purchasing.PurchaseOrder])
		if !current.isExpired(now) && order.Version < current.value.Version {
			return nil
		}
	}
	c.orders.Store(order.ID, &cacheEntry[purchasing.PurchaseOrder]{
		value:     *cloneOrder(order),
		expiresAt: now.Add(ttl),
	})
	return nil
}

// Invalidate drops the order and remembers version so that a fill started
// before the commit cannot store the old state
func (c *InMemoryOrderCache) Invalidate(_ context.Context, id uuid.UUID, version int) error {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders.Delete(id)
	if floor, ok := c.floors[id]; ok && !floor.isExpired(now) && floor.value > version {
		version = floor.value
	}
	c.floors[id] = &cacheEntry[int]{value: version, expiresAt: now.Add(versionFloorTTL)}
	return nil
}

// Stats returns the hit and miss counters
func (c *InMemoryOrderCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close stops the expiry sweep. Safe to call more than once.
func (c *InMemoryOrderCache) Close() error {
	if c.stopped.CompareAndSwap(false, true) {
		close(c.stopCh)
	}
	return nil
}

func (c *InMemoryOrderCache) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			removed := 0
			c.orders.Range(func(key, v any) bool {
				if v.(*cacheEntry[purchasing.PurchaseOrder]).isExpired(now) {
					c.orders.CompareAndDelete(key, v)
					removed++
				}
				return true
			})
			c.mu.Lock()
			for id, floor := range c.floors {
				if floor.isExpired(now) {
					delete(c.floors, id)
				}
			}
			c.mu.Unlock()
			if removed > 0 {
				c.logger.Debug("Expired cached orders removed", zap.Int("count", removed))
			}
		}
	}
}

// cloneOrder deep-copies the order and its items and marks the copy loaded
func cloneOrder(o *purchasing.PurchaseOrder) *purchasing.PurchaseOrder {
	cp := *o
	if o.ExpectedDate != nil {
		d := *o.ExpectedDate
		cp.ExpectedDate = &d
	}
	cp.Items = make([]purchasing.PurchaseOrderItem, len(o.Items))
	for i, item := range o.Items {
		if item.QCPassed != nil {
			qc := *item.QCPassed
			item.QCPassed = &qc
		}
		cp.Items[i] = item
	}
	cp.MarkLoaded()
	return &cp
}

var _ purchasing.OrderCache = (*InMemoryOrderCache)(nil)
