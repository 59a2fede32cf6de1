package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Cache stores JSON-encodable values. Get reports a miss with false and a nil error.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

const (
	KitCatalogKey       = "catalog:kits"
	PromotionCatalogKey = "catalog:promotions"
)

func ActiveShiftKey(registerID string) string {
	return "shift:active:" + registerID
}

func ShiftDetailsKey(shiftID string) string {
	return "shift:details:" + shiftID
}

func SaleDetailKey(saleID string) string {
	return "sale:detail:" + saleID
}

func SaleHistoryKey(saleID string) string {
	return "sale:returns:" + saleID
}

type Noop struct{}

func (Noop) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (Noop) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (Noop) Delete(_ context.Context, _ ...string) error {
	return nil
}

// Memory is a process-local cache used when no redis is configured.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	if ok && !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	return nil
}

// Has reports whether key holds a live entry.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return false
	}
	return entry.expiresAt.IsZero() || m.now().Before(entry.expiresAt)
}

// ReadThrough serves key from c, or loads it and stores the result for ttl.
// A failing cache degrades to a direct load.
func ReadThrough[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		c = Noop{}
	}
	var cached T
	if ok, err := c.Get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	_ = c.Set(ctx, key, value, ttl)
	return value, nil
}
