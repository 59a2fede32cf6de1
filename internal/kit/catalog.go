// Package kit resolves the gift selections owed by kit trigger lines before
// a sale can be submitted.
package kit

import (
	"context"
	"sort"
	"time"

	"tiendapos/internal/cache"
	"tiendapos/internal/domain"
)

// Catalog answers which kit, if any, a product triggers.
type Catalog interface {
	KitForProduct(productID string) (domain.KitDefinition, bool)
}

// StaticCatalog indexes a fixed set of kits by trigger product. When two
// active kits share a trigger the one with the lowest ID wins.
type StaticCatalog struct {
	kits      []domain.KitDefinition
	byTrigger map[string]domain.KitDefinition
}

func NewCatalog(kits []domain.KitDefinition) *StaticCatalog {
	ordered := make([]domain.KitDefinition, 0, len(kits))
	for _, k := range kits {
		if k.Active {
			ordered = append(ordered, k)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	byTrigger := make(map[string]domain.KitDefinition)
	for _, k := range ordered {
		for _, productID := range k.TriggerProductIDs {
			if _, taken := byTrigger[productID]; !taken {
				byTrigger[productID] = k
			}
		}
	}
	return &StaticCatalog{kits: ordered, byTrigger: byTrigger}
}

func (c *StaticCatalog) KitForProduct(productID string) (domain.KitDefinition, bool) {
	k, ok := c.byTrigger[productID]
	return k, ok
}

func (c *StaticCatalog) Kits() []domain.KitDefinition {
	out := make([]domain.KitDefinition, len(c.kits))
	copy(out, c.kits)
	return out
}

type Source interface {
	GetAllActiveKits(ctx context.Context) ([]domain.KitDefinition, error)
}

// LoadCatalog builds a catalog from the active kits, reading through store.
func LoadCatalog(ctx context.Context, source Source, store cache.Cache, ttl time.Duration) (*StaticCatalog, error) {
	kits, err := cache.ReadThrough(ctx, store, cache.KitCatalogKey, ttl, source.GetAllActiveKits)
	if err != nil {
		return nil, err
	}
	return NewCatalog(kits), nil
}
