package service

import (
	"context"
	"fmt"
	"strings"

	"tiendapos/internal/cache"
	"tiendapos/internal/domain"
	"tiendapos/internal/store"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProductByID(ctx context.Context, req domain.ProductRequest) (domain.Product, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", store.ErrInvalidTransaction)
	}
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) GetAllActivePromotions(ctx context.Context) ([]domain.Promotion, error) {
	return cache.ReadThrough(ctx, s.catalogCache, cache.PromotionCatalogKey, s.catalogTTL, s.repo.ListActivePromotions)
}

func (s *Service) GetAllActiveKits(ctx context.Context) ([]domain.KitDefinition, error) {
	return cache.ReadThrough(ctx, s.catalogCache, cache.KitCatalogKey, s.catalogTTL, s.repo.ListActiveKits)
}

// kitIndex maps each trigger product to its kit. The lowest kit ID wins
// when two kits share a trigger, matching the register's catalog.
func kitIndex(kits []domain.KitDefinition) map[string]domain.KitDefinition {
	index := make(map[string]domain.KitDefinition)
	for _, k := range kits {
		if !k.Active {
			continue
		}
		for _, productID := range k.TriggerProductIDs {
			if existing, taken := index[productID]; taken && existing.ID <= k.ID {
				continue
			}
			index[productID] = k
		}
	}
	return index
}
