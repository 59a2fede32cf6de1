package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tiendapos/internal/apperr"
	"tiendapos/internal/cache"
	"tiendapos/internal/domain"
	"tiendapos/internal/store"
)

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return apperr.Backend(apperr.CodeForbidden, "catalog changes require the admin role")
	}
	return nil
}

func (s *Service) UpsertProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	p.ID = strings.TrimSpace(p.ID)
	p.Code = strings.TrimSpace(p.Code)
	p.Name = strings.TrimSpace(p.Name)
	if p.ID == "" || p.Code == "" || p.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: product id, code and name are required", store.ErrInvalidTransaction)
	}
	if p.RetailPrice.IsNegative() || p.WholesalePrice.IsNegative() || p.Stock < 0 {
		return domain.Product{}, fmt.Errorf("%w: prices and stock must not be negative", store.ErrInvalidTransaction)
	}
	p.RetailPrice = p.RetailPrice.Round(2)
	p.WholesalePrice = p.WholesalePrice.Round(2)

	if err := s.repo.UpsertProduct(ctx, p); err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_upsert", "product", p.ID, fmt.Sprintf("code=%s,retail=%s,stock=%d", p.Code, p.RetailPrice.StringFixed(2), p.Stock))
	return p, nil
}

func (s *Service) UpsertKit(ctx context.Context, kit domain.KitDefinition) (domain.KitDefinition, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.KitDefinition{}, err
	}
	kit.ID = strings.TrimSpace(kit.ID)
	kit.Name = strings.TrimSpace(kit.Name)
	if kit.ID == "" || kit.Name == "" {
		return domain.KitDefinition{}, fmt.Errorf("%w: kit id and name are required", store.ErrInvalidTransaction)
	}
	if len(kit.TriggerProductIDs) == 0 {
		return domain.KitDefinition{}, fmt.Errorf("%w: kit %s needs at least one trigger product", store.ErrInvalidTransaction, kit.Name)
	}
	if kit.MaxSelections < 0 {
		return domain.KitDefinition{}, fmt.Errorf("%w: max selections must not be negative", store.ErrInvalidTransaction)
	}

	ids := append([]string(nil), kit.TriggerProductIDs...)
	for _, item := range kit.Items {
		if item.Quantity < 1 {
			return domain.KitDefinition{}, fmt.Errorf("%w: gift %s needs a quantity of at least 1", store.ErrInvalidTransaction, item.ProductID)
		}
		if kit.IsTrigger(item.ProductID) {
			return domain.KitDefinition{}, fmt.Errorf("%w: product %s cannot be both trigger and gift", store.ErrInvalidTransaction, item.ProductID)
		}
		ids = append(ids, item.ProductID)
	}
	if err := s.requireProducts(ctx, ids); err != nil {
		return domain.KitDefinition{}, err
	}

	if err := s.repo.UpsertKit(ctx, kit); err != nil {
		return domain.KitDefinition{}, err
	}
	s.invalidateCatalog(ctx, cache.KitCatalogKey)
	s.logAudit(ctx, "kit_upsert", "kit", kit.ID, fmt.Sprintf("triggers=%s,gifts=%d,required=%t", strings.Join(kit.TriggerProductIDs, "|"), len(kit.Items), kit.IsRequired))
	return kit, nil
}

func (s *Service) UpsertPromotion(ctx context.Context, promo domain.Promotion) (domain.Promotion, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Promotion{}, err
	}
	promo.ID = strings.TrimSpace(promo.ID)
	promo.Name = strings.TrimSpace(promo.Name)
	if promo.ID == "" || promo.Name == "" {
		return domain.Promotion{}, fmt.Errorf("%w: promotion id and name are required", store.ErrInvalidTransaction)
	}
	if promo.ComboPrice.IsNegative() {
		return domain.Promotion{}, fmt.Errorf("%w: combo price must not be negative", store.ErrInvalidTransaction)
	}
	if len(promo.RequiredProducts) == 0 {
		return domain.Promotion{}, fmt.Errorf("%w: promotion %s has no required products", store.ErrInvalidTransaction, promo.Name)
	}
	ids := make([]string, 0, len(promo.RequiredProducts))
	for productID, qty := range promo.RequiredProducts {
		if qty < 1 {
			return domain.Promotion{}, fmt.Errorf("%w: product %s needs a quantity of at least 1", store.ErrInvalidTransaction, productID)
		}
		ids = append(ids, productID)
	}
	if err := s.requireProducts(ctx, ids); err != nil {
		return domain.Promotion{}, err
	}
	promo.ComboPrice = promo.ComboPrice.Round(2)

	if err := s.repo.UpsertPromotion(ctx, promo); err != nil {
		return domain.Promotion{}, err
	}
	s.invalidateCatalog(ctx, cache.PromotionCatalogKey)
	s.logAudit(ctx, "promotion_upsert", "promotion", promo.ID, fmt.Sprintf("combo=%s,units=%d", promo.ComboPrice.StringFixed(2), promo.RequiredUnits()))
	return promo, nil
}

func (s *Service) UpsertCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Customer{}, err
	}
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	if c.ID == "" || c.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer id and name are required", store.ErrInvalidTransaction)
	}
	if c.CreditLimit.IsNegative() || c.CurrentBalance.IsNegative() {
		return domain.Customer{}, fmt.Errorf("%w: credit amounts must not be negative", store.ErrInvalidTransaction)
	}

	if err := s.repo.UpsertCustomer(ctx, c); err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_upsert", "customer", c.ID, fmt.Sprintf("limit=%s", c.CreditLimit.StringFixed(2)))
	return c, nil
}

func (s *Service) requireProducts(ctx context.Context, ids []string) error {
	found, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
	}
	return nil
}

func (s *Service) invalidateCatalog(ctx context.Context, key string) {
	if err := s.catalogCache.Delete(ctx, key); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
