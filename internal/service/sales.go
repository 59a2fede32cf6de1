package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tiendapos/internal/domain"
	"tiendapos/internal/promotion"
	"tiendapos/internal/store"
)

type saleCatalog struct {
	products   map[string]domain.Product
	kits       map[string]domain.KitDefinition
	promotions map[string]domain.Promotion
}

func (s *Service) loadSaleCatalog(ctx context.Context, items []domain.SaleItemRequest) (saleCatalog, error) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	addID := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, item := range items {
		addID(item.ProductID)
	}

	var (
		kits       []domain.KitDefinition
		promotions []domain.Promotion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		kits, err = s.repo.ListActiveKits(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		promotions, err = s.repo.ListActivePromotions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return saleCatalog{}, err
	}

	promoByID := make(map[string]domain.Promotion, len(promotions))
	for _, p := range promotions {
		promoByID[p.ID] = p
		for productID := range p.RequiredProducts {
			addID(productID)
		}
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return saleCatalog{}, err
	}
	return saleCatalog{products: products, kits: kitIndex(kits), promotions: promoByID}, nil
}

func (s *Service) ProcessSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	if len(req.Items) == 0 {
		return domain.SaleResponse{}, fmt.Errorf("%w: sale has no items", store.ErrInvalidTransaction)
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.SaleResponse{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidTransaction, req.PaymentMethod)
	}
	if req.DiscountPercentage.IsNegative() || req.DiscountPercentage.GreaterThan(hundred) {
		return domain.SaleResponse{}, fmt.Errorf("%w: discount percentage must be between 0 and 100", store.ErrInvalidTransaction)
	}
	if req.CashAmount.IsNegative() || req.CardTransferAmount.IsNegative() {
		return domain.SaleResponse{}, fmt.Errorf("%w: payment amounts must not be negative", store.ErrInvalidTransaction)
	}
	req.UserID = actorOr(ctx, req.UserID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.VoucherCode = strings.ToUpper(strings.TrimSpace(req.VoucherCode))

	shift, err := s.repo.GetShiftByID(ctx, req.ShiftID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if !shift.IsOpen() {
		return domain.SaleResponse{}, fmt.Errorf("%w: shift %s is not open", store.ErrInvalidTransaction, shift.ID)
	}

	catalog, err := s.loadSaleCatalog(ctx, req.Items)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if err := validateKitCredits(req.Items, catalog); err != nil {
		return domain.SaleResponse{}, err
	}
	items, err := priceItems(req.Items, catalog)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	gross := decimal.Zero
	for _, item := range items {
		gross = gross.Add(item.Subtotal)
	}
	discount := gross.Mul(req.DiscountPercentage).Div(hundred).Round(2)
	total := gross.Sub(discount)

	voucherUsed := decimal.Zero
	if req.VoucherCode != "" {
		voucher, err := s.repo.GetVoucher(ctx, req.VoucherCode)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		if !voucher.Active || !voucher.Balance.IsPositive() {
			return domain.SaleResponse{}, fmt.Errorf("%w: voucher %s has no balance", store.ErrInvalidTransaction, voucher.Code)
		}
		voucherUsed = decimal.Min(voucher.Balance, total)
	}

	change, err := settlePayment(req, total.Sub(voucherUsed))
	if err != nil {
		return domain.SaleResponse{}, err
	}

	sale := domain.Sale{
		StoreID:            shift.StoreID,
		ShiftID:            shift.ID,
		UserID:             req.UserID,
		CustomerID:         req.CustomerID,
		PaymentMethod:      req.PaymentMethod,
		Subtotal:           gross,
		DiscountPercentage: req.DiscountPercentage,
		DiscountAmount:     discount,
		Total:              total,
		VoucherCode:        req.VoucherCode,
		VoucherAmount:      voucherUsed,
		CashAmount:         req.CashAmount,
		CardTransferAmount: req.CardTransferAmount,
		Change:             change,
		Notes:              strings.TrimSpace(req.Notes),
		Status:             domain.SaleStatusCompleted,
		CreatedAt:          s.now(),
		Items:              items,
	}
	saved, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.logAudit(ctx, "sale_create", "sale", saved.ID, fmt.Sprintf("folio=%s,total=%s,method=%s", saved.Folio, saved.Total.StringFixed(2), saved.PaymentMethod))
	s.logger.Info("sale stored",
		zap.String("sale_id", saved.ID),
		zap.String("folio", saved.Folio),
		zap.Int("items", len(saved.Items)),
		zap.Bool("print", req.ShouldPrint),
	)

	return domain.SaleResponse{
		ID:          saved.ID,
		Folio:       saved.Folio,
		Total:       saved.Total,
		Change:      saved.Change,
		VoucherUsed: saved.VoucherAmount,
	}, nil
}

// validateKitCredits gives each trigger line max_selections x quantity gift
// credits. Gift lines must hang off a trigger of a kit that offers them and
// may not overspend its credit; a required kit with credit left is
// incomplete.
func validateKitCredits(items []domain.SaleItemRequest, catalog saleCatalog) error {
	byID := make(map[string]domain.SaleItemRequest, len(items))
	credits := make(map[string]int)
	triggerKit := make(map[string]domain.KitDefinition)
	for _, item := range items {
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item quantity must be positive", store.ErrInvalidTransaction)
		}
		if item.ID != "" {
			byID[item.ID] = item
		}
		if item.PriceType == domain.PriceTypeKitItem {
			continue
		}
		if kit, ok := catalog.kits[item.ProductID]; ok && item.ID != "" {
			credits[item.ID] = kit.MaxSelections * item.Quantity
			triggerKit[item.ID] = kit
		}
	}

	for _, item := range items {
		if item.PriceType != domain.PriceTypeKitItem {
			continue
		}
		parent, ok := byID[item.ParentItemID]
		if !ok || parent.PriceType == domain.PriceTypeKitItem {
			return fmt.Errorf("%w: gift %s has no trigger line", store.ErrInvalidTransaction, item.ProductID)
		}
		kit, ok := triggerKit[parent.ID]
		if !ok || !kit.IsGift(item.ProductID) {
			return fmt.Errorf("%w: product %s is not a gift of the kit on its trigger", store.ErrInvalidTransaction, item.ProductID)
		}
		credits[parent.ID] -= item.Quantity
		if credits[parent.ID] < 0 {
			return fmt.Errorf("%w: too many gifts for kit %s", store.ErrInvalidTransaction, kit.Name)
		}
	}

	for itemID, left := range credits {
		kit := triggerKit[itemID]
		if left > 0 && kit.IsRequired && len(kit.Items) > 0 {
			return fmt.Errorf("%w: kit %s is incomplete", store.ErrInvalidTransaction, kit.Name)
		}
	}
	return nil
}

// priceItems fixes the unit price of every item on the server side.
func priceItems(items []domain.SaleItemRequest, catalog saleCatalog) ([]domain.SaleItem, error) {
	instances := make(map[string]map[string]int)
	instancePromo := make(map[string]string)

	priced := make([]domain.SaleItem, 0, len(items))
	for _, item := range items {
		product, ok := catalog.products[item.ProductID]
		if !ok || !product.Active {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}

		var unit decimal.Decimal
		switch item.PriceType {
		case domain.PriceTypeKitItem:
			unit = decimal.Zero
		case domain.PriceTypeRetail, "":
			item.PriceType = domain.PriceTypeRetail
			unit = product.RetailPrice
		case domain.PriceTypeWholesale:
			unit = product.EffectiveWholesale()
		case domain.PriceTypePromo:
			promo, ok := catalog.promotions[item.PromotionID]
			if !ok || item.PromotionInstanceID == "" {
				return nil, fmt.Errorf("%w: promotion %s is not active", store.ErrInvalidTransaction, item.PromotionID)
			}
			retail := make(map[string]decimal.Decimal, len(promo.RequiredProducts))
			for productID := range promo.RequiredProducts {
				if p, ok := catalog.products[productID]; ok {
					retail[productID] = p.RetailPrice
				}
			}
			prices, ok := promotion.UnitPrices(promo, retail)
			if _, part := promo.RequiredProducts[item.ProductID]; !ok || !part {
				return nil, fmt.Errorf("%w: product %s is not part of promotion %s", store.ErrInvalidTransaction, item.ProductID, promo.Name)
			}
			unit = prices[item.ProductID]
			if instances[item.PromotionInstanceID] == nil {
				instances[item.PromotionInstanceID] = make(map[string]int)
			}
			instances[item.PromotionInstanceID][item.ProductID] += item.Quantity
			instancePromo[item.PromotionInstanceID] = promo.ID
		default:
			return nil, fmt.Errorf("%w: unknown price type %q", store.ErrInvalidTransaction, item.PriceType)
		}

		priced = append(priced, domain.SaleItem{
			ID:                  item.ID,
			ProductID:           product.ID,
			ProductName:         product.Name,
			ProductCode:         product.Code,
			Quantity:            item.Quantity,
			UnitPrice:           unit,
			PriceType:           item.PriceType,
			KitOptionID:         item.KitOptionID,
			ParentItemID:        item.ParentItemID,
			PromotionID:         item.PromotionID,
			PromotionInstanceID: item.PromotionInstanceID,
			DiscountAmount:      decimal.Zero,
			Subtotal:            unit.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}

	for instanceID, got := range instances {
		promo := catalog.promotions[instancePromo[instanceID]]
		if len(got) != len(promo.RequiredProducts) {
			return nil, fmt.Errorf("%w: promotion %s is incomplete", store.ErrInvalidTransaction, promo.Name)
		}
		for productID, qty := range promo.RequiredProducts {
			if got[productID] != qty {
				return nil, fmt.Errorf("%w: promotion %s is incomplete", store.ErrInvalidTransaction, promo.Name)
			}
		}
	}
	return priced, nil
}

// settlePayment checks the tender against the amount due and returns the
// change owed to the customer.
func settlePayment(req domain.SaleRequest, due decimal.Decimal) (decimal.Decimal, error) {
	threshold := due.Sub(paymentEpsilon)
	switch req.PaymentMethod {
	case domain.PaymentCash:
		if req.CashAmount.LessThan(threshold) {
			return decimal.Zero, fmt.Errorf("%w: cash received does not cover %s", store.ErrInvalidTransaction, due.StringFixed(2))
		}
		return positiveOrZero(req.CashAmount.Sub(due)), nil
	case domain.PaymentCardTransfer:
		if req.CardTransferAmount.LessThan(threshold) {
			return decimal.Zero, fmt.Errorf("%w: card amount does not cover %s", store.ErrInvalidTransaction, due.StringFixed(2))
		}
		return decimal.Zero, nil
	case domain.PaymentMixed:
		paid := req.CashAmount.Add(req.CardTransferAmount)
		if paid.LessThan(threshold) {
			return decimal.Zero, fmt.Errorf("%w: payment does not cover %s", store.ErrInvalidTransaction, due.StringFixed(2))
		}
		return decimal.Min(positiveOrZero(paid.Sub(due)), req.CashAmount), nil
	case domain.PaymentCredit:
		if req.CustomerID == "" {
			return decimal.Zero, fmt.Errorf("%w: credit sales require a customer", store.ErrInvalidTransaction)
		}
		if !req.CashAmount.IsZero() || !req.CardTransferAmount.IsZero() {
			return decimal.Zero, fmt.Errorf("%w: credit sales take no cash or card amount", store.ErrInvalidTransaction)
		}
		return decimal.Zero, nil
	}
	return decimal.Zero, fmt.Errorf("%w: unsupported payment method", store.ErrInvalidTransaction)
}

func positiveOrZero(v decimal.Decimal) decimal.Decimal {
	if v.IsPositive() {
		return v.Round(2)
	}
	return decimal.Zero
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCardTransfer, domain.PaymentMixed, domain.PaymentCredit:
		return true
	default:
		return false
	}
}

func (s *Service) GetSaleWithReturnInfo(ctx context.Context, req domain.SaleDetailRequest) (domain.SaleDetail, error) {
	saleID := strings.TrimSpace(req.SaleID)
	if saleID == "" {
		return domain.SaleDetail{}, fmt.Errorf("%w: sale id is required", store.ErrInvalidTransaction)
	}
	sale, err := s.repo.FindSaleByID(ctx, saleID)
	if err != nil {
		return domain.SaleDetail{}, err
	}

	var (
		returned map[string]int
		history  []domain.Return
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		returned, err = s.repo.GetReturnedQtyBySale(gctx, sale.ID)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = s.repo.ListReturnsBySale(gctx, sale.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.SaleDetail{}, err
	}

	detail := domain.SaleDetail{
		Sale: domain.SaleHeader{
			ID:                 sale.ID,
			Folio:              sale.Folio,
			SaleDate:           sale.CreatedAt,
			Status:             sale.Status,
			PaymentMethod:      sale.PaymentMethod,
			Subtotal:           sale.Subtotal,
			DiscountAmount:     sale.DiscountAmount,
			Total:              sale.Total,
			CashAmount:         sale.CashAmount,
			CardTransferAmount: sale.CardTransferAmount,
			Change:             sale.Change,
			Notes:              sale.Notes,
			UserID:             sale.UserID,
		},
		Items:         make([]domain.SaleItemReturnInfo, 0, len(sale.Items)),
		ReturnHistory: make([]domain.ReturnInfo, 0, len(history)),
	}
	for _, item := range sale.Items {
		detail.Items = append(detail.Items, domain.SaleItemReturnInfo{
			ID:               item.ID,
			ProductID:        item.ProductID,
			ProductName:      item.ProductName,
			ProductCode:      item.ProductCode,
			QuantitySold:     item.Quantity,
			QuantityReturned: returned[item.ID],
			UnitPrice:        item.UnitPrice,
			Subtotal:         item.Subtotal,
			PriceType:        item.PriceType,
			KitOptionID:      item.KitOptionID,
			ParentItemID:     item.ParentItemID,
			PromotionID:      item.PromotionID,
			IsGift:           item.PriceType == domain.PriceTypeKitItem,
		})
	}
	for _, ret := range history {
		detail.ReturnHistory = append(detail.ReturnHistory, domain.ReturnInfo{
			ID:         ret.ID,
			Folio:      ret.Folio,
			ReturnDate: ret.CreatedAt,
			Total:      ret.Total,
			Reason:     ret.Reason,
			UserID:     ret.UserID,
		})
	}
	return detail, nil
}
