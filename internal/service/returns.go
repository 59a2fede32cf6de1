package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tiendapos/internal/domain"
	"tiendapos/internal/store"
	"tiendapos/internal/xid"
)

func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.ReturnResponse, error) {
	saleID := strings.TrimSpace(req.SaleID)
	reason := strings.TrimSpace(req.Reason)
	if saleID == "" {
		return domain.ReturnResponse{}, fmt.Errorf("%w: sale id is required", store.ErrInvalidTransaction)
	}
	if reason == "" {
		return domain.ReturnResponse{}, fmt.Errorf("%w: return reason is required", store.ErrInvalidTransaction)
	}
	if len(req.Items) == 0 {
		return domain.ReturnResponse{}, fmt.Errorf("%w: return has no items", store.ErrInvalidTransaction)
	}

	sale, err := s.repo.FindSaleByID(ctx, saleID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	returned, err := s.repo.GetReturnedQtyBySale(ctx, sale.ID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	itemsByID := make(map[string]domain.SaleItem, len(sale.Items))
	for _, item := range sale.Items {
		itemsByID[item.ID] = item
	}

	requested := make(map[string]int, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return domain.ReturnResponse{}, fmt.Errorf("%w: return quantity must be positive", store.ErrInvalidTransaction)
		}
		item, ok := itemsByID[line.SaleItemID]
		if !ok {
			return domain.ReturnResponse{}, fmt.Errorf("%w: item %s is not part of sale %s", store.ErrInvalidTransaction, line.SaleItemID, sale.Folio)
		}
		requested[item.ID] += line.Quantity
		if returned[item.ID]+requested[item.ID] > item.Quantity {
			return domain.ReturnResponse{}, fmt.Errorf("%w: only %d of %s can be returned", store.ErrInvalidTransaction, item.Quantity-returned[item.ID], item.ProductName)
		}
	}

	// A gift leaves with its trigger: either in this return or an earlier one.
	for itemID := range requested {
		item := itemsByID[itemID]
		if item.PriceType != domain.PriceTypeKitItem || item.ParentItemID == "" {
			continue
		}
		if requested[item.ParentItemID] == 0 && returned[item.ParentItemID] == 0 {
			return domain.ReturnResponse{}, fmt.Errorf("%w: gift %s can only be returned with its kit", store.ErrInvalidTransaction, item.ProductName)
		}
	}

	ret := domain.Return{
		ID:          xid.New("ret"),
		SaleID:      sale.ID,
		StoreID:     defaultString(sale.StoreID, s.defaultStoreID),
		Reason:      reason,
		Notes:       strings.TrimSpace(req.Notes),
		UserID:      actorOr(ctx, req.UserID),
		VoucherCode: xid.VoucherCode(),
		CreatedAt:   s.now(),
		Total:       decimal.Zero,
	}
	for _, line := range req.Items {
		item := itemsByID[line.SaleItemID]
		subtotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		ret.Items = append(ret.Items, domain.ReturnItem{
			ID:         xid.New("retitem"),
			SaleItemID: item.ID,
			ProductID:  item.ProductID,
			Quantity:   line.Quantity,
			UnitPrice:  item.UnitPrice,
			Subtotal:   subtotal,
		})
		ret.Total = ret.Total.Add(subtotal)
	}

	saved, err := s.repo.CreateReturn(ctx, ret)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	s.logAudit(ctx, "return_create", "return", saved.ID, fmt.Sprintf("sale=%s,total=%s,voucher=%s", sale.Folio, saved.Total.StringFixed(2), saved.VoucherCode))
	s.logger.Info("return stored",
		zap.String("return_id", saved.ID),
		zap.String("sale_id", sale.ID),
		zap.String("refund", saved.Total.StringFixed(2)),
	)

	return domain.ReturnResponse{
		ReturnID:      saved.ID,
		VoucherCode:   saved.VoucherCode,
		TotalRefunded: saved.Total,
	}, nil
}
