// Package returns works out how much of a past sale can still be returned
// and submits return requests against fresh availability.
package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tiendapos/internal/apperr"
	"tiendapos/internal/applog"
	"tiendapos/internal/cache"
	"tiendapos/internal/domain"
)

// Line is one original sale item as offered for return.
type Line struct {
	SaleItemID      string          `json:"sale_item_id"`
	ProductID       string          `json:"product_id"`
	ProductName     string          `json:"product_name"`
	ProductCode     string          `json:"product_code"`
	PriceType       string          `json:"price_type"`
	ParentItemID    string          `json:"parent_item_id,omitempty"`
	IsGift          bool            `json:"is_gift"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Original        int             `json:"original"`
	AlreadyReturned int             `json:"already_returned"`
	Available       int             `json:"available"`
	Selected        bool            `json:"selected"`
	ReturnQuantity  int             `json:"return_quantity"`
}

// Anomaly is a sale item whose recorded returns exceed what was sold.
type Anomaly struct {
	SaleItemID      string
	ProductID       string
	Original        int
	AlreadyReturned int
}

func (a Anomaly) String() string {
	return fmt.Sprintf("item %s (%s): returned %d of %d sold", a.SaleItemID, a.ProductID, a.AlreadyReturned, a.Original)
}

// ComputeLines derives availability per item. Over-returned items are kept
// with zero availability and reported as anomalies.
func ComputeLines(detail domain.SaleDetail) ([]Line, []Anomaly) {
	lines := make([]Line, 0, len(detail.Items))
	var anomalies []Anomaly
	for _, item := range detail.Items {
		available := item.QuantitySold - item.QuantityReturned
		if item.QuantityReturned > item.QuantitySold {
			anomalies = append(anomalies, Anomaly{
				SaleItemID:      item.ID,
				ProductID:       item.ProductID,
				Original:        item.QuantitySold,
				AlreadyReturned: item.QuantityReturned,
			})
		}
		if available < 0 {
			available = 0
		}
		lines = append(lines, Line{
			SaleItemID:      item.ID,
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			ProductCode:     item.ProductCode,
			PriceType:       item.PriceType,
			ParentItemID:    item.ParentItemID,
			IsGift:          item.IsGift,
			UnitPrice:       item.UnitPrice,
			Original:        item.QuantitySold,
			AlreadyReturned: item.QuantityReturned,
			Available:       available,
		})
	}
	return lines, anomalies
}

type Backend interface {
	GetSaleWithReturnInfo(ctx context.Context, saleID string) (domain.SaleDetail, error)
	ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.ReturnResponse, error)
}

type Input struct {
	SaleID string
	Lines  []Line
	Reason string
	Notes  string
	UserID string
}

type Processor struct {
	backend Backend
	cache   cache.Cache
	ttl     time.Duration
	logger  *zap.Logger
}

func NewProcessor(backend Backend, store cache.Cache, ttl time.Duration, logger *zap.Logger) *Processor {
	if store == nil {
		store = cache.Noop{}
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Processor{
		backend: backend,
		cache:   store,
		ttl:     ttl,
		logger:  applog.OrNop(logger).Named("returns"),
	}
}

// LoadSale returns the sale detail, served from cache when possible, with
// its computed lines.
func (p *Processor) LoadSale(ctx context.Context, saleID string) (domain.SaleDetail, []Line, []Anomaly, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.SaleDetail{}, nil, nil, apperr.Validation("sale id is required")
	}
	detail, err := cache.ReadThrough(ctx, p.cache, cache.SaleDetailKey(saleID), p.ttl, func(ctx context.Context) (domain.SaleDetail, error) {
		return p.backend.GetSaleWithReturnInfo(ctx, saleID)
	})
	if err != nil {
		return domain.SaleDetail{}, nil, nil, err
	}
	lines, anomalies := ComputeLines(detail)
	for _, a := range anomalies {
		p.logger.Warn("sale item over-returned", zap.String("sale_id", saleID), zap.String("detail", a.String()))
	}
	return detail, lines, anomalies, nil
}

// History returns the returns already recorded for a sale.
func (p *Processor) History(ctx context.Context, saleID string) ([]domain.ReturnInfo, error) {
	return cache.ReadThrough(ctx, p.cache, cache.SaleHistoryKey(saleID), p.ttl, func(ctx context.Context) ([]domain.ReturnInfo, error) {
		detail, err := p.backend.GetSaleWithReturnInfo(ctx, saleID)
		if err != nil {
			return nil, err
		}
		return detail.ReturnHistory, nil
	})
}

// Process submits the selected lines. Availability is checked again against
// a fresh copy of the sale so a stale screen cannot over-return.
func (p *Processor) Process(ctx context.Context, in Input) (domain.ReturnResponse, error) {
	saleID := strings.TrimSpace(in.SaleID)
	if saleID == "" {
		return domain.ReturnResponse{}, apperr.Validation("sale id is required")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return domain.ReturnResponse{}, apperr.Validation("a return reason is required")
	}

	selected := make([]Line, 0, len(in.Lines))
	for _, line := range in.Lines {
		if line.Selected && line.ReturnQuantity > 0 {
			selected = append(selected, line)
		}
	}
	if len(selected) == 0 {
		return domain.ReturnResponse{}, apperr.Validation("select at least one item to return")
	}

	fresh, err := p.backend.GetSaleWithReturnInfo(ctx, saleID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	freshLines, _ := ComputeLines(fresh)
	byID := make(map[string]Line, len(freshLines))
	for _, line := range freshLines {
		byID[line.SaleItemID] = line
	}

	requested := make(map[string]int, len(selected))
	items := make([]domain.ReturnItemRequest, 0, len(selected))
	for _, line := range selected {
		current, ok := byID[line.SaleItemID]
		if !ok {
			return domain.ReturnResponse{}, apperr.Validationf("item %s does not belong to sale %s", line.SaleItemID, saleID)
		}
		if current.AlreadyReturned > current.Original {
			return domain.ReturnResponse{}, apperr.Integrity(fmt.Sprintf("item %s has more returned than sold", current.SaleItemID))
		}
		requested[current.SaleItemID] += line.ReturnQuantity
		if requested[current.SaleItemID] > current.Available {
			_ = p.cache.Delete(ctx, cache.SaleDetailKey(saleID))
			return domain.ReturnResponse{}, apperr.Validationf("only %d unit(s) of %s can still be returned", current.Available, current.ProductName)
		}
		items = append(items, domain.ReturnItemRequest{
			SaleItemID: current.SaleItemID,
			ProductID:  current.ProductID,
			Quantity:   line.ReturnQuantity,
			UnitPrice:  current.UnitPrice,
		})
	}

	resp, err := p.backend.ProcessReturn(ctx, domain.ReturnRequest{
		SaleID: saleID,
		Reason: strings.TrimSpace(in.Reason),
		Notes:  strings.TrimSpace(in.Notes),
		UserID: in.UserID,
		Items:  items,
	})
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	if err := p.cache.Delete(ctx, cache.SaleDetailKey(saleID), cache.SaleHistoryKey(saleID)); err != nil {
		p.logger.Warn("sale cache invalidation failed", zap.String("sale_id", saleID), zap.Error(err))
	}
	p.logger.Info("return processed",
		zap.String("sale_id", saleID),
		zap.String("return_id", resp.ReturnID),
		zap.String("voucher_code", resp.VoucherCode),
		zap.String("total_refunded", resp.TotalRefunded.StringFixed(2)),
	)
	return resp, nil
}
