// Package sale validates the payment for the current cart and submits it as
// a single process_sale command.
package sale

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"tiendapos/internal/apperr"
	"tiendapos/internal/applog"
	"tiendapos/internal/cart"
	"tiendapos/internal/domain"
)

// Tolerance absorbs rounding when comparing tendered amounts to the total.
var Tolerance = decimal.RequireFromString("0.01")

type Processor interface {
	ProcessSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error)
}

type Input struct {
	Lines              []cart.Line
	PaymentMethod      string
	CashAmount         decimal.Decimal
	CardTransferAmount decimal.Decimal
	DiscountPercentage decimal.Decimal
	UserID             string
	ShiftID            string
	CustomerID         string
	VoucherCode        string
	Notes              string
	ShouldPrint        bool
}

type Submitter struct {
	processor Processor
	inflight  *semaphore.Weighted
	logger    *zap.Logger
}

func NewSubmitter(processor Processor, logger *zap.Logger) *Submitter {
	return &Submitter{
		processor: processor,
		inflight:  semaphore.NewWeighted(1),
		logger:    applog.OrNop(logger).Named("sale"),
	}
}

// Submit validates in and dispatches it. Only one submission runs at a time;
// a concurrent call fails with a conflict instead of waiting. Once
// dispatched the command is not cancelled with ctx.
func (s *Submitter) Submit(ctx context.Context, in Input) (domain.SaleResponse, error) {
	if !s.inflight.TryAcquire(1) {
		return domain.SaleResponse{}, apperr.Conflict("a sale is already being submitted")
	}
	defer s.inflight.Release(1)

	req, totals, err := BuildRequest(in)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	resp, err := s.processor.ProcessSale(context.WithoutCancel(ctx), req)
	if err != nil {
		s.logger.Warn("sale rejected",
			zap.String("shift_id", req.ShiftID),
			zap.String("payment_method", req.PaymentMethod),
			zap.String("total", totals.Total.StringFixed(2)),
			zap.Error(err),
		)
		return domain.SaleResponse{}, err
	}
	s.logger.Info("sale completed",
		zap.String("sale_id", resp.ID),
		zap.String("folio", resp.Folio),
		zap.String("total", resp.Total.StringFixed(2)),
	)
	return resp, nil
}

// BuildRequest checks the cart and payment locally and maps the lines to
// request items. Gift lines travel as kit_item children of their trigger.
func BuildRequest(in Input) (domain.SaleRequest, cart.Totals, error) {
	if len(in.Lines) == 0 {
		return domain.SaleRequest{}, cart.Totals{}, apperr.Validation("the cart is empty")
	}
	if strings.TrimSpace(in.ShiftID) == "" {
		return domain.SaleRequest{}, cart.Totals{}, apperr.Validation("an open cash shift is required to sell")
	}
	if strings.TrimSpace(in.UserID) == "" {
		return domain.SaleRequest{}, cart.Totals{}, apperr.Validation("user id is required")
	}

	totals, err := cart.ComputeTotals(in.Lines, in.DiscountPercentage)
	if err != nil {
		return domain.SaleRequest{}, cart.Totals{}, err
	}
	voucher := strings.TrimSpace(in.VoucherCode)
	if err := ValidatePayment(in.PaymentMethod, in.CashAmount, in.CardTransferAmount, totals.Total, in.CustomerID, voucher); err != nil {
		return domain.SaleRequest{}, cart.Totals{}, err
	}

	items := make([]domain.SaleItemRequest, 0, len(in.Lines))
	for _, line := range in.Lines {
		if line.Quantity < 1 {
			return domain.SaleRequest{}, cart.Totals{}, apperr.Validationf("line %s has no quantity", line.UUID)
		}
		items = append(items, domain.SaleItemRequest{
			ID:                  line.UUID,
			ParentItemID:        line.KitTriggerID,
			ProductID:           line.Product.ID,
			Quantity:            line.Quantity,
			PriceType:           line.PriceType,
			KitOptionID:         line.KitOptionID,
			PromotionID:         line.PromotionID,
			PromotionInstanceID: line.PromotionInstanceID,
		})
	}

	return domain.SaleRequest{
		DiscountPercentage: in.DiscountPercentage,
		CustomerID:         strings.TrimSpace(in.CustomerID),
		UserID:             in.UserID,
		ShiftID:            in.ShiftID,
		PaymentMethod:      in.PaymentMethod,
		CashAmount:         in.CashAmount,
		CardTransferAmount: in.CardTransferAmount,
		Notes:              strings.TrimSpace(in.Notes),
		Items:              items,
		ShouldPrint:        in.ShouldPrint,
		VoucherCode:        voucher,
	}, totals, nil
}

// ValidatePayment applies the tender rules for each payment method. With a
// voucher the balance is unknown here, so shortfalls are left to the backend.
func ValidatePayment(method string, cash, card, total decimal.Decimal, customerID, voucherCode string) error {
	if cash.IsNegative() || card.IsNegative() {
		return apperr.Validation("payment amounts must not be negative")
	}
	due := total.Sub(Tolerance)
	checkShortfall := voucherCode == ""

	switch method {
	case domain.PaymentCash:
		if checkShortfall && cash.LessThan(due) {
			return apperr.Validation("cash received does not cover the total")
		}
	case domain.PaymentCardTransfer:
		if checkShortfall && card.LessThan(due) {
			return apperr.Validation("card or transfer amount does not cover the total")
		}
	case domain.PaymentMixed:
		if !cash.IsPositive() || !card.IsPositive() {
			return apperr.Validation("mixed payment needs both a cash and a card amount")
		}
		if checkShortfall && cash.Add(card).LessThan(due) {
			return apperr.Validation("cash plus card does not cover the total")
		}
	case domain.PaymentCredit:
		if strings.TrimSpace(customerID) == "" {
			return apperr.Validation("credit sales require a customer")
		}
		if !cash.IsZero() || !card.IsZero() {
			return apperr.Validation("credit sales take no cash or card amount")
		}
	default:
		return apperr.Validationf("unknown payment method %q", method)
	}
	return nil
}
