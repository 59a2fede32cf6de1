package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tiendapos/internal/domain"
	"tiendapos/internal/store"
)

// GetActiveShift returns nil without error when the register has no open shift.
func (s *Service) GetActiveShift(ctx context.Context, req domain.ActiveShiftRequest) (*domain.Shift, error) {
	registerID := strings.TrimSpace(req.RegisterID)
	if registerID == "" {
		return nil, fmt.Errorf("%w: register id is required", store.ErrInvalidTransaction)
	}
	shift, err := s.repo.GetActiveShift(ctx, s.defaultStoreID, registerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return shift, nil
}

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.Shift, error) {
	registerID := strings.TrimSpace(req.RegisterID)
	userID := actorOr(ctx, req.UserID)
	if registerID == "" {
		return domain.Shift{}, fmt.Errorf("%w: register id is required", store.ErrInvalidTransaction)
	}
	if userID == "" {
		return domain.Shift{}, fmt.Errorf("%w: opening user is required", store.ErrInvalidTransaction)
	}
	if req.InitialCash.IsNegative() {
		return domain.Shift{}, fmt.Errorf("%w: initial cash must not be negative", store.ErrInvalidTransaction)
	}
	if req.InitialCash.GreaterThan(s.maxInitialCash) {
		return domain.Shift{}, fmt.Errorf("%w: initial cash above %s", store.ErrInvalidTransaction, s.maxInitialCash.StringFixed(2))
	}

	now := s.now()
	opened, err := s.repo.CountShiftsOpenedOn(ctx, s.defaultStoreID, now)
	if err != nil {
		return domain.Shift{}, err
	}

	shift, err := s.repo.CreateShift(ctx, domain.Shift{
		Code:          fmt.Sprintf("%s-%s-%03d", s.defaultStoreID, now.Format("2006-01-02"), opened+1),
		StoreID:       s.defaultStoreID,
		RegisterID:    registerID,
		InitialCash:   req.InitialCash,
		OpeningDate:   now,
		OpeningUserID: userID,
		Status:        domain.ShiftStatusOpen,
	})
	if err != nil {
		return domain.Shift{}, err
	}

	s.logAudit(ctx, "shift_open", "shift", shift.ID, fmt.Sprintf("register=%s,initial=%s", registerID, req.InitialCash.StringFixed(2)))
	s.logger.Info("shift opened", zap.String("shift_id", shift.ID), zap.String("code", shift.Code))
	return *shift, nil
}

func (s *Service) RegisterCashMovement(ctx context.Context, req domain.CashMovementRequest) (domain.CashMovement, error) {
	movementType := strings.ToUpper(strings.TrimSpace(req.Type))
	concept := strings.TrimSpace(req.Concept)
	if movementType != domain.MovementIn && movementType != domain.MovementOut {
		return domain.CashMovement{}, fmt.Errorf("%w: movement type must be IN or OUT", store.ErrInvalidTransaction)
	}
	if !req.Amount.IsPositive() {
		return domain.CashMovement{}, fmt.Errorf("%w: movement amount must be positive", store.ErrInvalidTransaction)
	}
	if concept == "" {
		return domain.CashMovement{}, fmt.Errorf("%w: movement concept is required", store.ErrInvalidTransaction)
	}

	shift, err := s.repo.GetShiftByID(ctx, strings.TrimSpace(req.ShiftID))
	if err != nil {
		return domain.CashMovement{}, err
	}
	if !shift.IsOpen() {
		return domain.CashMovement{}, fmt.Errorf("%w: shift %s is closed", store.ErrInvalidTransaction, shift.ID)
	}

	movement, err := s.repo.CreateCashMovement(ctx, domain.CashMovement{
		ShiftID:     shift.ID,
		Type:        movementType,
		Amount:      req.Amount,
		Concept:     concept,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.CashMovement{}, err
	}

	s.logAudit(ctx, "cash_movement", "shift", shift.ID, fmt.Sprintf("type=%s,amount=%s,concept=%s", movementType, req.Amount.StringFixed(2), concept))
	return *movement, nil
}

func (s *Service) GetShiftDetails(ctx context.Context, req domain.ShiftDetailsRequest) (domain.ShiftDetails, error) {
	shiftID := strings.TrimSpace(req.ShiftID)
	if shiftID == "" {
		return domain.ShiftDetails{}, fmt.Errorf("%w: shift id is required", store.ErrInvalidTransaction)
	}
	shift, err := s.repo.GetShiftByID(ctx, shiftID)
	if err != nil {
		return domain.ShiftDetails{}, err
	}

	var (
		movements []domain.CashMovement
		totals    domain.ShiftSalesTotals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		movements, err = s.repo.ListCashMovements(gctx, shift.ID)
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = s.repo.ShiftSalesSummary(gctx, shift.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.ShiftDetails{}, err
	}

	in, out := decimal.Zero, decimal.Zero
	for _, m := range movements {
		switch m.Type {
		case domain.MovementIn:
			in = in.Add(m.Amount)
		case domain.MovementOut:
			out = out.Add(m.Amount)
		}
	}

	return domain.ShiftDetails{
		Shift:             *shift,
		Movements:         movements,
		TotalMovementsIn:  in,
		TotalMovementsOut: out,
		SalesCount:        totals.SalesCount,
		TotalSales:        totals.TotalSales,
		TotalCashSales:    totals.CashSales,
		TotalCardSales:    totals.CardSales,
		TotalCreditSales:  totals.CreditSales,
		TotalVoucherSales: totals.VoucherSales,
		TheoreticalCash:   shift.InitialCash.Add(in).Sub(out).Add(totals.CashSales),
	}, nil
}

func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.Shift, error) {
	userID := actorOr(ctx, req.UserID)
	if userID == "" {
		return domain.Shift{}, fmt.Errorf("%w: closing user is required", store.ErrInvalidTransaction)
	}
	if req.FinalCash.IsNegative() || req.CardTerminalTotal.IsNegative() {
		return domain.Shift{}, fmt.Errorf("%w: closing amounts must not be negative", store.ErrInvalidTransaction)
	}

	details, err := s.GetShiftDetails(ctx, domain.ShiftDetailsRequest{ShiftID: req.ShiftID})
	if err != nil {
		return domain.Shift{}, err
	}
	if !details.Shift.IsOpen() {
		return domain.Shift{}, fmt.Errorf("%w: shift %s is already closed", store.ErrInvalidTransaction, details.Shift.ID)
	}

	cashDiff := req.FinalCash.Sub(details.TheoreticalCash)
	cardDiff := req.CardTerminalTotal.Sub(details.TotalCardSales)
	notes := strings.TrimSpace(req.Notes)
	if !cashDiff.IsZero() && notes == "" {
		return domain.Shift{}, fmt.Errorf("%w: notes are required when the cash count does not match", store.ErrInvalidTransaction)
	}

	closed, err := s.repo.CloseShift(ctx, domain.ShiftClosing{
		ShiftID:           details.Shift.ID,
		UserID:            userID,
		ClosedAt:          s.now(),
		FinalCash:         req.FinalCash,
		ExpectedCash:      details.TheoreticalCash,
		CashDifference:    cashDiff,
		CardTerminalTotal: req.CardTerminalTotal,
		CardExpectedTotal: details.TotalCardSales,
		CardDifference:    cardDiff,
		CashWithdrawal:    details.TotalCashSales,
		Notes:             notes,
	})
	if err != nil {
		return domain.Shift{}, err
	}

	s.logAudit(ctx, "shift_close", "shift", closed.ID, fmt.Sprintf("expected=%s,final=%s,diff=%s", closed.ExpectedCash.StringFixed(2), closed.FinalCash.StringFixed(2), closed.CashDifference.StringFixed(2)))
	s.logger.Info("shift closed",
		zap.String("shift_id", closed.ID),
		zap.String("cash_difference", closed.CashDifference.StringFixed(2)),
		zap.String("card_difference", closed.CardDifference.StringFixed(2)),
	)
	return *closed, nil
}
