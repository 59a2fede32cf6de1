// Package shift tracks the cash shift of one register and reconciles the
// drawer when it closes.
package shift

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tiendapos/internal/apperr"
	"tiendapos/internal/applog"
	"tiendapos/internal/cache"
	"tiendapos/internal/domain"
)

type Backend interface {
	GetActiveShift(ctx context.Context, registerID string) (*domain.Shift, error)
	OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.Shift, error)
	CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.Shift, error)
	RegisterCashMovement(ctx context.Context, req domain.CashMovementRequest) (domain.CashMovement, error)
	GetShiftDetails(ctx context.Context, shiftID string) (domain.ShiftDetails, error)
}

type CloseInput struct {
	FinalCash         decimal.Decimal
	CardTerminalTotal decimal.Decimal
	Notes             string
	UserID            string
	TerminalConfirmed bool
}

type Reconciliation struct {
	TheoreticalCash   decimal.Decimal `json:"theoretical_cash"`
	FinalCash         decimal.Decimal `json:"final_cash"`
	CashDifference    decimal.Decimal `json:"cash_difference"`
	CardExpectedTotal decimal.Decimal `json:"card_expected_total"`
	CardTerminalTotal decimal.Decimal `json:"card_terminal_total"`
	CardDifference    decimal.Decimal `json:"card_difference"`
	NotesRequired     bool            `json:"notes_required"`
}

// TheoreticalCash is what the drawer should hold: opening float plus cash
// movements in, minus movements out, plus cash taken in sales.
func TheoreticalCash(details domain.ShiftDetails) decimal.Decimal {
	return details.Shift.InitialCash.
		Add(details.TotalMovementsIn).
		Sub(details.TotalMovementsOut).
		Add(details.TotalCashSales)
}

func Reconcile(details domain.ShiftDetails, finalCash, cardTerminalTotal decimal.Decimal) Reconciliation {
	theoretical := TheoreticalCash(details)
	cashDiff := finalCash.Sub(theoretical)
	return Reconciliation{
		TheoreticalCash:   theoretical,
		FinalCash:         finalCash,
		CashDifference:    cashDiff,
		CardExpectedTotal: details.TotalCardSales,
		CardTerminalTotal: cardTerminalTotal,
		CardDifference:    cardTerminalTotal.Sub(details.TotalCardSales),
		NotesRequired:     !cashDiff.IsZero(),
	}
}

// Tracker holds the register's view of its shift. The backend is the source
// of truth; the local copy is refreshed after every write.
type Tracker struct {
	backend    Backend
	cache      cache.Cache
	registerID string
	ttl        time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	current *domain.Shift
}

func NewTracker(backend Backend, store cache.Cache, registerID string, ttl time.Duration, logger *zap.Logger) *Tracker {
	if store == nil {
		store = cache.Noop{}
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Tracker{
		backend:    backend,
		cache:      store,
		registerID: registerID,
		ttl:        ttl,
		logger:     applog.OrNop(logger).Named("shift").With(zap.String("register_id", registerID)),
	}
}

// Current returns the last known open shift without calling the backend.
func (t *Tracker) Current() *domain.Shift {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	s := *t.current
	return &s
}

// Active returns the open shift for the register, or nil when there is none.
func (t *Tracker) Active(ctx context.Context) (*domain.Shift, error) {
	active, err := cache.ReadThrough(ctx, t.cache, cache.ActiveShiftKey(t.registerID), t.ttl, func(ctx context.Context) (*domain.Shift, error) {
		return t.backend.GetActiveShift(ctx, t.registerID)
	})
	if err != nil {
		return nil, err
	}
	if active != nil && !active.IsOpen() {
		active = nil
	}
	t.adopt(active)
	return active, nil
}

func (t *Tracker) Open(ctx context.Context, initialCash decimal.Decimal, userID string) (domain.Shift, error) {
	if initialCash.IsNegative() {
		return domain.Shift{}, apperr.Validation("initial cash must not be negative")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.Shift{}, apperr.Validation("user id is required")
	}

	opened, err := t.backend.OpenShift(ctx, domain.ShiftOpenRequest{
		InitialCash: initialCash,
		UserID:      userID,
		RegisterID:  t.registerID,
	})
	if err != nil {
		return domain.Shift{}, err
	}
	if !opened.IsOpen() {
		return domain.Shift{}, apperr.Integrity("backend returned a shift that is not open")
	}

	t.adopt(&opened)
	t.invalidate(ctx, opened.ID)
	t.logger.Info("shift opened", zap.String("shift_id", opened.ID), zap.String("code", opened.Code))
	return opened, nil
}

func (t *Tracker) RegisterMovement(ctx context.Context, movementType string, amount decimal.Decimal, concept, description string) (domain.CashMovement, error) {
	if movementType != domain.MovementIn && movementType != domain.MovementOut {
		return domain.CashMovement{}, apperr.Validationf("movement type must be %s or %s", domain.MovementIn, domain.MovementOut)
	}
	if !amount.IsPositive() {
		return domain.CashMovement{}, apperr.Validation("movement amount must be greater than zero")
	}
	concept = strings.TrimSpace(concept)
	if concept == "" {
		return domain.CashMovement{}, apperr.Validation("movement concept is required")
	}

	active, err := t.requireActive(ctx)
	if err != nil {
		return domain.CashMovement{}, err
	}
	movement, err := t.backend.RegisterCashMovement(ctx, domain.CashMovementRequest{
		ShiftID:     active.ID,
		Type:        movementType,
		Amount:      amount,
		Concept:     concept,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		return domain.CashMovement{}, err
	}
	_ = t.cache.Delete(ctx, cache.ShiftDetailsKey(active.ID))
	return movement, nil
}

// Details returns the running totals of the open shift.
func (t *Tracker) Details(ctx context.Context) (domain.ShiftDetails, error) {
	active, err := t.requireActive(ctx)
	if err != nil {
		return domain.ShiftDetails{}, err
	}
	return cache.ReadThrough(ctx, t.cache, cache.ShiftDetailsKey(active.ID), t.ttl, func(ctx context.Context) (domain.ShiftDetails, error) {
		return t.backend.GetShiftDetails(ctx, active.ID)
	})
}

// Close reconciles against fresh shift totals and closes the shift. The
// card terminal cut must be confirmed, and any cash difference needs notes.
func (t *Tracker) Close(ctx context.Context, in CloseInput) (domain.Shift, Reconciliation, error) {
	if !in.TerminalConfirmed {
		return domain.Shift{}, Reconciliation{}, apperr.Validation("confirm the card terminal cut before closing the shift")
	}
	if in.FinalCash.IsNegative() || in.CardTerminalTotal.IsNegative() {
		return domain.Shift{}, Reconciliation{}, apperr.Validation("declared amounts must not be negative")
	}
	if strings.TrimSpace(in.UserID) == "" {
		return domain.Shift{}, Reconciliation{}, apperr.Validation("user id is required")
	}

	active, err := t.requireActive(ctx)
	if err != nil {
		return domain.Shift{}, Reconciliation{}, err
	}
	details, err := t.backend.GetShiftDetails(ctx, active.ID)
	if err != nil {
		return domain.Shift{}, Reconciliation{}, err
	}

	rec := Reconcile(details, in.FinalCash, in.CardTerminalTotal)
	notes := strings.TrimSpace(in.Notes)
	if rec.NotesRequired && notes == "" {
		return domain.Shift{}, rec, apperr.Validationf("cash differs from expected by %s; explain it in the notes", rec.CashDifference.StringFixed(2))
	}

	closed, err := t.backend.CloseShift(ctx, domain.ShiftCloseRequest{
		ShiftID:           active.ID,
		FinalCash:         in.FinalCash,
		CardTerminalTotal: in.CardTerminalTotal,
		Notes:             notes,
		UserID:            in.UserID,
	})
	if err != nil {
		return domain.Shift{}, rec, err
	}
	if closed.Status != domain.ShiftStatusClosed {
		return domain.Shift{}, rec, apperr.Integrity("backend returned a shift that is not closed")
	}

	t.adopt(nil)
	t.invalidate(ctx, active.ID)
	t.logger.Info("shift closed",
		zap.String("shift_id", closed.ID),
		zap.String("expected_cash", rec.TheoreticalCash.StringFixed(2)),
		zap.String("cash_difference", rec.CashDifference.StringFixed(2)),
		zap.String("card_difference", rec.CardDifference.StringFixed(2)),
	)
	return closed, rec, nil
}

func (t *Tracker) requireActive(ctx context.Context) (*domain.Shift, error) {
	active, err := t.Active(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, apperr.Validation("no cash shift is open on this register")
	}
	return active, nil
}

func (t *Tracker) adopt(s *domain.Shift) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s == nil {
		t.current = nil
		return
	}
	cp := *s
	t.current = &cp
}

func (t *Tracker) invalidate(ctx context.Context, shiftID string) {
	if err := t.cache.Delete(ctx, cache.ActiveShiftKey(t.registerID), cache.ShiftDetailsKey(shiftID)); err != nil {
		t.logger.Warn("shift cache invalidation failed", zap.Error(err))
	}
}
