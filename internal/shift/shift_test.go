package shift

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tiendapos/internal/apperr"
	"tiendapos/internal/cache"
	"tiendapos/internal/domain"
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

type fakeBackend struct {
	active      *domain.Shift
	details     domain.ShiftDetails
	activeCalls int
	closeReqs   []domain.ShiftCloseRequest
	movements   []domain.CashMovementRequest
	openStatus  string
}

func (f *fakeBackend) GetActiveShift(context.Context, string) (*domain.Shift, error) {
	f.activeCalls++
	if f.active == nil {
		return nil, nil
	}
	s := *f.active
	return &s, nil
}

func (f *fakeBackend) OpenShift(_ context.Context, req domain.ShiftOpenRequest) (domain.Shift, error) {
	if f.active != nil {
		return domain.Shift{}, apperr.Backend(apperr.CodeConflict, "shift already open")
	}
	status := domain.ShiftStatusOpen
	if f.openStatus != "" {
		status = f.openStatus
	}
	f.active = &domain.Shift{ID: "shift-1", Code: "main-store-2026-03-01-001", RegisterID: req.RegisterID, InitialCash: req.InitialCash, Status: status}
	f.details = domain.ShiftDetails{Shift: *f.active}
	return *f.active, nil
}

func (f *fakeBackend) CloseShift(_ context.Context, req domain.ShiftCloseRequest) (domain.Shift, error) {
	f.closeReqs = append(f.closeReqs, req)
	closed := *f.active
	closed.Status = domain.ShiftStatusClosed
	closed.FinalCash = req.FinalCash
	f.active = nil
	return closed, nil
}

func (f *fakeBackend) RegisterCashMovement(_ context.Context, req domain.CashMovementRequest) (domain.CashMovement, error) {
	f.movements = append(f.movements, req)
	if req.Type == domain.MovementIn {
		f.details.TotalMovementsIn = f.details.TotalMovementsIn.Add(req.Amount)
	} else {
		f.details.TotalMovementsOut = f.details.TotalMovementsOut.Add(req.Amount)
	}
	return domain.CashMovement{ID: "mov", ShiftID: req.ShiftID, Type: req.Type, Amount: req.Amount, Concept: req.Concept}, nil
}

func (f *fakeBackend) GetShiftDetails(context.Context, string) (domain.ShiftDetails, error) {
	return f.details, nil
}

func TestReconcileRequiresNotesOnCashDifference(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	tracker := NewTracker(backend, cache.NewMemory(), "register-1", time.Minute, nil)

	_, err := tracker.Open(ctx, dec(500), "cashier")
	require.NoError(t, err)
	_, err = tracker.RegisterMovement(ctx, domain.MovementIn, dec(200), "cambio", "")
	require.NoError(t, err)
	_, err = tracker.RegisterMovement(ctx, domain.MovementOut, dec(50), "garrafon de agua", "")
	require.NoError(t, err)
	backend.details.TotalCashSales = dec(300)
	backend.details.TotalCardSales = dec(120)

	details, err := tracker.Details(ctx)
	require.NoError(t, err)
	require.Equal(t, "950", TheoreticalCash(details).String())

	_, rec, err := tracker.Close(ctx, CloseInput{FinalCash: dec(900), CardTerminalTotal: dec(120), UserID: "cashier", TerminalConfirmed: true})
	require.True(t, apperr.IsValidation(err))
	require.True(t, rec.NotesRequired)
	require.Equal(t, "-50", rec.CashDifference.String())
	require.Empty(t, backend.closeReqs)

	closed, rec, err := tracker.Close(ctx, CloseInput{FinalCash: dec(900), CardTerminalTotal: dec(120), Notes: "  faltante por cambio  ", UserID: "cashier", TerminalConfirmed: true})
	require.NoError(t, err)
	require.Equal(t, domain.ShiftStatusClosed, closed.Status)
	require.True(t, rec.CardDifference.IsZero())
	require.Equal(t, "faltante por cambio", backend.closeReqs[0].Notes)
	require.Nil(t, tracker.Current())

	active, err := tracker.Active(ctx)
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestCloseRequiresTerminalConfirmationEvenWithoutDifference(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	tracker := NewTracker(backend, nil, "register-1", 0, nil)
	_, err := tracker.Open(ctx, dec(100), "cashier")
	require.NoError(t, err)

	_, _, err = tracker.Close(ctx, CloseInput{FinalCash: dec(100), UserID: "cashier"})
	require.True(t, apperr.IsValidation(err))

	_, rec, err := tracker.Close(ctx, CloseInput{FinalCash: dec(100), UserID: "cashier", TerminalConfirmed: true})
	require.NoError(t, err)
	require.False(t, rec.NotesRequired)
}

func TestMovementValidation(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	tracker := NewTracker(backend, nil, "register-1", 0, nil)

	_, err := tracker.RegisterMovement(ctx, domain.MovementIn, dec(10), "cambio", "")
	require.True(t, apperr.IsValidation(err), "no open shift")

	_, err = tracker.Open(ctx, dec(0), "cashier")
	require.NoError(t, err)

	for _, tc := range []struct {
		kind    string
		amount  decimal.Decimal
		concept string
	}{
		{kind: "SIDEWAYS", amount: dec(10), concept: "x"},
		{kind: domain.MovementIn, amount: dec(0), concept: "x"},
		{kind: domain.MovementOut, amount: dec(-5), concept: "x"},
		{kind: domain.MovementOut, amount: dec(5), concept: "   "},
	} {
		_, err := tracker.RegisterMovement(ctx, tc.kind, tc.amount, tc.concept, "")
		require.True(t, apperr.IsValidation(err))
	}
	require.Empty(t, backend.movements)
}

func TestOpenValidatesAndConfirmsStatus(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(&fakeBackend{}, nil, "register-1", 0, nil)
	_, err := tracker.Open(ctx, dec(-1), "cashier")
	require.True(t, apperr.IsValidation(err))

	odd := NewTracker(&fakeBackend{openStatus: domain.ShiftStatusClosed}, nil, "register-1", 0, nil)
	_, err = odd.Open(ctx, dec(100), "cashier")
	require.True(t, apperr.IsKind(err, apperr.KindIntegrity))
	require.Nil(t, odd.Current())

	backend := &fakeBackend{active: &domain.Shift{ID: "shift-0", Status: domain.ShiftStatusOpen}}
	busy := NewTracker(backend, nil, "register-1", 0, nil)
	_, err = busy.Open(ctx, dec(100), "cashier")
	require.True(t, apperr.HasCode(err, apperr.CodeConflict))
}

func TestActiveReadsThroughCacheUntilOpen(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	store := cache.NewMemory()
	tracker := NewTracker(backend, store, "register-1", time.Minute, nil)

	for i := 0; i < 2; i++ {
		active, err := tracker.Active(ctx)
		require.NoError(t, err)
		require.Nil(t, active)
	}
	require.Equal(t, 1, backend.activeCalls)

	opened, err := tracker.Open(ctx, dec(250), "cashier")
	require.NoError(t, err)
	active, err := tracker.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, opened.ID, active.ID)
	require.Equal(t, 2, backend.activeCalls)
}

func TestReconcileComputesCardDifference(t *testing.T) {
	details := domain.ShiftDetails{
		Shift:             domain.Shift{InitialCash: dec(500)},
		TotalMovementsIn:  dec(200),
		TotalMovementsOut: dec(50),
		TotalCashSales:    dec(300),
		TotalCardSales:    dec(410),
	}
	rec := Reconcile(details, dec(950), dec(400))
	require.False(t, rec.NotesRequired)
	require.True(t, rec.CashDifference.IsZero())
	require.Equal(t, "-10", rec.CardDifference.String())
}
