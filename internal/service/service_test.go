package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tiendapos/internal/apperr"
	"tiendapos/internal/cache"
	"tiendapos/internal/domain"
	"tiendapos/internal/gateway"
	"tiendapos/internal/store"
	"tiendapos/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, nil, "main-store", decimal.NewFromInt(5000)), repo
}

func cashierContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func openTestShift(t *testing.T, svc *Service, ctx context.Context, initial string) domain.Shift {
	t.Helper()
	shift, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{
		InitialCash: dec(initial),
		RegisterID:  "caja-1",
	})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}
	return shift
}

func kitSale(shiftID string) domain.SaleRequest {
	return domain.SaleRequest{
		ShiftID:       shiftID,
		PaymentMethod: domain.PaymentCash,
		CashAmount:    dec("200"),
		Items: []domain.SaleItemRequest{
			{ID: "line-crema", ProductID: "prod-crema", Quantity: 1, PriceType: domain.PriceTypeRetail},
			{ID: "line-gift", ParentItemID: "line-crema", ProductID: "prod-muestra", Quantity: 1, PriceType: domain.PriceTypeKitItem, KitOptionID: "kit-crema"},
		},
	}
}

func TestProcessSaleRequiresOpenShift(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ProcessSale(cashierContext(), kitSale("shift-missing"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown shift, got %v", err)
	}
}

func TestProcessSaleWithKitGiftChargesTriggerOnly(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierContext()
	shift := openTestShift(t, svc, ctx, "500")

	resp, err := svc.ProcessSale(ctx, kitSale(shift.ID))
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if !resp.Total.Equal(dec("120")) {
		t.Fatalf("expected total 120, got %s", resp.Total)
	}
	if !resp.Change.Equal(dec("80")) {
		t.Fatalf("expected change 80, got %s", resp.Change)
	}
	if resp.Folio != "00000001" {
		t.Fatalf("expected first folio, got %s", resp.Folio)
	}

	gift, err := repo.GetProductByID(ctx, "prod-muestra")
	if err != nil {
		t.Fatalf("load gift product: %v", err)
	}
	if gift.Stock != 199 {
		t.Fatalf("expected gift stock to drop to 199, got %d", gift.Stock)
	}

	sale, err := repo.FindSaleByID(ctx, resp.ID)
	if err != nil {
		t.Fatalf("find sale: %v", err)
	}
	if sale.UserID != "cashier" {
		t.Fatalf("expected actor as sale user, got %q", sale.UserID)
	}
	if !sale.Items[1].UnitPrice.IsZero() {
		t.Fatalf("expected gift to be free, got %s", sale.Items[1].UnitPrice)
	}
}

func TestProcessSaleRejectsIncompleteRequiredKit(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierContext()
	shift := openTestShift(t, svc, ctx, "500")

	req := kitSale(shift.ID)
	req.Items = req.Items[:1]
	_, err := svc.ProcessSale(ctx, req)
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected incomplete kit to be rejected, got %v", err)
	}
}

func TestProcessSaleRejectsExtraGifts(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierContext()
	shift := openTestShift(t, svc, ctx, "500")

	req := kitSale(shift.ID)
	req.Items[1].Quantity = 2
	if _, err := svc.ProcessSale(ctx, req); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected over-selected kit to be rejected, got %v", err)
	}

	req = kitSale(shift.ID)
	req.Items[1].ProductID = "prod-jabon"
	if _, err := svc.ProcessSale(ctx, req); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected foreign gift to be rejected, got %v", err)
	}
}

func TestProcessSalePricesPromotionOnServer(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierContext()
	shift := openTestShift(t, svc, ctx, "500")

	req := domain.SaleRequest{
		ShiftID:            shift.ID,
		PaymentMethod:      domain.PaymentCardTransfer,
		CardTransferAmount: dec("50.01"),
		Items: []domain.SaleItemRequest{
			{ID: "a", ProductID: "prod-refresco", Quantity: 2, PriceType: domain.PriceTypePromo, PromotionID: "promo-botana", PromotionInstanceID: "inst-1"},
			{ID: "b", ProductID: "prod-papas", Quantity: 1, PriceType: domain.PriceTypePromo, PromotionID: "promo-botana", PromotionInstanceID: "inst-1"},
		},
	}
	resp, err := svc.ProcessSale(ctx, req)
	if err != nil {
		t.Fatalf("promo sale failed: %v", err)
	}
	// 2 x 15.52 + 18.97
	if !resp.Total.Equal(dec("50.01")) {
		t.Fatalf("expected promo total 50.01, got %s", resp.Total)
	}

	req.Items = req.Items[:1]
	if _, err := svc.ProcessSale(ctx, req); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected incomplete promotion to be rejected, got %v", err)
	}
}

func TestProcessSalePaymentRules(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierContext()
	shift := openTestShift(t, svc, ctx, "500")

	tests := []struct {
		name    string
		mutate  func(*domain.SaleRequest)
		wantErr error
	}{
		{
			name:    "cash short",
			mutate:  func(r *domain.SaleRequest) { r.CashAmount = dec("100") },
			wantErr: store.ErrInvalidTransaction,
		},
		{
			name:   "cash within tolerance",
			mutate: func(r *domain.SaleRequest) { r.CashAmount = dec("119.99") },
		},
		{
			name: "mixed",
			mutate: func(r *domain.SaleRequest) {
				r.PaymentMethod = domain.PaymentMixed
				r.CashAmount = dec("70")
				r.CardTransferAmount = dec("50")
			},
		},
		{
			name: "credit without customer",
			mutate: func(r *domain.SaleRequest) {
				r.PaymentMethod = domain.PaymentCredit
				r.CashAmount = decimal.Zero
			},
			wantErr: store.ErrInvalidTransaction,
		},
		{
			name: "credit over limit",
			mutate: func(r *domain.SaleRequest) {
				r.PaymentMethod = domain.PaymentCredit
				r.CashAmount = decimal.Zero
				r.CustomerID = "cust-002"
			},
			wantErr: store.ErrCreditLimitExceeded,
		},
		{
			name: "credit within limit",
			mutate: func(r *domain.SaleRequest) {
				r.PaymentMethod = domain.PaymentCredit
				r.CashAmount = decimal.Zero
				r.CustomerID = "cust-001"
			},
		},
		{
			name:    "discount above 100",
			mutate:  func(r *domain.SaleRequest) { r.DiscountPercentage = dec("101") },
			wantErr: store.ErrInvalidTransaction,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := kitSale(shift.ID)
			tc.mutate(&req)
			_, err := svc.ProcessSale(ctx, req)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestProcessSaleAppliesDiscount(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierContext()
	shift := openTestShift(t, svc, ctx, "500")

	req := kitSale(shift.ID)
	req.DiscountPercentage = dec("12.5")
	resp, err := svc.ProcessSale(ctx, req)
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if !resp.Total.Equal(dec("105")) {
		t.Fatalf("expected 105 after discount, got %s", resp.Total)
	}
}

func TestReturnIssuesVoucherRedeemableOnNextSale(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierContext()
	shift := openTestShift(t, svc, ctx, "500")

	sale, err := svc.ProcessSale(ctx, kitSale(shift.ID))
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	_, err = svc.ProcessReturn(ctx, domain.ReturnRequest{
		SaleID: sale.ID,
		Reason: "defectuoso",
		Items:  []domain.ReturnItemRequest{{SaleItemID: "line-gift", ProductID: "prod-muestra", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected a lone gift return to be rejected, got %v", err)
	}

	ret, err := svc.ProcessReturn(ctx, domain.ReturnRequest{
		SaleID: sale.ID,
		Reason: "defectuoso",
		Items: []domain.ReturnItemRequest{
			{SaleItemID: "line-crema", ProductID: "prod-crema", Quantity: 1},
			{SaleItemID: "line-gift", ProductID: "prod-muestra", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if !ret.TotalRefunded.Equal(dec("120")) {
		t.Fatalf("expected refund 120, got %s", ret.TotalRefunded)
	}
	if !strings.HasPrefix(ret.VoucherCode, "VAL-") {
		t.Fatalf("unexpected voucher code %q", ret.VoucherCode)
	}

	detail, err := svc.GetSaleWithReturnInfo(ctx, domain.SaleDetailRequest{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("sale detail failed: %v", err)
	}
	if len(detail.ReturnHistory) != 1 || detail.ReturnHistory[0].Reason != "defectuoso" {
		t.Fatalf("unexpected return history: %+v", detail.ReturnHistory)
	}
	for _, item := range detail.Items {
		if item.QuantityReturned != item.QuantitySold {
			t.Fatalf("expected %s fully returned, got %d/%d", item.ProductID, item.QuantityReturned, item.QuantitySold)
		}
		if item.IsGift != (item.PriceType == domain.PriceTypeKitItem) {
			t.Fatalf("gift flag mismatch on %s", item.ProductID)
		}
	}

	_, err = svc.ProcessReturn(ctx, domain.ReturnRequest{
		SaleID: sale.ID,
		Reason: "otra vez",
		Items:  []domain.ReturnItemRequest{{SaleItemID: "line-crema", ProductID: "prod-crema", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected over-return to be rejected, got %v", err)
	}

	next := domain.SaleRequest{
		ShiftID:       shift.ID,
		PaymentMethod: domain.PaymentCash,
		VoucherCode:   strings.ToLower(ret.VoucherCode),
		CashAmount:    decimal.Zero,
		Items: []domain.SaleItemRequest{
			{ID: "n1", ProductID: "prod-jabon", Quantity: 2, PriceType: domain.PriceTypeRetail},
		},
	}
	paid, err := svc.ProcessSale(ctx, next)
	if err != nil {
		t.Fatalf("voucher sale failed: %v", err)
	}
	if !paid.VoucherUsed.Equal(dec("50")) {
		t.Fatalf("expected voucher to cover 50, got %s", paid.VoucherUsed)
	}
}

func TestOpenShiftRulesAndCode(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierContext()

	if _, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{InitialCash: dec("6000"), RegisterID: "caja-1"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected initial cash cap to apply, got %v", err)
	}

	shift := openTestShift(t, svc, ctx, "500")
	if !strings.HasPrefix(shift.Code, "main-store-") || !strings.HasSuffix(shift.Code, "-001") {
		t.Fatalf("unexpected shift code %q", shift.Code)
	}
	if shift.OpeningUserID != "cashier" {
		t.Fatalf("expected actor as opening user, got %q", shift.OpeningUserID)
	}

	_, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{InitialCash: dec("100"), RegisterID: "caja-1"})
	if !errors.Is(err, store.ErrShiftAlreadyOpen) {
		t.Fatalf("expected second open to conflict, got %v", err)
	}

	active, err := svc.GetActiveShift(ctx, domain.ActiveShiftRequest{RegisterID: "caja-1"})
	if err != nil || active == nil || active.ID != shift.ID {
		t.Fatalf("expected active shift %s, got %+v (%v)", shift.ID, active, err)
	}
	none, err := svc.GetActiveShift(ctx, domain.ActiveShiftRequest{RegisterID: "caja-2"})
	if err != nil || none != nil {
		t.Fatalf("expected no active shift on caja-2, got %+v (%v)", none, err)
	}
}

func TestCloseShiftReconcilesDrawer(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierContext()
	shift := openTestShift(t, svc, ctx, "500")

	if _, err := svc.ProcessSale(ctx, kitSale(shift.ID)); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if _, err := svc.RegisterCashMovement(ctx, domain.CashMovementRequest{
		ShiftID: shift.ID,
		Type:    "out",
		Amount:  dec("50"),
		Concept: "proveedor",
	}); err != nil {
		t.Fatalf("movement failed: %v", err)
	}
	if _, err := svc.RegisterCashMovement(ctx, domain.CashMovementRequest{
		ShiftID: shift.ID,
		Type:    "SIDEWAYS",
		Amount:  dec("5"),
		Concept: "x",
	}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected bad movement type to be rejected, got %v", err)
	}

	details, err := svc.GetShiftDetails(ctx, domain.ShiftDetailsRequest{ShiftID: shift.ID})
	if err != nil {
		t.Fatalf("details failed: %v", err)
	}
	// 500 initial - 50 out + 120 retained cash
	if !details.TheoreticalCash.Equal(dec("570")) {
		t.Fatalf("expected theoretical cash 570, got %s", details.TheoreticalCash)
	}
	if details.SalesCount != 1 || !details.TotalMovementsOut.Equal(dec("50")) {
		t.Fatalf("unexpected details: %+v", details)
	}

	_, err = svc.CloseShift(ctx, domain.ShiftCloseRequest{ShiftID: shift.ID, FinalCash: dec("520")})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected notes to be required on a difference, got %v", err)
	}

	closed, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{ShiftID: shift.ID, FinalCash: dec("520"), Notes: "faltante"})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if closed.IsOpen() || !closed.CashDifference.Equal(dec("-50")) {
		t.Fatalf("unexpected closed shift: status=%s diff=%s", closed.Status, closed.CashDifference)
	}

	if _, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{ShiftID: shift.ID, FinalCash: dec("570")}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected closing twice to fail, got %v", err)
	}

	actions := map[string]bool{}
	for _, entry := range repo.AuditLogs() {
		actions[entry.Action] = true
		if entry.ActorUsername != "cashier" {
			t.Fatalf("expected cashier actor on %s, got %q", entry.Action, entry.ActorUsername)
		}
	}
	for _, want := range []string{"shift_open", "sale_create", "cash_movement", "shift_close"} {
		if !actions[want] {
			t.Fatalf("expected %s audit entry", want)
		}
	}
}

func TestDispatchMapsErrorsToCodes(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierContext()

	_, err := svc.Dispatch(ctx, "drop_tables", nil)
	if !apperr.HasCode(err, apperr.CodeUnknownCommand) {
		t.Fatalf("expected unknown_command, got %v", err)
	}

	_, err = svc.Dispatch(ctx, gateway.CmdGetProductByID, json.RawMessage(`{"id":"prod-x"}`))
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}

	_, err = svc.Dispatch(ctx, gateway.CmdGetProductByID, json.RawMessage(`{"id":"prod-crema","extra":1}`))
	if !apperr.HasCode(err, apperr.CodeInvalidRequest) {
		t.Fatalf("expected invalid_request for unknown field, got %v", err)
	}

	_, err = svc.Dispatch(ctx, gateway.CmdOpenShift, json.RawMessage(`{"initial_cash":"100","register_id":"caja-1"}`))
	if err != nil {
		t.Fatalf("open via dispatch failed: %v", err)
	}
	_, err = svc.Dispatch(ctx, gateway.CmdOpenShift, json.RawMessage(`{"initial_cash":"100","register_id":"caja-1"}`))
	if !apperr.HasCode(err, apperr.CodeConflict) {
		t.Fatalf("expected conflict on second open, got %v", err)
	}

	result, err := svc.Dispatch(ctx, gateway.CmdGetAllActiveKits, nil)
	if err != nil {
		t.Fatalf("kits failed: %v", err)
	}
	if kits, ok := result.([]domain.KitDefinition); !ok || len(kits) != 1 {
		t.Fatalf("expected one active kit, got %#v", result)
	}
}

func TestCommandsCoverGatewayCatalog(t *testing.T) {
	got := Commands()
	if len(got) != 15 {
		t.Fatalf("expected 15 commands, got %d: %v", len(got), got)
	}
}

func adminContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func TestCloseShiftRecordsCardDifferenceWithoutNotes(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierContext()
	shift := openTestShift(t, svc, ctx, "500")

	closed, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{ShiftID: shift.ID, FinalCash: dec("500"), CardTerminalTotal: dec("10")})
	if err != nil {
		t.Fatalf("expected close with exact cash to pass without notes, got %v", err)
	}
	if !closed.CashDifference.IsZero() || !closed.CardDifference.Equal(dec("10")) {
		t.Fatalf("unexpected differences: cash=%s card=%s", closed.CashDifference, closed.CardDifference)
	}
}

func TestCatalogUpsertRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Dispatch(cashierContext(), gateway.CmdUpsertProduct, json.RawMessage(`{"id":"prod-gel","code":"7503002","name":"Gel","retail_price":"45","stock":10,"active":true}`))
	if !apperr.HasCode(err, apperr.CodeForbidden) {
		t.Fatalf("expected forbidden for cashier, got %v", err)
	}
}

func TestCatalogUpsertFeedsSales(t *testing.T) {
	svc, repo := newTestService()
	admin := adminContext()

	if _, err := svc.UpsertProduct(admin, domain.Product{ID: "prod-gel", Code: "7503002", Name: "Gel", RetailPrice: dec("45"), Stock: 10, Active: true}); err != nil {
		t.Fatalf("upsert product failed: %v", err)
	}
	if _, err := svc.UpsertProduct(admin, domain.Product{ID: "prod-otro", Code: "7503002", Name: "Otro", RetailPrice: dec("1"), Active: true}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected duplicate code to be rejected, got %v", err)
	}

	if _, err := svc.UpsertKit(admin, domain.KitDefinition{
		ID: "kit-gel", Name: "Kit Gel", TriggerProductIDs: []string{"prod-gel"}, IsRequired: true, MaxSelections: 1,
		Items: []domain.KitItem{{ProductID: "prod-nada", Quantity: 1}}, Active: true,
	}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown gift product to be rejected, got %v", err)
	}

	result, err := svc.Dispatch(admin, gateway.CmdUpsertKit, json.RawMessage(`{"id":"kit-gel","name":"Kit Gel","trigger_product_ids":["prod-gel"],"is_required":true,"max_selections":1,"items":[{"product_id":"prod-muestra","quantity":1}],"active":true}`))
	if err != nil {
		t.Fatalf("upsert kit via dispatch failed: %v", err)
	}
	if kit, ok := result.(domain.KitDefinition); !ok || kit.ID != "kit-gel" {
		t.Fatalf("unexpected kit result %#v", result)
	}

	kits, err := svc.GetAllActiveKits(admin)
	if err != nil || len(kits) != 2 {
		t.Fatalf("expected two active kits, got %d (%v)", len(kits), err)
	}

	ctx := cashierContext()
	shift := openTestShift(t, svc, ctx, "100")
	_, err = svc.ProcessSale(ctx, domain.SaleRequest{
		ShiftID:       shift.ID,
		PaymentMethod: domain.PaymentCash,
		CashAmount:    dec("45"),
		Items:         []domain.SaleItemRequest{{ID: "line-gel", ProductID: "prod-gel", Quantity: 1, PriceType: domain.PriceTypeRetail}},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected the new required kit to apply, got %v", err)
	}

	if _, err := svc.UpsertPromotion(admin, domain.Promotion{ID: "promo-x", Name: "X", ComboPrice: dec("10"), RequiredProducts: map[string]int{"prod-gel": 0}, Active: true}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected zero quantity to be rejected, got %v", err)
	}
	if _, err := svc.UpsertCustomer(admin, domain.Customer{ID: "cust-003", Name: "Tienda Don Pepe", CreditLimit: dec("2000")}); err != nil {
		t.Fatalf("upsert customer failed: %v", err)
	}
	if c, err := repo.GetCustomer(context.Background(), "cust-003"); err != nil || !c.CreditLimit.Equal(dec("2000")) {
		t.Fatalf("expected stored customer, got %+v (%v)", c, err)
	}
}

func TestUpsertPromotionInvalidatesCatalogCache(t *testing.T) {
	repo := memory.NewSeeded()
	catalog := cache.NewMemory()
	svc := New(repo, nil, "main-store", decimal.NewFromInt(5000), WithCatalogCache(catalog, time.Minute))
	admin := adminContext()

	if _, err := svc.GetAllActivePromotions(admin); err != nil {
		t.Fatalf("promotions failed: %v", err)
	}
	if !catalog.Has(cache.PromotionCatalogKey) {
		t.Fatalf("expected promotions to be cached")
	}

	if _, err := svc.UpsertPromotion(admin, domain.Promotion{ID: "promo-limpieza", Name: "Limpieza", ComboPrice: dec("40"), RequiredProducts: map[string]int{"prod-jabon": 2}, Active: true}); err != nil {
		t.Fatalf("upsert promotion failed: %v", err)
	}
	if catalog.Has(cache.PromotionCatalogKey) {
		t.Fatalf("expected promotion cache to be invalidated")
	}
	promos, err := svc.GetAllActivePromotions(admin)
	if err != nil || len(promos) != 2 {
		t.Fatalf("expected two promotions, got %d (%v)", len(promos), err)
	}
}
