package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tiendapos/internal/domain"
	"tiendapos/internal/store"
)

func TestSaleAndReturnRestockInventory(t *testing.T) {
	databaseURL := os.Getenv("TIENDAPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TIENDAPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-it-%d", stamp)
	registerID := fmt.Sprintf("caja-it-%d", stamp)
	storeID := "main-store"
	price := decimal.RequireFromString("40.00")

	if err := s.UpsertProduct(ctx, domain.Product{
		ID:          productID,
		Code:        fmt.Sprintf("IT%d", stamp),
		Name:        "Producto Integracion",
		RetailPrice: price,
		Stock:       10,
		Active:      true,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	shift, err := s.CreateShift(ctx, domain.Shift{
		Code:          fmt.Sprintf("%s-it-%d", storeID, stamp),
		StoreID:       storeID,
		RegisterID:    registerID,
		InitialCash:   decimal.NewFromInt(100),
		OpeningUserID: "admin",
	})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	if _, err := s.CreateShift(ctx, domain.Shift{StoreID: storeID, RegisterID: registerID, OpeningUserID: "admin"}); !errors.Is(err, store.ErrShiftAlreadyOpen) {
		t.Fatalf("expected second open shift to conflict, got %v", err)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{
		StoreID:       storeID,
		ShiftID:       shift.ID,
		UserID:        "admin",
		PaymentMethod: domain.PaymentCash,
		Subtotal:      price.Mul(decimal.NewFromInt(3)),
		Total:         price.Mul(decimal.NewFromInt(3)),
		CashAmount:    decimal.NewFromInt(200),
		Change:        decimal.NewFromInt(80),
		Items: []domain.SaleItem{{
			ID:          "line-1",
			ProductID:   productID,
			ProductName: "Producto Integracion",
			Quantity:    3,
			UnitPrice:   price,
			PriceType:   domain.PriceTypeRetail,
			Subtotal:    price.Mul(decimal.NewFromInt(3)),
		}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	product, err := s.GetProductByID(ctx, productID)
	if err != nil {
		t.Fatalf("load product: %v", err)
	}
	if product.Stock != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", product.Stock)
	}

	ret, err := s.CreateReturn(ctx, domain.Return{
		SaleID: sale.ID,
		Reason: "integracion",
		UserID: "admin",
		Total:  price,
		Items:  []domain.ReturnItem{{SaleItemID: "line-1", ProductID: productID, Quantity: 1, UnitPrice: price, Subtotal: price}},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}

	returned, err := s.GetReturnedQtyBySale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("returned qty: %v", err)
	}
	if returned["line-1"] != 1 {
		t.Fatalf("expected 1 returned, got %d", returned["line-1"])
	}

	voucher, err := s.GetVoucher(ctx, ret.VoucherCode)
	if err != nil {
		t.Fatalf("load voucher: %v", err)
	}
	if !voucher.Balance.Equal(price) {
		t.Fatalf("expected voucher balance %s, got %s", price, voucher.Balance)
	}

	_, err = s.CreateReturn(ctx, domain.Return{
		SaleID: sale.ID,
		Reason: "exceso",
		UserID: "admin",
		Total:  price.Mul(decimal.NewFromInt(3)),
		Items:  []domain.ReturnItem{{SaleItemID: "line-1", ProductID: productID, Quantity: 3, UnitPrice: price}},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected over-return to be rejected, got %v", err)
	}

	product, err = s.GetProductByID(ctx, productID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.Stock != 8 {
		t.Fatalf("expected stock 8 after return, got %d", product.Stock)
	}

	closed, err := s.CloseShift(ctx, domain.ShiftClosing{ShiftID: shift.ID, UserID: "admin", FinalCash: decimal.NewFromInt(220)})
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.IsOpen() {
		t.Fatalf("expected closed shift")
	}
}
