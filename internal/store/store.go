package store

import (
	"context"
	"errors"
	"time"

	"tiendapos/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrShiftAlreadyOpen    = errors.New("shift already open")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	ListActiveKits(ctx context.Context) ([]domain.KitDefinition, error)
	ListActivePromotions(ctx context.Context) ([]domain.Promotion, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	GetVoucher(ctx context.Context, code string) (*domain.Voucher, error)

	UpsertProduct(ctx context.Context, product domain.Product) error
	UpsertKit(ctx context.Context, kit domain.KitDefinition) error
	UpsertPromotion(ctx context.Context, promo domain.Promotion) error
	UpsertCustomer(ctx context.Context, customer domain.Customer) error

	// CreateSale stores the sale and its side effects in one transaction:
	// stock, voucher balance, customer credit and the folio sequence.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error)
	// CreateReturn rechecks returnable quantities, restocks and issues the
	// refund voucher in one transaction.
	CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error)
	ListReturnsBySale(ctx context.Context, saleID string) ([]domain.Return, error)

	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	CountShiftsOpenedOn(ctx context.Context, storeID string, day time.Time) (int, error)
	GetActiveShift(ctx context.Context, storeID string, registerID string) (*domain.Shift, error)
	GetShiftByID(ctx context.Context, id string) (*domain.Shift, error)
	CloseShift(ctx context.Context, closing domain.ShiftClosing) (*domain.Shift, error)
	CreateCashMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error)
	ListCashMovements(ctx context.Context, shiftID string) ([]domain.CashMovement, error)
	ShiftSalesSummary(ctx context.Context, shiftID string) (domain.ShiftSalesTotals, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
