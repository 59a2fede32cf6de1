package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PriceTypeRetail    = "retail"
	PriceTypeWholesale = "wholesale"
	PriceTypeKitItem   = "kit_item"
	PriceTypePromo     = "promo"

	PaymentCash         = "cash"
	PaymentCardTransfer = "card_transfer"
	PaymentMixed        = "mixed"
	PaymentCredit       = "credit"

	SaleStatusCompleted = "completed"

	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"

	MovementIn  = "IN"
	MovementOut = "OUT"
)

type Product struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	Stock          int             `json:"stock"`
	Active         bool            `json:"active"`
}

// EffectiveWholesale falls back to the retail price when no wholesale price is set.
func (p Product) EffectiveWholesale() decimal.Decimal {
	if p.WholesalePrice.IsPositive() {
		return p.WholesalePrice
	}
	return p.RetailPrice
}

type KitItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type KitDefinition struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	TriggerProductIDs []string  `json:"trigger_product_ids"`
	IsRequired        bool      `json:"is_required"`
	MaxSelections     int       `json:"max_selections"`
	Items             []KitItem `json:"items"`
	Active            bool      `json:"active"`
}

func (k KitDefinition) IsTrigger(productID string) bool {
	return slices.Contains(k.TriggerProductIDs, productID)
}

func (k KitDefinition) IsGift(productID string) bool {
	for _, item := range k.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

type Promotion struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	ComboPrice       decimal.Decimal `json:"combo_price"`
	RequiredProducts map[string]int  `json:"required_products"`
	Active           bool            `json:"active"`
}

// RequiredUnits is the total number of units one instance consumes.
func (p Promotion) RequiredUnits() int {
	total := 0
	for _, qty := range p.RequiredProducts {
		total += qty
	}
	return total
}

type Customer struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	CreditLimit    decimal.Decimal `json:"credit_limit"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
}

type Voucher struct {
	Code          string          `json:"code"`
	ReturnID      string          `json:"return_id,omitempty"`
	InitialAmount decimal.Decimal `json:"initial_amount"`
	Balance       decimal.Decimal `json:"balance"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
}

type ProductRequest struct {
	ID string `json:"id"`
}

type SaleItemRequest struct {
	ID                  string `json:"id,omitempty"`
	ParentItemID        string `json:"parent_item_id,omitempty"`
	ProductID           string `json:"product_id"`
	Quantity            int    `json:"quantity"`
	PriceType           string `json:"price_type"`
	KitOptionID         string `json:"kit_option_id,omitempty"`
	PromotionID         string `json:"promotion_id,omitempty"`
	PromotionInstanceID string `json:"promotion_instance_id,omitempty"`
}

type SaleRequest struct {
	DiscountPercentage decimal.Decimal   `json:"discount_percentage"`
	CustomerID         string            `json:"customer_id,omitempty"`
	UserID             string            `json:"user_id"`
	ShiftID            string            `json:"cash_register_shift_id"`
	PaymentMethod      string            `json:"payment_method"`
	CashAmount         decimal.Decimal   `json:"cash_amount"`
	CardTransferAmount decimal.Decimal   `json:"card_transfer_amount"`
	Notes              string            `json:"notes,omitempty"`
	Items              []SaleItemRequest `json:"items"`
	ShouldPrint        bool              `json:"should_print"`
	VoucherCode        string            `json:"voucher_code,omitempty"`
}

type SaleResponse struct {
	ID          string          `json:"id"`
	Folio       string          `json:"folio"`
	Total       decimal.Decimal `json:"total"`
	Change      decimal.Decimal `json:"change"`
	VoucherUsed decimal.Decimal `json:"voucher_used"`
}

type Sale struct {
	ID                 string          `json:"id"`
	Folio              string          `json:"folio"`
	StoreID            string          `json:"store_id"`
	ShiftID            string          `json:"cash_register_shift_id"`
	UserID             string          `json:"user_id"`
	CustomerID         string          `json:"customer_id,omitempty"`
	PaymentMethod      string          `json:"payment_method"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	Total              decimal.Decimal `json:"total"`
	VoucherCode        string          `json:"voucher_code,omitempty"`
	VoucherAmount      decimal.Decimal `json:"voucher_amount"`
	CashAmount         decimal.Decimal `json:"cash_amount"`
	CardTransferAmount decimal.Decimal `json:"card_transfer_amount"`
	Change             decimal.Decimal `json:"change"`
	Notes              string          `json:"notes,omitempty"`
	Status             string          `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	Items              []SaleItem      `json:"items"`
}

// AmountDue is what the customer still owes after voucher redemption.
func (s Sale) AmountDue() decimal.Decimal {
	return s.Total.Sub(s.VoucherAmount)
}

// CashRetained is the cash that stays in the drawer for this sale.
func (s Sale) CashRetained() decimal.Decimal {
	if s.PaymentMethod != PaymentCash && s.PaymentMethod != PaymentMixed {
		return decimal.Zero
	}
	return s.CashAmount.Sub(s.Change)
}

type SaleItem struct {
	ID                  string          `json:"id"`
	SaleID              string          `json:"sale_id"`
	ProductID           string          `json:"product_id"`
	ProductName         string          `json:"product_name"`
	ProductCode         string          `json:"product_code"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	PriceType           string          `json:"price_type"`
	KitOptionID         string          `json:"kit_option_id,omitempty"`
	ParentItemID        string          `json:"parent_item_id,omitempty"`
	PromotionID         string          `json:"promotion_id,omitempty"`
	PromotionInstanceID string          `json:"promotion_instance_id,omitempty"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	Subtotal            decimal.Decimal `json:"subtotal"`
}

type SaleDetailRequest struct {
	SaleID string `json:"sale_id"`
}

type SaleHeader struct {
	ID                 string          `json:"id"`
	Folio              string          `json:"folio"`
	SaleDate           time.Time       `json:"sale_date"`
	Status             string          `json:"status"`
	PaymentMethod      string          `json:"payment_method"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	Total              decimal.Decimal `json:"total"`
	CashAmount         decimal.Decimal `json:"cash_amount"`
	CardTransferAmount decimal.Decimal `json:"card_transfer_amount"`
	Change             decimal.Decimal `json:"change"`
	Notes              string          `json:"notes,omitempty"`
	UserID             string          `json:"user_id"`
}

type SaleItemReturnInfo struct {
	ID               string          `json:"id"`
	ProductID        string          `json:"product_id"`
	ProductName      string          `json:"product_name"`
	ProductCode      string          `json:"product_code"`
	QuantitySold     int             `json:"quantity_sold"`
	QuantityReturned int             `json:"quantity_returned"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	PriceType        string          `json:"price_type"`
	KitOptionID      string          `json:"kit_option_id,omitempty"`
	ParentItemID     string          `json:"parent_item_id,omitempty"`
	PromotionID      string          `json:"promotion_id,omitempty"`
	IsGift           bool            `json:"is_gift"`
}

type ReturnInfo struct {
	ID         string          `json:"id"`
	Folio      int             `json:"folio"`
	ReturnDate time.Time       `json:"return_date"`
	Total      decimal.Decimal `json:"total"`
	Reason     string          `json:"reason"`
	UserID     string          `json:"user_id"`
}

type SaleDetail struct {
	Sale          SaleHeader           `json:"sale"`
	Items         []SaleItemReturnInfo `json:"items"`
	ReturnHistory []ReturnInfo         `json:"return_history"`
}

type ReturnItemRequest struct {
	SaleItemID string          `json:"sale_item_id"`
	ProductID  string          `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type ReturnRequest struct {
	SaleID string              `json:"sale_id"`
	Reason string              `json:"reason"`
	Notes  string              `json:"notes,omitempty"`
	UserID string              `json:"user_id"`
	Items  []ReturnItemRequest `json:"items"`
}

type ReturnResponse struct {
	ReturnID      string          `json:"return_id"`
	VoucherCode   string          `json:"voucher_code"`
	TotalRefunded decimal.Decimal `json:"total_refunded"`
}

type Return struct {
	ID          string          `json:"id"`
	Folio       int             `json:"folio"`
	SaleID      string          `json:"sale_id"`
	StoreID     string          `json:"store_id"`
	Reason      string          `json:"reason"`
	Notes       string          `json:"notes,omitempty"`
	UserID      string          `json:"user_id"`
	Total       decimal.Decimal `json:"total"`
	VoucherCode string          `json:"voucher_code"`
	CreatedAt   time.Time       `json:"created_at"`
	Items       []ReturnItem    `json:"items"`
}

type ReturnItem struct {
	ID         string          `json:"id"`
	SaleItemID string          `json:"sale_item_id"`
	ProductID  string          `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

type Shift struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	StoreID           string          `json:"store_id"`
	RegisterID        string          `json:"register_id"`
	InitialCash       decimal.Decimal `json:"initial_cash"`
	OpeningDate       time.Time       `json:"opening_date"`
	OpeningUserID     string          `json:"opening_user_id"`
	Status            string          `json:"status"`
	ClosingDate       *time.Time      `json:"closing_date,omitempty"`
	ClosingUserID     string          `json:"closing_user_id,omitempty"`
	FinalCash         decimal.Decimal `json:"final_cash"`
	ExpectedCash      decimal.Decimal `json:"expected_cash"`
	CashDifference    decimal.Decimal `json:"cash_difference"`
	CardTerminalTotal decimal.Decimal `json:"card_terminal_total"`
	CardExpectedTotal decimal.Decimal `json:"card_expected_total"`
	CardDifference    decimal.Decimal `json:"card_difference"`
	CashWithdrawal    decimal.Decimal `json:"cash_withdrawal"`
	Notes             string          `json:"notes,omitempty"`
}

func (s Shift) IsOpen() bool {
	return s.Status == ShiftStatusOpen
}

type ActiveShiftRequest struct {
	RegisterID string `json:"register_id"`
}

type ShiftOpenRequest struct {
	InitialCash decimal.Decimal `json:"initial_cash"`
	UserID      string          `json:"user_id"`
	RegisterID  string          `json:"register_id"`
}

type ShiftCloseRequest struct {
	ShiftID           string          `json:"shift_id"`
	FinalCash         decimal.Decimal `json:"final_cash"`
	CardTerminalTotal decimal.Decimal `json:"card_terminal_total"`
	Notes             string          `json:"notes,omitempty"`
	UserID            string          `json:"user_id"`
}

// ShiftClosing carries the figures persisted when a shift closes.
type ShiftClosing struct {
	ShiftID           string
	UserID            string
	ClosedAt          time.Time
	FinalCash         decimal.Decimal
	ExpectedCash      decimal.Decimal
	CashDifference    decimal.Decimal
	CardTerminalTotal decimal.Decimal
	CardExpectedTotal decimal.Decimal
	CardDifference    decimal.Decimal
	CashWithdrawal    decimal.Decimal
	Notes             string
}

type ShiftDetailsRequest struct {
	ShiftID string `json:"shift_id"`
}

type CashMovementRequest struct {
	ShiftID     string          `json:"shift_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Concept     string          `json:"concept"`
	Description string          `json:"description,omitempty"`
}

type CashMovement struct {
	ID          string          `json:"id"`
	ShiftID     string          `json:"shift_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Concept     string          `json:"concept"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ShiftSalesTotals struct {
	SalesCount   int             `json:"sales_count"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	CashSales    decimal.Decimal `json:"total_cash_sales"`
	CardSales    decimal.Decimal `json:"total_card_sales"`
	CreditSales  decimal.Decimal `json:"total_credit_sales"`
	VoucherSales decimal.Decimal `json:"total_voucher_sales"`
}

type ShiftDetails struct {
	Shift             Shift           `json:"shift"`
	Movements         []CashMovement  `json:"movements"`
	TotalMovementsIn  decimal.Decimal `json:"total_movements_in"`
	TotalMovementsOut decimal.Decimal `json:"total_movements_out"`
	SalesCount        int             `json:"sales_count"`
	TotalSales        decimal.Decimal `json:"total_sales"`
	TotalCashSales    decimal.Decimal `json:"total_cash_sales"`
	TotalCardSales    decimal.Decimal `json:"total_card_sales"`
	TotalCreditSales  decimal.Decimal `json:"total_credit_sales"`
	TotalVoucherSales decimal.Decimal `json:"total_voucher_sales"`
	TheoreticalCash   decimal.Decimal `json:"theoretical_cash"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
