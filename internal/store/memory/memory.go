package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tiendapos/internal/domain"
	"tiendapos/internal/store"
	"tiendapos/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	kits             map[string]domain.KitDefinition
	promotions       map[string]domain.Promotion
	customers        map[string]domain.Customer
	vouchers         map[string]domain.Voucher
	salesByID        map[string]*domain.Sale
	saleSeq          int
	returnsByID      map[string]domain.Return
	returnSeq        int
	shiftsByID       map[string]domain.Shift
	activeShiftByKey map[string]string
	movementsByShift map[string][]domain.CashMovement
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:         make(map[string]domain.Product),
		kits:             make(map[string]domain.KitDefinition),
		promotions:       make(map[string]domain.Promotion),
		customers:        make(map[string]domain.Customer),
		vouchers:         make(map[string]domain.Voucher),
		salesByID:        make(map[string]*domain.Sale),
		returnsByID:      make(map[string]domain.Return),
		shiftsByID:       make(map[string]domain.Shift),
		activeShiftByKey: make(map[string]string),
		movementsByShift: make(map[string][]domain.CashMovement),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD, falling back to dev
// defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		zap.L().Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		fullName string
		password string
		role     string
	}{
		{"admin", "Administrador", adminPwd, "admin"},
		{"cashier", "Cajero Turno Matutino", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic(fmt.Sprintf("hash seed password for %s: %v", u.username, err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			FullName:  u.fullName,
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func NewSeeded() *Store {
	s := New()
	for _, p := range []domain.Product{
		{ID: "prod-shampoo", Code: "7501001", Name: "Shampoo Herbal 400ml", RetailPrice: money("89.90"), WholesalePrice: money("75.00"), Stock: 40, Active: true},
		{ID: "prod-crema", Code: "7501002", Name: "Crema Corporal 250ml", RetailPrice: money("120.00"), WholesalePrice: money("100.00"), Stock: 30, Active: true},
		{ID: "prod-muestra", Code: "7501003", Name: "Muestra Crema 30ml", RetailPrice: money("15.00"), Stock: 200, Active: true},
		{ID: "prod-toalla", Code: "7501004", Name: "Toalla Facial", RetailPrice: money("30.00"), WholesalePrice: money("25.00"), Stock: 60, Active: true},
		{ID: "prod-refresco", Code: "7502001", Name: "Refresco Cola 600ml", RetailPrice: money("18.00"), WholesalePrice: money("15.00"), Stock: 120, Active: true},
		{ID: "prod-papas", Code: "7502002", Name: "Papas Fritas 45g", RetailPrice: money("22.00"), WholesalePrice: money("19.00"), Stock: 120, Active: true},
		{ID: "prod-jabon", Code: "7503001", Name: "Jabon de Tocador", RetailPrice: money("25.00"), Stock: 80, Active: true},
	} {
		s.products[p.ID] = p
	}
	s.kits["kit-crema"] = domain.KitDefinition{
		ID:                "kit-crema",
		Name:              "Kit Crema Corporal",
		TriggerProductIDs: []string{"prod-crema"},
		IsRequired:        true,
		MaxSelections:     1,
		Items:             []domain.KitItem{{ProductID: "prod-muestra", Quantity: 1}, {ProductID: "prod-toalla", Quantity: 1}},
		Active:            true,
	}
	s.promotions["promo-botana"] = domain.Promotion{
		ID:               "promo-botana",
		Name:             "Combo Botana",
		ComboPrice:       money("50.00"),
		RequiredProducts: map[string]int{"prod-refresco": 2, "prod-papas": 1},
		Active:           true,
	}
	s.customers["cust-001"] = domain.Customer{ID: "cust-001", Name: "Abarrotes Lupita", CreditLimit: money("5000"), CurrentBalance: decimal.Zero}
	s.customers["cust-002"] = domain.Customer{ID: "cust-002", Name: "Maria Hernandez", CreditLimit: money("1000"), CurrentBalance: money("950")}
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) UpsertProduct(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.products {
		if id != product.ID && existing.Code == product.Code {
			return fmt.Errorf("%w: product code %s is already used by %s", store.ErrInvalidTransaction, product.Code, id)
		}
	}
	s.products[product.ID] = product
	return nil
}

func (s *Store) UpsertKit(_ context.Context, kit domain.KitDefinition) error {
	s.mu.Lock()
	s.kits[kit.ID] = cloneKit(kit)
	s.mu.Unlock()
	return nil
}

func (s *Store) UpsertPromotion(_ context.Context, promo domain.Promotion) error {
	s.mu.Lock()
	s.promotions[promo.ID] = clonePromotion(promo)
	s.mu.Unlock()
	return nil
}

func (s *Store) UpsertCustomer(_ context.Context, customer domain.Customer) error {
	s.mu.Lock()
	s.customers[customer.ID] = customer
	s.mu.Unlock()
	return nil
}

// AuditLogs returns a copy of the recorded audit entries.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.auditLogs)
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, exists := s.products[id]; exists {
			result[id] = product
		}
	}
	return result, nil
}

func (s *Store) ListActiveKits(_ context.Context) ([]domain.KitDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kits := make([]domain.KitDefinition, 0, len(s.kits))
	for _, k := range s.kits {
		if k.Active {
			kits = append(kits, cloneKit(k))
		}
	}
	slices.SortFunc(kits, func(a, b domain.KitDefinition) int {
		return strings.Compare(a.ID, b.ID)
	})
	return kits, nil
}

func (s *Store) ListActivePromotions(_ context.Context) ([]domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promos := make([]domain.Promotion, 0, len(s.promotions))
	for _, p := range s.promotions {
		if p.Active {
			promos = append(promos, clonePromotion(p))
		}
	}
	slices.SortFunc(promos, func(a, b domain.Promotion) int {
		return strings.Compare(a.ID, b.ID)
	})
	return promos, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
	}
	return &customer, nil
}

func (s *Store) GetVoucher(_ context.Context, code string) (*domain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	voucher, exists := s.vouchers[strings.ToUpper(strings.TrimSpace(code))]
	if !exists {
		return nil, fmt.Errorf("%w: voucher %s", store.ErrNotFound, code)
	}
	return &voucher, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("%w: sale has no items", store.ErrInvalidTransaction)
	}
	shift, ok := s.shiftsByID[sale.ShiftID]
	if !ok || !shift.IsOpen() {
		return nil, fmt.Errorf("%w: shift %s is not open", store.ErrInvalidTransaction, sale.ShiftID)
	}

	demand := make(map[string]int)
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: item quantity must be positive", store.ErrInvalidTransaction)
		}
		demand[item.ProductID] += item.Quantity
	}
	for productID, qty := range demand {
		product, exists := s.products[productID]
		if !exists || !product.Active {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
		}
		if product.Stock < qty {
			return nil, fmt.Errorf("%w: %s has %d left", store.ErrInsufficientStock, product.Name, product.Stock)
		}
	}

	var voucher domain.Voucher
	if sale.VoucherCode != "" {
		v, exists := s.vouchers[sale.VoucherCode]
		if !exists {
			return nil, fmt.Errorf("%w: voucher %s", store.ErrNotFound, sale.VoucherCode)
		}
		if !v.Active || v.Balance.LessThan(sale.VoucherAmount) {
			return nil, fmt.Errorf("%w: voucher %s balance is too low", store.ErrInvalidTransaction, sale.VoucherCode)
		}
		voucher = v
	}

	var customer domain.Customer
	if sale.PaymentMethod == domain.PaymentCredit {
		c, exists := s.customers[sale.CustomerID]
		if !exists {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, sale.CustomerID)
		}
		if c.CurrentBalance.Add(sale.AmountDue()).GreaterThan(c.CreditLimit) {
			return nil, fmt.Errorf("%w: customer %s", store.ErrCreditLimitExceeded, c.Name)
		}
		customer = c
	}

	for productID, qty := range demand {
		product := s.products[productID]
		product.Stock -= qty
		s.products[productID] = product
	}
	if sale.VoucherCode != "" {
		voucher.Balance = voucher.Balance.Sub(sale.VoucherAmount)
		voucher.Active = voucher.Balance.IsPositive()
		s.vouchers[voucher.Code] = voucher
	}
	if sale.PaymentMethod == domain.PaymentCredit {
		customer.CurrentBalance = customer.CurrentBalance.Add(sale.AmountDue())
		s.customers[customer.ID] = customer
	}

	s.saleSeq++
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	sale.Folio = fmt.Sprintf("%08d", s.saleSeq)
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}
	for i := range sale.Items {
		if sale.Items[i].ID == "" {
			sale.Items[i].ID = xid.New("item")
		}
		sale.Items[i].SaleID = sale.ID
	}

	stored := cloneSale(&sale)
	s.salesByID[sale.ID] = stored
	return cloneSale(stored), nil
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, id)
	}
	return cloneSale(sale), nil
}

func (s *Store) GetReturnedQtyBySale(_ context.Context, saleID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.returnedQtyLocked(saleID), nil
}

func (s *Store) returnedQtyLocked(saleID string) map[string]int {
	result := make(map[string]int)
	for _, ret := range s.returnsByID {
		if ret.SaleID != saleID {
			continue
		}
		for _, item := range ret.Items {
			result[item.SaleItemID] += item.Quantity
		}
	}
	return result
}

func (s *Store) CreateReturn(_ context.Context, ret domain.Return) (*domain.Return, error) {
	if strings.TrimSpace(ret.SaleID) == "" || len(ret.Items) == 0 {
		return nil, fmt.Errorf("%w: return needs a sale and items", store.ErrInvalidTransaction)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[ret.SaleID]
	if !ok {
		return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, ret.SaleID)
	}
	sold := make(map[string]domain.SaleItem, len(sale.Items))
	for _, item := range sale.Items {
		sold[item.ID] = item
	}

	returned := s.returnedQtyLocked(ret.SaleID)
	for _, item := range ret.Items {
		original, exists := sold[item.SaleItemID]
		if !exists {
			return nil, fmt.Errorf("%w: item %s is not part of sale %s", store.ErrInvalidTransaction, item.SaleItemID, ret.SaleID)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: return quantity must be positive", store.ErrInvalidTransaction)
		}
		returned[item.SaleItemID] += item.Quantity
		if returned[item.SaleItemID] > original.Quantity {
			return nil, fmt.Errorf("%w: item %s would be returned beyond the %d sold", store.ErrInvalidTransaction, item.SaleItemID, original.Quantity)
		}
	}

	for _, item := range ret.Items {
		productID := sold[item.SaleItemID].ProductID
		if product, exists := s.products[productID]; exists {
			product.Stock += item.Quantity
			s.products[productID] = product
		}
	}

	s.returnSeq++
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	ret.Folio = s.returnSeq
	ret.StoreID = sale.StoreID
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	if ret.VoucherCode == "" {
		ret.VoucherCode = xid.VoucherCode()
	}
	for i := range ret.Items {
		if ret.Items[i].ID == "" {
			ret.Items[i].ID = xid.New("retitem")
		}
	}

	s.vouchers[ret.VoucherCode] = domain.Voucher{
		Code:          ret.VoucherCode,
		ReturnID:      ret.ID,
		InitialAmount: ret.Total,
		Balance:       ret.Total,
		Active:        ret.Total.IsPositive(),
		CreatedAt:     ret.CreatedAt,
	}
	s.returnsByID[ret.ID] = cloneReturn(ret)
	created := cloneReturn(ret)
	return &created, nil
}

func (s *Store) ListReturnsBySale(_ context.Context, saleID string) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Return, 0)
	for _, ret := range s.returnsByID {
		if ret.SaleID == saleID {
			result = append(result, cloneReturn(ret))
		}
	}
	slices.SortFunc(result, func(a, b domain.Return) int {
		return a.Folio - b.Folio
	})
	return result, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.StoreID) == "" || strings.TrimSpace(shift.RegisterID) == "" {
		return nil, fmt.Errorf("%w: shift needs a store and a register", store.ErrInvalidTransaction)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := shiftMapKey(shift.StoreID, shift.RegisterID)
	if _, exists := s.activeShiftByKey[key]; exists {
		return nil, fmt.Errorf("%w: register %s", store.ErrShiftAlreadyOpen, shift.RegisterID)
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpeningDate.IsZero() {
		shift.OpeningDate = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosingDate = nil

	s.shiftsByID[shift.ID] = shift
	s.activeShiftByKey[key] = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) CountShiftsOpenedOn(_ context.Context, storeID string, day time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := dateUTC(day)
	end := start.AddDate(0, 0, 1)
	count := 0
	for _, shift := range s.shiftsByID {
		if shift.StoreID != storeID {
			continue
		}
		if !shift.OpeningDate.Before(start) && shift.OpeningDate.Before(end) {
			count++
		}
	}
	return count, nil
}

func (s *Store) GetActiveShift(_ context.Context, storeID string, registerID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.activeShiftByKey[shiftMapKey(storeID, registerID)]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || !shift.IsOpen() {
		return nil, store.ErrNotFound
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetShiftByID(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, exists := s.shiftsByID[id]
	if !exists {
		return nil, fmt.Errorf("%w: shift %s", store.ErrNotFound, id)
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) CloseShift(_ context.Context, closing domain.ShiftClosing) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, exists := s.shiftsByID[closing.ShiftID]
	if !exists {
		return nil, fmt.Errorf("%w: shift %s", store.ErrNotFound, closing.ShiftID)
	}
	if !shift.IsOpen() {
		return nil, fmt.Errorf("%w: shift %s is already closed", store.ErrInvalidTransaction, closing.ShiftID)
	}
	closedAt := closing.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusClosed
	shift.ClosingDate = &closedAt
	shift.ClosingUserID = closing.UserID
	shift.FinalCash = closing.FinalCash
	shift.ExpectedCash = closing.ExpectedCash
	shift.CashDifference = closing.CashDifference
	shift.CardTerminalTotal = closing.CardTerminalTotal
	shift.CardExpectedTotal = closing.CardExpectedTotal
	shift.CardDifference = closing.CardDifference
	shift.CashWithdrawal = closing.CashWithdrawal
	shift.Notes = closing.Notes

	delete(s.activeShiftByKey, shiftMapKey(shift.StoreID, shift.RegisterID))
	s.shiftsByID[shift.ID] = shift
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) CreateCashMovement(_ context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, exists := s.shiftsByID[movement.ShiftID]
	if !exists {
		return nil, fmt.Errorf("%w: shift %s", store.ErrNotFound, movement.ShiftID)
	}
	if !shift.IsOpen() {
		return nil, fmt.Errorf("%w: shift %s is closed", store.ErrInvalidTransaction, movement.ShiftID)
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	s.movementsByShift[movement.ShiftID] = append(s.movementsByShift[movement.ShiftID], movement)
	return &movement, nil
}

func (s *Store) ListCashMovements(_ context.Context, shiftID string) ([]domain.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movements := slices.Clone(s.movementsByShift[shiftID])
	if movements == nil {
		movements = []domain.CashMovement{}
	}
	return movements, nil
}

func (s *Store) ShiftSalesSummary(_ context.Context, shiftID string) (domain.ShiftSalesTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := domain.ShiftSalesTotals{
		TotalSales:   decimal.Zero,
		CashSales:    decimal.Zero,
		CardSales:    decimal.Zero,
		CreditSales:  decimal.Zero,
		VoucherSales: decimal.Zero,
	}
	for _, sale := range s.salesByID {
		if sale.ShiftID != shiftID || sale.Status != domain.SaleStatusCompleted {
			continue
		}
		totals.SalesCount++
		totals.TotalSales = totals.TotalSales.Add(sale.Total)
		totals.CashSales = totals.CashSales.Add(sale.CashRetained())
		if sale.PaymentMethod == domain.PaymentCardTransfer || sale.PaymentMethod == domain.PaymentMixed {
			totals.CardSales = totals.CardSales.Add(sale.CardTransferAmount)
		}
		if sale.PaymentMethod == domain.PaymentCredit {
			totals.CreditSales = totals.CreditSales.Add(sale.AmountDue())
		}
		totals.VoucherSales = totals.VoucherSales.Add(sale.VoucherAmount)
	}
	return totals, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidTransaction
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func shiftMapKey(storeID string, registerID string) string {
	return storeID + "::" + registerID
}

func dateUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = slices.Clone(src.Items)
	return &dup
}

func cloneReturn(src domain.Return) domain.Return {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}

func cloneKit(src domain.KitDefinition) domain.KitDefinition {
	dup := src
	dup.TriggerProductIDs = slices.Clone(src.TriggerProductIDs)
	dup.Items = slices.Clone(src.Items)
	return dup
}

func clonePromotion(src domain.Promotion) domain.Promotion {
	dup := src
	dup.RequiredProducts = make(map[string]int, len(src.RequiredProducts))
	for k, v := range src.RequiredProducts {
		dup.RequiredProducts[k] = v
	}
	return dup
}
