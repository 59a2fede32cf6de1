package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"tiendapos/internal/domain"
	"tiendapos/internal/store"
	"tiendapos/internal/xid"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates any missing tables. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const productColumns = `id, code, name, retail_price, wholesale_price, stock, active`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.RetailPrice, &p.WholesalePrice, &p.Stock, &p.Active)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
	`, uniqueStrings(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpsertProduct(ctx context.Context, p domain.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, code, name, retail_price, wholesale_price, stock, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET code = EXCLUDED.code, name = EXCLUDED.name, retail_price = EXCLUDED.retail_price,
			wholesale_price = EXCLUDED.wholesale_price, stock = EXCLUDED.stock,
			active = EXCLUDED.active, updated_at = now()
	`, p.ID, p.Code, p.Name, p.RetailPrice, p.WholesalePrice, p.Stock, p.Active)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: product code %s is already used", store.ErrInvalidTransaction, p.Code)
	}
	return err
}

func (s *Store) ListActiveKits(ctx context.Context) ([]domain.KitDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, trigger_product_ids, is_required, max_selections, items, active
		FROM product_kits
		WHERE active = true
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	kits := make([]domain.KitDefinition, 0, 16)
	for rows.Next() {
		var (
			kit          domain.KitDefinition
			triggersJSON []byte
			itemsJSON    []byte
		)
		if err := rows.Scan(&kit.ID, &kit.Name, &triggersJSON, &kit.IsRequired, &kit.MaxSelections, &itemsJSON, &kit.Active); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(triggersJSON, &kit.TriggerProductIDs); err != nil {
			return nil, fmt.Errorf("kit %s triggers: %w", kit.ID, err)
		}
		if err := json.Unmarshal(itemsJSON, &kit.Items); err != nil {
			return nil, fmt.Errorf("kit %s items: %w", kit.ID, err)
		}
		kits = append(kits, kit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return kits, nil
}

func (s *Store) UpsertKit(ctx context.Context, kit domain.KitDefinition) error {
	triggersJSON, err := json.Marshal(kit.TriggerProductIDs)
	if err != nil {
		return err
	}
	itemsJSON, err := json.Marshal(kit.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO product_kits (id, name, trigger_product_ids, is_required, max_selections, items, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, trigger_product_ids = EXCLUDED.trigger_product_ids,
			is_required = EXCLUDED.is_required, max_selections = EXCLUDED.max_selections,
			items = EXCLUDED.items, active = EXCLUDED.active
	`, kit.ID, kit.Name, triggersJSON, kit.IsRequired, kit.MaxSelections, itemsJSON, kit.Active)
	return err
}

func (s *Store) ListActivePromotions(ctx context.Context) ([]domain.Promotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, combo_price, required_products, active
		FROM promotions
		WHERE active = true
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promotions := make([]domain.Promotion, 0, 16)
	for rows.Next() {
		var (
			promo        domain.Promotion
			requiredJSON []byte
		)
		if err := rows.Scan(&promo.ID, &promo.Name, &promo.ComboPrice, &requiredJSON, &promo.Active); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(requiredJSON, &promo.RequiredProducts); err != nil {
			return nil, fmt.Errorf("promotion %s products: %w", promo.ID, err)
		}
		promotions = append(promotions, promo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return promotions, nil
}

func (s *Store) UpsertPromotion(ctx context.Context, promo domain.Promotion) error {
	requiredJSON, err := json.Marshal(promo.RequiredProducts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO promotions (id, name, combo_price, required_products, active)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, combo_price = EXCLUDED.combo_price,
			required_products = EXCLUDED.required_products, active = EXCLUDED.active
	`, promo.ID, promo.Name, promo.ComboPrice, requiredJSON, promo.Active)
	return err
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, credit_limit, current_balance
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.CreditLimit, &c.CurrentBalance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpsertCustomer(ctx context.Context, c domain.Customer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, credit_limit, current_balance)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, credit_limit = EXCLUDED.credit_limit, current_balance = EXCLUDED.current_balance
	`, c.ID, c.Name, c.CreditLimit, c.CurrentBalance)
	return err
}

func (s *Store) GetVoucher(ctx context.Context, code string) (*domain.Voucher, error) {
	v, err := scanVoucher(s.db.QueryRowContext(ctx, `
		SELECT code, COALESCE(return_id, ''), initial_amount, balance, active, created_at
		FROM vouchers
		WHERE code = $1
	`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: voucher %s", store.ErrNotFound, code)
		}
		return nil, err
	}
	return &v, nil
}

func scanVoucher(row rowScanner) (domain.Voucher, error) {
	var v domain.Voucher
	err := row.Scan(&v.Code, &v.ReturnID, &v.InitialAmount, &v.Balance, &v.Active, &v.CreatedAt)
	v.CreatedAt = v.CreatedAt.UTC()
	return v, err
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("%w: sale has no items", store.ErrInvalidTransaction)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var shiftStatus string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status FROM cash_register_shifts WHERE id = $1 FOR UPDATE
	`, sale.ShiftID).Scan(&shiftStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: shift %s", store.ErrNotFound, sale.ShiftID)
		}
		return nil, err
	}
	if shiftStatus != domain.ShiftStatusOpen {
		return nil, fmt.Errorf("%w: shift %s is not open", store.ErrInvalidTransaction, sale.ShiftID)
	}

	demand := make(map[string]int)
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: item quantity must be positive", store.ErrInvalidTransaction)
		}
		demand[item.ProductID] += item.Quantity
	}
	productIDs := make([]string, 0, len(demand))
	for id := range demand {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	stockRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, stock, active
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, err
	}
	type stockState struct {
		name   string
		stock  int
		active bool
	}
	stocks := make(map[string]stockState, len(productIDs))
	for stockRows.Next() {
		var id string
		var st stockState
		if err := stockRows.Scan(&id, &st.name, &st.stock, &st.active); err != nil {
			_ = stockRows.Close()
			return nil, err
		}
		stocks[id] = st
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, err
	}
	_ = stockRows.Close()

	for _, id := range productIDs {
		st, ok := stocks[id]
		if !ok || !st.active {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
		if st.stock < demand[id] {
			return nil, fmt.Errorf("%w: %s has %d left", store.ErrInsufficientStock, st.name, st.stock)
		}
	}
	for _, id := range productIDs {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $1, updated_at = now() WHERE id = $2
		`, demand[id], id); err != nil {
			return nil, err
		}
	}

	if sale.VoucherCode != "" {
		voucher, err := scanVoucher(pgTx.QueryRowContext(ctx, `
			SELECT code, COALESCE(return_id, ''), initial_amount, balance, active, created_at
			FROM vouchers
			WHERE code = $1
			FOR UPDATE
		`, sale.VoucherCode))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: voucher %s", store.ErrNotFound, sale.VoucherCode)
			}
			return nil, err
		}
		if !voucher.Active || voucher.Balance.LessThan(sale.VoucherAmount) {
			return nil, fmt.Errorf("%w: voucher %s balance is too low", store.ErrInvalidTransaction, sale.VoucherCode)
		}
		remaining := voucher.Balance.Sub(sale.VoucherAmount)
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE vouchers SET balance = $2, active = $3 WHERE code = $1
		`, voucher.Code, remaining, remaining.IsPositive()); err != nil {
			return nil, err
		}
	}

	if sale.PaymentMethod == domain.PaymentCredit {
		var limit, balance decimal.Decimal
		var name string
		err := pgTx.QueryRowContext(ctx, `
			SELECT name, credit_limit, current_balance FROM customers WHERE id = $1 FOR UPDATE
		`, sale.CustomerID).Scan(&name, &limit, &balance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, sale.CustomerID)
			}
			return nil, err
		}
		if balance.Add(sale.AmountDue()).GreaterThan(limit) {
			return nil, fmt.Errorf("%w: customer %s", store.ErrCreditLimitExceeded, name)
		}
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE customers SET current_balance = current_balance + $2 WHERE id = $1
		`, sale.CustomerID, sale.AmountDue()); err != nil {
			return nil, err
		}
	}

	var seq int64
	if err := pgTx.QueryRowContext(ctx, `SELECT nextval('sale_folio_seq')`).Scan(&seq); err != nil {
		return nil, err
	}
	sale.Folio = fmt.Sprintf("%08d", seq)
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, folio, store_id, shift_id, user_id, customer_id, payment_method,
			subtotal, discount_percentage, discount_amount, total, voucher_code, voucher_amount,
			cash_amount, card_transfer_amount, change_amount, notes, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, sale.ID, sale.Folio, sale.StoreID, sale.ShiftID, sale.UserID, nullIfEmpty(sale.CustomerID), sale.PaymentMethod,
		sale.Subtotal, sale.DiscountPercentage, sale.DiscountAmount, sale.Total, nullIfEmpty(sale.VoucherCode), sale.VoucherAmount,
		sale.CashAmount, sale.CardTransferAmount, sale.Change, nullIfEmpty(sale.Notes), sale.Status, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sale %s already exists", store.ErrInvalidTransaction, sale.ID)
		}
		return nil, err
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.SaleID = sale.ID
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (
				sale_id, id, position, product_id, product_name, product_code, quantity, unit_price,
				price_type, kit_option_id, parent_item_id, promotion_id, promotion_instance_id,
				discount_amount, subtotal
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		`, sale.ID, item.ID, i, item.ProductID, item.ProductName, item.ProductCode, item.Quantity, item.UnitPrice,
			item.PriceType, nullIfEmpty(item.KitOptionID), nullIfEmpty(item.ParentItemID), nullIfEmpty(item.PromotionID),
			nullIfEmpty(item.PromotionInstanceID), item.DiscountAmount, item.Subtotal)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: duplicate item %s", store.ErrInvalidTransaction, item.ID)
			}
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, folio, store_id, shift_id, user_id, COALESCE(customer_id, ''), payment_method,
			subtotal, discount_percentage, discount_amount, total, COALESCE(voucher_code, ''), voucher_amount,
			cash_amount, card_transfer_amount, change_amount, COALESCE(notes, ''), status, created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.Folio, &sale.StoreID, &sale.ShiftID, &sale.UserID, &sale.CustomerID, &sale.PaymentMethod,
		&sale.Subtotal, &sale.DiscountPercentage, &sale.DiscountAmount, &sale.Total, &sale.VoucherCode, &sale.VoucherAmount,
		&sale.CashAmount, &sale.CardTransferAmount, &sale.Change, &sale.Notes, &sale.Status, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	items, err := loadSaleItems(ctx, s.db, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadSaleItems(ctx context.Context, q queryer, saleID string) ([]domain.SaleItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, product_code, quantity, unit_price, price_type,
			COALESCE(kit_option_id, ''), COALESCE(parent_item_id, ''), COALESCE(promotion_id, ''),
			COALESCE(promotion_instance_id, ''), discount_amount, subtotal
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY position
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.ProductCode, &item.Quantity,
			&item.UnitPrice, &item.PriceType, &item.KitOptionID, &item.ParentItemID, &item.PromotionID,
			&item.PromotionInstanceID, &item.DiscountAmount, &item.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error) {
	return returnedQty(ctx, s.db, saleID)
}

func returnedQty(ctx context.Context, q queryer, saleID string) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ri.sale_item_id, COALESCE(SUM(ri.quantity), 0)
		FROM return_items ri
		JOIN returns r ON r.id = ri.return_id
		WHERE r.sale_id = $1
		GROUP BY ri.sale_item_id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var itemID string
		var qty int
		if err := rows.Scan(&itemID, &qty); err != nil {
			return nil, err
		}
		result[itemID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error) {
	if strings.TrimSpace(ret.SaleID) == "" || len(ret.Items) == 0 {
		return nil, fmt.Errorf("%w: return needs a sale and items", store.ErrInvalidTransaction)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var storeID string
	err = pgTx.QueryRowContext(ctx, `
		SELECT store_id FROM sales WHERE id = $1 FOR UPDATE
	`, ret.SaleID).Scan(&storeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, ret.SaleID)
		}
		return nil, err
	}

	items, err := loadSaleItems(ctx, pgTx, ret.SaleID)
	if err != nil {
		return nil, err
	}
	sold := make(map[string]domain.SaleItem, len(items))
	for _, item := range items {
		sold[item.ID] = item
	}
	returned, err := returnedQty(ctx, pgTx, ret.SaleID)
	if err != nil {
		return nil, err
	}
	for _, item := range ret.Items {
		original, ok := sold[item.SaleItemID]
		if !ok {
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

	if err := pgTx.QueryRowContext(ctx, `SELECT nextval('return_folio_seq')`).Scan(&ret.Folio); err != nil {
		return nil, err
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	if ret.VoucherCode == "" {
		ret.VoucherCode = xid.VoucherCode()
	}
	ret.StoreID = storeID

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO returns (id, folio, sale_id, store_id, reason, notes, user_id, total, voucher_code, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, ret.ID, ret.Folio, ret.SaleID, ret.StoreID, ret.Reason, nullIfEmpty(ret.Notes), ret.UserID, ret.Total, ret.VoucherCode, ret.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range ret.Items {
		item := &ret.Items[i]
		if item.ID == "" {
			item.ID = xid.New("retitem")
		}
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO return_items (id, return_id, sale_item_id, product_id, quantity, unit_price, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.ID, ret.ID, item.SaleItemID, sold[item.SaleItemID].ProductID, item.Quantity, item.UnitPrice, item.Subtotal); err != nil {
			return nil, err
		}
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $1, updated_at = now() WHERE id = $2
		`, item.Quantity, sold[item.SaleItemID].ProductID); err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO vouchers (code, return_id, initial_amount, balance, active, created_at)
		VALUES ($1,$2,$3,$3,$4,$5)
	`, ret.VoucherCode, ret.ID, ret.Total, ret.Total.IsPositive(), ret.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: voucher code %s already issued", store.ErrInvalidTransaction, ret.VoucherCode)
		}
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (s *Store) ListReturnsBySale(ctx context.Context, saleID string) ([]domain.Return, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, folio, sale_id, store_id, reason, COALESCE(notes, ''), user_id, total, voucher_code, created_at
		FROM returns
		WHERE sale_id = $1
		ORDER BY folio
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Return, 0, 4)
	for rows.Next() {
		var r domain.Return
		if err := rows.Scan(&r.ID, &r.Folio, &r.SaleID, &r.StoreID, &r.Reason, &r.Notes, &r.UserID, &r.Total, &r.VoucherCode, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const shiftColumns = `id, code, store_id, register_id, initial_cash, opening_date, opening_user_id, status,
	closing_date, COALESCE(closing_user_id, ''), final_cash, expected_cash, cash_difference,
	card_terminal_total, card_expected_total, card_difference, cash_withdrawal, COALESCE(notes, '')`

func scanShift(row rowScanner) (*domain.Shift, error) {
	var shift domain.Shift
	var closedAt sql.NullTime
	err := row.Scan(&shift.ID, &shift.Code, &shift.StoreID, &shift.RegisterID, &shift.InitialCash, &shift.OpeningDate,
		&shift.OpeningUserID, &shift.Status, &closedAt, &shift.ClosingUserID, &shift.FinalCash, &shift.ExpectedCash,
		&shift.CashDifference, &shift.CardTerminalTotal, &shift.CardExpectedTotal, &shift.CardDifference,
		&shift.CashWithdrawal, &shift.Notes)
	if err != nil {
		return nil, err
	}
	shift.OpeningDate = shift.OpeningDate.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		shift.ClosingDate = &at
	}
	return &shift, nil
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.StoreID) == "" || strings.TrimSpace(shift.RegisterID) == "" {
		return nil, fmt.Errorf("%w: shift needs a store and a register", store.ErrInvalidTransaction)
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpeningDate.IsZero() {
		shift.OpeningDate = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosingDate = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_register_shifts (
			id, code, store_id, register_id, initial_cash, opening_date, opening_user_id, status
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, shift.ID, shift.Code, shift.StoreID, shift.RegisterID, shift.InitialCash, shift.OpeningDate, shift.OpeningUserID, shift.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: register %s", store.ErrShiftAlreadyOpen, shift.RegisterID)
		}
		return nil, err
	}
	saved := shift
	return &saved, nil
}

func (s *Store) CountShiftsOpenedOn(ctx context.Context, storeID string, day time.Time) (int, error) {
	start := nowDateUTC(day)
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM cash_register_shifts
		WHERE store_id = $1 AND opening_date >= $2 AND opening_date < $3
	`, storeID, start, start.AddDate(0, 0, 1)).Scan(&count)
	return count, err
}

func (s *Store) GetActiveShift(ctx context.Context, storeID string, registerID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cash_register_shifts
		WHERE store_id = $1 AND register_id = $2 AND status = 'open'
		ORDER BY opening_date DESC
		LIMIT 1
	`, storeID, registerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) GetShiftByID(ctx context.Context, id string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM cash_register_shifts
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: shift %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) CloseShift(ctx context.Context, c domain.ShiftClosing) (*domain.Shift, error) {
	if c.ClosedAt.IsZero() {
		c.ClosedAt = time.Now().UTC()
	}
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		UPDATE cash_register_shifts
		SET status = 'closed', closing_date = $2, closing_user_id = $3, final_cash = $4,
			expected_cash = $5, cash_difference = $6, card_terminal_total = $7,
			card_expected_total = $8, card_difference = $9, cash_withdrawal = $10, notes = $11
		WHERE id = $1 AND status = 'open'
		RETURNING `+shiftColumns,
		c.ShiftID, c.ClosedAt, c.UserID, c.FinalCash, c.ExpectedCash, c.CashDifference, c.CardTerminalTotal,
		c.CardExpectedTotal, c.CardDifference, c.CashWithdrawal, nullIfEmpty(c.Notes)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, lookupErr := s.GetShiftByID(ctx, c.ShiftID); lookupErr != nil {
				return nil, lookupErr
			}
			return nil, fmt.Errorf("%w: shift %s is already closed", store.ErrInvalidTransaction, c.ShiftID)
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) CreateCashMovement(ctx context.Context, m domain.CashMovement) (*domain.CashMovement, error) {
	if m.ID == "" {
		m.ID = xid.New("mov")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_movements (id, shift_id, type, amount, concept, description, created_at)
		SELECT $1,$2,$3,$4,$5,$6,$7
		WHERE EXISTS (SELECT 1 FROM cash_register_shifts WHERE id = $2 AND status = 'open')
	`, m.ID, m.ShiftID, m.Type, m.Amount, m.Concept, nullIfEmpty(m.Description), m.CreatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: shift %s is not open", store.ErrInvalidTransaction, m.ShiftID)
	}
	return &m, nil
}

func (s *Store) ListCashMovements(ctx context.Context, shiftID string) ([]domain.CashMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shift_id, type, amount, concept, COALESCE(description, ''), created_at
		FROM cash_movements
		WHERE shift_id = $1
		ORDER BY created_at
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.CashMovement, 0, 8)
	for rows.Next() {
		var m domain.CashMovement
		if err := rows.Scan(&m.ID, &m.ShiftID, &m.Type, &m.Amount, &m.Concept, &m.Description, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) ShiftSalesSummary(ctx context.Context, shiftID string) (domain.ShiftSalesTotals, error) {
	var t domain.ShiftSalesTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(total), 0),
			COALESCE(SUM(CASE WHEN payment_method IN ('cash', 'mixed') THEN cash_amount - change_amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN payment_method IN ('card_transfer', 'mixed') THEN card_transfer_amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN payment_method = 'credit' THEN total - voucher_amount ELSE 0 END), 0),
			COALESCE(SUM(voucher_amount), 0)
		FROM sales
		WHERE shift_id = $1 AND status = 'completed'
	`, shiftID).Scan(&t.SalesCount, &t.TotalSales, &t.CashSales, &t.CardSales, &t.CreditSales, &t.VoucherSales)
	return t, err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, full_name, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.FullName, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, full_name, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.FullName, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueStrings(values []string) []string {
	set := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

var _ store.Repository = (*Store)(nil)
