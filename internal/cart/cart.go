// Package cart holds the lines of the sale in progress.
package cart

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tiendapos/internal/apperr"
	"tiendapos/internal/domain"
	"tiendapos/internal/promotion"
)

var hundred = decimal.NewFromInt(100)

// Line is one cart row. Gift lines carry the UUID of their trigger line in
// KitTriggerID and are always priced at zero.
type Line struct {
	UUID                string          `json:"uuid"`
	Product             domain.Product  `json:"product"`
	Quantity            int             `json:"quantity"`
	PriceType           string          `json:"price_type"`
	FinalPrice          decimal.Decimal `json:"final_price"`
	KitTriggerID        string          `json:"kit_trigger_id,omitempty"`
	KitOptionID         string          `json:"kit_option_id,omitempty"`
	PromotionID         string          `json:"promotion_id,omitempty"`
	PromotionInstanceID string          `json:"promotion_instance_id,omitempty"`
}

func (l Line) IsGift() bool {
	return l.PriceType == domain.PriceTypeKitItem
}

func (l Line) Total() decimal.Decimal {
	if l.IsGift() {
		return decimal.Zero
	}
	return l.FinalPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type AddOptions struct {
	PriceType  string
	Quantity   int
	Merge      bool
	PromoPrice decimal.Decimal
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Units    int             `json:"units"`
}

type Cart struct {
	mu    sync.RWMutex
	lines []Line
}

func New() *Cart {
	return &Cart{}
}

// Add appends a paid line. With Merge set, an identical standalone line is
// incremented instead.
func (c *Cart) Add(product domain.Product, opts AddOptions) (Line, error) {
	if product.ID == "" {
		return Line{}, apperr.Validation("product id is required")
	}
	if opts.PriceType == "" {
		opts.PriceType = domain.PriceTypeRetail
	}
	if opts.Quantity == 0 {
		opts.Quantity = 1
	}
	if opts.Quantity < 1 {
		return Line{}, apperr.Validation("quantity must be at least 1")
	}
	price, err := unitPrice(product, opts.PriceType, opts.PromoPrice)
	if err != nil {
		return Line{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if opts.Merge {
		for i := range c.lines {
			line := &c.lines[i]
			if line.Product.ID == product.ID && line.PriceType == opts.PriceType &&
				line.KitTriggerID == "" && line.PromotionInstanceID == "" {
				line.Quantity += opts.Quantity
				return *line, nil
			}
		}
	}

	line := Line{
		UUID:       uuid.NewString(),
		Product:    product,
		Quantity:   opts.Quantity,
		PriceType:  opts.PriceType,
		FinalPrice: price,
	}
	c.lines = append(c.lines, line)
	return line, nil
}

// AddGift appends a kit_item line keyed to triggerUUID, merging with an
// existing gift of the same product for that trigger.
func (c *Cart) AddGift(product domain.Product, triggerUUID, kitOptionID string, qty int) (Line, error) {
	if qty < 1 {
		return Line{}, apperr.Validation("gift quantity must be at least 1")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(triggerUUID)
	if idx < 0 {
		return Line{}, apperr.Validationf("trigger line %s is not in the cart", triggerUUID)
	}
	if c.lines[idx].IsGift() {
		return Line{}, apperr.Validation("a gift line cannot trigger another gift")
	}

	for i := range c.lines {
		line := &c.lines[i]
		if line.IsGift() && line.KitTriggerID == triggerUUID && line.Product.ID == product.ID {
			line.Quantity += qty
			return *line, nil
		}
	}

	line := Line{
		UUID:         uuid.NewString(),
		Product:      product,
		Quantity:     qty,
		PriceType:    domain.PriceTypeKitItem,
		FinalPrice:   decimal.Zero,
		KitTriggerID: triggerUUID,
		KitOptionID:  kitOptionID,
	}
	c.lines = append(c.lines, line)
	return line, nil
}

// Remove drops the line and every gift line attached to it.
func (c *Cart) Remove(lineUUID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.indexOf(lineUUID) < 0 {
		return false
	}
	kept := c.lines[:0]
	for _, line := range c.lines {
		if line.UUID == lineUUID || line.KitTriggerID == lineUUID {
			continue
		}
		kept = append(kept, line)
	}
	c.lines = kept
	return true
}

// SetQuantity ignores quantities below 1.
func (c *Cart) SetQuantity(lineUUID string, qty int) bool {
	if qty < 1 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(lineUUID)
	if idx < 0 {
		return false
	}
	c.lines[idx].Quantity = qty
	return true
}

func (c *Cart) SetPriceType(lineUUID, priceType string) error {
	if priceType != domain.PriceTypeRetail && priceType != domain.PriceTypeWholesale {
		return apperr.Validationf("price type %q cannot be set on a cart line", priceType)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(lineUUID)
	if idx < 0 {
		return apperr.Validationf("line %s is not in the cart", lineUUID)
	}
	line := &c.lines[idx]
	if line.IsGift() || line.PriceType == domain.PriceTypePromo {
		return apperr.Validation("gift and promotion lines keep their price")
	}
	price, err := unitPrice(line.Product, priceType, decimal.Zero)
	if err != nil {
		return err
	}
	line.PriceType = priceType
	line.FinalPrice = price
	return nil
}

func (c *Cart) Find(lineUUID string) (Line, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx := c.indexOf(lineUUID)
	if idx < 0 {
		return Line{}, false
	}
	return c.lines[idx], true
}

func (c *Cart) Lines() []Line {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lines)
}

func (c *Cart) Clear() {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
}

func (c *Cart) Totals(discountPercentage decimal.Decimal) (Totals, error) {
	return ComputeTotals(c.Lines(), discountPercentage)
}

// ApplyPromotions rebuilds the eligible paid lines so each promotion
// instance gets its own promo-priced lines. Units left over stay on a normal
// line that keeps the UUID of the first line of that product.
func (c *Cart) ApplyPromotions(instances []promotion.Instance, eligible func(Line) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	triggers := triggerSet(c.lines)
	isCandidate := func(line Line) bool {
		if line.IsGift() || triggers[line.UUID] {
			return false
		}
		return eligible == nil || eligible(line)
	}

	type bucket struct {
		first    Line
		tier     string
		quantity int
	}
	buckets := make(map[string]*bucket)
	for _, line := range c.lines {
		if !isCandidate(line) {
			continue
		}
		b, ok := buckets[line.Product.ID]
		if !ok {
			b = &bucket{first: line, tier: domain.PriceTypeRetail}
			buckets[line.Product.ID] = b
		}
		if line.PriceType == domain.PriceTypeWholesale {
			b.tier = domain.PriceTypeWholesale
		}
		b.quantity += line.Quantity
	}

	emitted := make(map[string]bool, len(buckets))
	rebuilt := make([]Line, 0, len(c.lines))
	for _, line := range c.lines {
		if !isCandidate(line) {
			rebuilt = append(rebuilt, line)
			continue
		}
		productID := line.Product.ID
		if emitted[productID] {
			continue
		}
		emitted[productID] = true
		b := buckets[productID]

		remaining := b.quantity
		for _, instance := range instances {
			alloc, ok := instance.Products[productID]
			if !ok || alloc.Quantity < 1 || alloc.Quantity > remaining {
				continue
			}
			remaining -= alloc.Quantity
			rebuilt = append(rebuilt, Line{
				UUID:                uuid.NewString(),
				Product:             b.first.Product,
				Quantity:            alloc.Quantity,
				PriceType:           domain.PriceTypePromo,
				FinalPrice:          alloc.UnitPrice,
				PromotionID:         instance.PromotionID,
				PromotionInstanceID: instance.InstanceID,
			})
		}
		if remaining > 0 {
			price, _ := unitPrice(b.first.Product, b.tier, decimal.Zero)
			rebuilt = append(rebuilt, Line{
				UUID:       b.first.UUID,
				Product:    b.first.Product,
				Quantity:   remaining,
				PriceType:  b.tier,
				FinalPrice: price,
			})
		}
	}
	c.lines = rebuilt
}

// PromotionCandidates aggregates the eligible paid units per product for
// promotion detection. Gift lines and lines carrying gifts are skipped.
func PromotionCandidates(lines []Line, eligible func(Line) bool) []promotion.Candidate {
	triggers := triggerSet(lines)
	index := make(map[string]int)
	out := make([]promotion.Candidate, 0)
	for _, line := range lines {
		if line.IsGift() || triggers[line.UUID] {
			continue
		}
		if eligible != nil && !eligible(line) {
			continue
		}
		if i, ok := index[line.Product.ID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.Product.ID] = len(out)
		out = append(out, promotion.Candidate{
			ProductID:   line.Product.ID,
			Quantity:    line.Quantity,
			RetailPrice: line.Product.RetailPrice,
		})
	}
	return out
}

// ComputeTotals prices a snapshot of lines. Gift lines contribute nothing.
func ComputeTotals(lines []Line, discountPercentage decimal.Decimal) (Totals, error) {
	if discountPercentage.IsNegative() || discountPercentage.GreaterThan(hundred) {
		return Totals{}, apperr.Validation("discount percentage must be between 0 and 100")
	}
	subtotal := decimal.Zero
	units := 0
	for _, line := range lines {
		subtotal = subtotal.Add(line.Total())
		units += line.Quantity
	}
	discount := subtotal.Mul(discountPercentage).Div(hundred).Round(2)
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal.Sub(discount),
		Units:    units,
	}, nil
}

func unitPrice(product domain.Product, priceType string, promoPrice decimal.Decimal) (decimal.Decimal, error) {
	switch priceType {
	case domain.PriceTypeRetail:
		return product.RetailPrice, nil
	case domain.PriceTypeWholesale:
		return product.EffectiveWholesale(), nil
	case domain.PriceTypePromo:
		if promoPrice.IsNegative() {
			return decimal.Zero, apperr.Validation("promotion price must not be negative")
		}
		return promoPrice, nil
	case domain.PriceTypeKitItem:
		return decimal.Zero, apperr.Validation("gift lines are added through AddGift")
	default:
		return decimal.Zero, apperr.Validationf("unknown price type %q", priceType)
	}
}

func triggerSet(lines []Line) map[string]bool {
	set := make(map[string]bool)
	for _, line := range lines {
		if line.KitTriggerID != "" {
			set[line.KitTriggerID] = true
		}
	}
	return set
}

func (c *Cart) indexOf(lineUUID string) int {
	for i := range c.lines {
		if c.lines[i].UUID == lineUUID {
			return i
		}
	}
	return -1
}
