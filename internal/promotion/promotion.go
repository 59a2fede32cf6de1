// Package promotion detects combo promotions in a set of cart units and
// prices them proportionally to the retail value of each product.
package promotion

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tiendapos/internal/domain"
)

type Candidate struct {
	ProductID   string
	Quantity    int
	RetailPrice decimal.Decimal
}

type Allocation struct {
	Quantity  int
	UnitPrice decimal.Decimal
}

type Instance struct {
	PromotionID string
	InstanceID  string
	Name        string
	ComboPrice  decimal.Decimal
	Products    map[string]Allocation
}

// Detect greedily builds as many promotion instances as the candidates allow.
// Promotions that consume more units are tried first.
func Detect(candidates []Candidate, promotions []domain.Promotion) []Instance {
	inventory := make(map[string]int, len(candidates))
	retail := make(map[string]decimal.Decimal, len(candidates))
	for _, c := range candidates {
		if c.Quantity < 1 {
			continue
		}
		inventory[c.ProductID] += c.Quantity
		if _, seen := retail[c.ProductID]; !seen {
			retail[c.ProductID] = c.RetailPrice
		}
	}

	ordered := make([]domain.Promotion, 0, len(promotions))
	for _, p := range promotions {
		if p.Active && len(p.RequiredProducts) > 0 {
			ordered = append(ordered, p)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		ui, uj := ordered[i].RequiredUnits(), ordered[j].RequiredUnits()
		if ui != uj {
			return ui > uj
		}
		return ordered[i].ID < ordered[j].ID
	})

	used := make(map[string]int)
	instances := make([]Instance, 0)
	for _, promo := range ordered {
		prices, ok := UnitPrices(promo, retail)
		if !ok {
			continue
		}
		for fits(promo, inventory, used) {
			instance := Instance{
				PromotionID: promo.ID,
				InstanceID:  uuid.NewString(),
				Name:        promo.Name,
				ComboPrice:  promo.ComboPrice,
				Products:    make(map[string]Allocation, len(promo.RequiredProducts)),
			}
			for productID, qty := range promo.RequiredProducts {
				used[productID] += qty
				instance.Products[productID] = Allocation{Quantity: qty, UnitPrice: prices[productID]}
			}
			instances = append(instances, instance)
		}
	}
	return instances
}

func fits(promo domain.Promotion, inventory map[string]int, used map[string]int) bool {
	for productID, qty := range promo.RequiredProducts {
		if qty < 1 || inventory[productID]-used[productID] < qty {
			return false
		}
	}
	return true
}

// UnitPrices splits the combo price across the required products by their
// share of retail value. It reports false when a retail price is unknown or
// the combo has no retail value.
func UnitPrices(promo domain.Promotion, retail map[string]decimal.Decimal) (map[string]decimal.Decimal, bool) {
	total := decimal.Zero
	for productID, qty := range promo.RequiredProducts {
		price, ok := retail[productID]
		if !ok || qty < 1 {
			return nil, false
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(qty))))
	}
	if !total.IsPositive() {
		return nil, false
	}

	prices := make(map[string]decimal.Decimal, len(promo.RequiredProducts))
	for productID := range promo.RequiredProducts {
		prices[productID] = promo.ComboPrice.Mul(retail[productID]).DivRound(total, 2)
	}
	return prices, true
}
