package kit

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tiendapos/internal/apperr"
	"tiendapos/internal/applog"
	"tiendapos/internal/cart"
	"tiendapos/internal/domain"
)

type State int

const (
	Idle State = iota
	AwaitingSelection
)

func (s State) String() string {
	if s == AwaitingSelection {
		return "awaiting_selection"
	}
	return "idle"
}

type ProductLookup interface {
	GetProductByID(ctx context.Context, id string) (domain.Product, error)
}

// GiftTarget receives the gift lines chosen for a trigger.
type GiftTarget interface {
	AddGift(product domain.Product, triggerUUID, kitOptionID string, qty int) (cart.Line, error)
}

type CheckResult struct {
	Blocked    bool
	Incomplete int
	Notice     string
}

type GiftChoice struct {
	ProductID string
	Quantity  int
}

type GiftFailure struct {
	ProductID string
	Err       error
}

type ConfirmResult struct {
	Added    []cart.Line
	Failures []GiftFailure
	State    State
}

// Resolver tracks the kit triggers that still owe gift selections.
type Resolver struct {
	mu       sync.Mutex
	catalog  Catalog
	products ProductLookup
	target   GiftTarget
	logger   *zap.Logger
	queue    Queue
}

func NewResolver(catalog Catalog, products ProductLookup, target GiftTarget, logger *zap.Logger) *Resolver {
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	return &Resolver{
		catalog:  catalog,
		products: products,
		target:   target,
		logger:   applog.OrNop(logger).Named("kit"),
	}
}

func (r *Resolver) SetCatalog(catalog Catalog) {
	r.mu.Lock()
	r.catalog = catalog
	r.mu.Unlock()
}

func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return stateOf(r.queue)
}

func (r *Resolver) Current() (PendingSelection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Head()
}

func (r *Resolver) Pending() []PendingSelection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Entries()
}

// ValidateForCheckout rebuilds the queue from lines, in cart order. A trigger
// is queued only when its kit is required, offers gifts and the gifts already
// in the cart fall short of MaxSelections x quantity.
func (r *Resolver) ValidateForCheckout(lines []cart.Line) CheckResult {
	provided := make(map[string]int)
	for _, line := range lines {
		if line.IsGift() && line.KitTriggerID != "" {
			provided[line.KitTriggerID] += line.Quantity
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	queue := Queue{}
	for _, line := range lines {
		if line.IsGift() {
			continue
		}
		kit, ok := r.catalog.KitForProduct(line.Product.ID)
		if !ok || !kit.IsRequired || len(kit.Items) == 0 {
			continue
		}
		pending := PendingSelection{Kit: kit, Trigger: line, Provided: provided[line.UUID]}
		if pending.Provided < pending.Needed() {
			queue = queue.Push(pending)
		}
	}
	r.queue = queue

	result := CheckResult{Incomplete: queue.Len(), Blocked: queue.Len() > 0}
	if result.Blocked {
		result.Notice = fmt.Sprintf("%d kit(s) need gift selection before checkout", result.Incomplete)
		r.logger.Info("checkout blocked by kits", zap.Int("incomplete", result.Incomplete))
	}
	return result
}

// ConfirmSelection adds the chosen gifts for the head entry and dequeues it.
// A gift whose product lookup fails is reported and skipped; the others are
// still added. Choices outside the kit or over the remaining allowance are
// rejected without changing the queue.
func (r *Resolver) ConfirmSelection(ctx context.Context, gifts []GiftChoice) (ConfirmResult, error) {
	r.mu.Lock()
	head, ok := r.queue.Head()
	r.mu.Unlock()
	if !ok {
		return ConfirmResult{State: Idle}, apperr.Validation("no kit is waiting for a gift selection")
	}

	total := 0
	for _, gift := range gifts {
		if gift.Quantity < 1 {
			return ConfirmResult{State: AwaitingSelection}, apperr.Validationf("gift %s needs a quantity of at least 1", gift.ProductID)
		}
		if !head.Kit.IsGift(gift.ProductID) {
			return ConfirmResult{State: AwaitingSelection}, apperr.Validationf("product %s is not a gift of kit %s", gift.ProductID, head.Kit.Name)
		}
		total += gift.Quantity
	}
	if total > head.Remaining() {
		return ConfirmResult{State: AwaitingSelection}, apperr.Validationf("kit %s allows %d more gift(s), got %d", head.Kit.Name, head.Remaining(), total)
	}

	result := ConfirmResult{}
	for _, gift := range gifts {
		product, err := r.products.GetProductByID(ctx, gift.ProductID)
		if err == nil {
			var line cart.Line
			line, err = r.target.AddGift(product, head.Trigger.UUID, head.Kit.ID, gift.Quantity)
			if err == nil {
				result.Added = append(result.Added, line)
				continue
			}
		}
		r.logger.Warn("gift not added",
			zap.String("kit_id", head.Kit.ID),
			zap.String("product_id", gift.ProductID),
			zap.Error(err),
		)
		result.Failures = append(result.Failures, GiftFailure{ProductID: gift.ProductID, Err: err})
	}

	r.mu.Lock()
	if current, ok := r.queue.Head(); ok && current.Trigger.UUID == head.Trigger.UUID {
		r.queue = r.queue.Pop()
	}
	result.State = stateOf(r.queue)
	r.mu.Unlock()
	return result, nil
}

// CancelSelection drops every pending selection, not only the current one.
func (r *Resolver) CancelSelection() {
	r.mu.Lock()
	r.queue = Queue{}
	r.mu.Unlock()
}

func stateOf(q Queue) State {
	if q.Len() > 0 {
		return AwaitingSelection
	}
	return Idle
}
