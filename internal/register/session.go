// Package register wires the cart, kit resolver, sale submitter, return
// processor and shift tracker of one register into a single session.
package register

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tiendapos/internal/apperr"
	"tiendapos/internal/applog"
	"tiendapos/internal/cache"
	"tiendapos/internal/cart"
	"tiendapos/internal/domain"
	"tiendapos/internal/gateway"
	"tiendapos/internal/kit"
	"tiendapos/internal/promotion"
	"tiendapos/internal/returns"
	"tiendapos/internal/sale"
	"tiendapos/internal/shift"
)

type Options struct {
	RegisterID string
	UserID     string
	Cache      cache.Cache
	CacheTTL   time.Duration
	Logger     *zap.Logger
}

type Payment struct {
	Method             string
	CashAmount         decimal.Decimal
	CardTransferAmount decimal.Decimal
	DiscountPercentage decimal.Decimal
	CustomerID         string
	VoucherCode        string
	Notes              string
	ShouldPrint        bool
}

// Session is the sale-in-progress state of one register plus the
// process-wide shift tracker.
type Session struct {
	client *gateway.Client
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
	userID string

	Cart    *cart.Cart
	Kits    *kit.Resolver
	Sales   *sale.Submitter
	Returns *returns.Processor
	Shift   *shift.Tracker

	mu         sync.RWMutex
	promotions []domain.Promotion
}

func NewSession(client *gateway.Client, opts Options) *Session {
	logger := applog.OrNop(opts.Logger).With(zap.String("register_id", opts.RegisterID))
	store := opts.Cache
	if store == nil {
		store = cache.Noop{}
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c := cart.New()
	return &Session{
		client:  client,
		cache:   store,
		ttl:     ttl,
		logger:  logger,
		userID:  opts.UserID,
		Cart:    c,
		Kits:    kit.NewResolver(nil, client, c, logger),
		Sales:   sale.NewSubmitter(client, logger),
		Returns: returns.NewProcessor(client, store, ttl, logger),
		Shift:   shift.NewTracker(client, store, opts.RegisterID, ttl, logger),
	}
}

// LoadCatalogs fetches the active kits and promotions concurrently.
func (s *Session) LoadCatalogs(ctx context.Context) error {
	var (
		catalog    *kit.StaticCatalog
		promotions []domain.Promotion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		catalog, err = kit.LoadCatalog(gctx, s.client, s.cache, s.ttl)
		return err
	})
	g.Go(func() error {
		var err error
		promotions, err = cache.ReadThrough(gctx, s.cache, cache.PromotionCatalogKey, s.ttl, s.client.GetAllActivePromotions)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.Kits.SetCatalog(catalog)
	s.mu.Lock()
	s.promotions = promotions
	s.mu.Unlock()
	s.logger.Info("catalogs loaded", zap.Int("kits", len(catalog.Kits())), zap.Int("promotions", len(promotions)))
	return nil
}

// AddProduct resolves the product through the backend and adds it to the cart.
func (s *Session) AddProduct(ctx context.Context, productID string, opts cart.AddOptions) (cart.Line, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return cart.Line{}, apperr.Validation("product id is required")
	}
	product, err := s.client.GetProductByID(ctx, productID)
	if err != nil {
		return cart.Line{}, err
	}
	if !product.Active {
		return cart.Line{}, apperr.Validationf("product %s is not active", product.Name)
	}
	return s.Cart.Add(product, opts)
}

// RepricePromotions detects the promotions the cart qualifies for and
// rewrites the affected lines. Wholesale lines are left out.
func (s *Session) RepricePromotions() []promotion.Instance {
	s.mu.RLock()
	promotions := s.promotions
	s.mu.RUnlock()

	eligible := func(line cart.Line) bool {
		return line.PriceType != domain.PriceTypeWholesale
	}
	instances := promotion.Detect(cart.PromotionCandidates(s.Cart.Lines(), eligible), promotions)
	s.Cart.ApplyPromotions(instances, eligible)
	return instances
}

// Checkout blocks while kits owe gifts, then submits the cart against the
// open shift. The cart is only cleared after the backend accepts the sale.
func (s *Session) Checkout(ctx context.Context, payment Payment) (domain.SaleResponse, error) {
	check := s.Kits.ValidateForCheckout(s.Cart.Lines())
	if check.Blocked {
		return domain.SaleResponse{}, apperr.Validation(check.Notice)
	}

	active, err := s.Shift.Active(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if active == nil {
		return domain.SaleResponse{}, apperr.Validation("open a cash shift before selling")
	}

	resp, err := s.Sales.Submit(ctx, sale.Input{
		Lines:              s.Cart.Lines(),
		PaymentMethod:      payment.Method,
		CashAmount:         payment.CashAmount,
		CardTransferAmount: payment.CardTransferAmount,
		DiscountPercentage: payment.DiscountPercentage,
		UserID:             s.userID,
		ShiftID:            active.ID,
		CustomerID:         payment.CustomerID,
		VoucherCode:        payment.VoucherCode,
		Notes:              payment.Notes,
		ShouldPrint:        payment.ShouldPrint,
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.Cart.Clear()
	s.Kits.CancelSelection()
	_ = s.cache.Delete(ctx, cache.ShiftDetailsKey(active.ID))
	return resp, nil
}

// Abandon discards the sale in progress.
func (s *Session) Abandon() {
	s.Cart.Clear()
	s.Kits.CancelSelection()
}
