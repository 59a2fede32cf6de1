package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tiendapos/internal/applog"
	"tiendapos/internal/cache"
	"tiendapos/internal/domain"
	"tiendapos/internal/store"
	"tiendapos/internal/xid"
)

var (
	hundred        = decimal.NewFromInt(100)
	paymentEpsilon = decimal.RequireFromString("0.01")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	logger         *zap.Logger
	defaultStoreID string
	maxInitialCash decimal.Decimal
	catalogCache   cache.Cache
	catalogTTL     time.Duration
	now            func() time.Time
}

type Option func(*Service)

// WithCatalogCache serves kit and promotion lists through c.
func WithCatalogCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.catalogCache = c
		s.catalogTTL = ttl
	}
}

func New(repo store.Repository, logger *zap.Logger, defaultStoreID string, maxInitialCash decimal.Decimal, opts ...Option) *Service {
	if defaultStoreID == "" {
		defaultStoreID = "main-store"
	}
	if !maxInitialCash.IsPositive() {
		maxInitialCash = decimal.NewFromInt(5000)
	}

	s := &Service{
		repo:           repo,
		logger:         applog.OrNop(logger).Named("service"),
		defaultStoreID: defaultStoreID,
		maxInitialCash: maxInitialCash,
		catalogCache:   cache.Noop{},
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       s.defaultStoreID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

// actorOr returns userID, or the authenticated username when userID is blank.
func actorOr(ctx context.Context, userID string) string {
	if userID = strings.TrimSpace(userID); userID != "" {
		return userID
	}
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return ""
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
