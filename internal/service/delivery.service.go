package service

import (
	"context"
	"fmt"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/storage"
	"storefront-checkout/internal/observability"
	"storefront-checkout/internal/pkg/logging"
	"storefront-checkout/internal/repo"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type DeliveryService interface {
	// BuildGrants mints unsaved grants for each digital line item of order.
	BuildGrants(ctx context.Context, order *domain.Order, now time.Time) ([]*domain.Grant, error)
	GrantsForOrder(ctx context.Context, actor domain.Actor, orderID uuid.UUID) ([]domain.Grant, error)
	// Redeem consumes one download and returns the grant with its file reference.
	Redeem(ctx context.Context, token string) (*domain.Grant, error)
	RevokeGrant(ctx context.Context, actor domain.Actor, grantID uuid.UUID) error
}

type deliveryService struct {
	deliveries repo.DeliveryRepo
	products   repo.ProductRepo
	orders     repo.OrderRepo
	files      storage.FileStore
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewDeliveryService(
	deliveries repo.DeliveryRepo,
	products repo.ProductRepo,
	orders repo.OrderRepo,
	files storage.FileStore,
	metrics *observability.Metrics,
	logger *zap.Logger,
) DeliveryService {
	return &deliveryService{
		deliveries: deliveries,
		products:   products,
		orders:     orders,
		files:      files,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *deliveryService) BuildGrants(ctx context.Context, order *domain.Order, now time.Time) ([]*domain.Grant, error) {
	items := order.DigitalItems()
	if len(items) == 0 {
		return nil, nil
	}
	log := logging.FromContext(ctx, s.logger)

	products := make(map[uuid.UUID]*domain.Product)
	grants := make([]*domain.Grant, 0, len(items))
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			var err error
			p, err = s.products.FindProduct(ctx, it.ProductID)
			if err != nil {
				return nil, fmt.Errorf("load product %s: %w", it.ProductID, err)
			}
			products[it.ProductID] = p
		}
		if p == nil || p.FileRef == "" {
			log.Error("grant_skipped_no_file",
				zap.String("order_id", order.ID.String()),
				zap.String("product_id", it.ProductID.String()))
			continue
		}
		g, err := domain.NewGrant(order, it, p, now)
		if err != nil {
			return nil, fmt.Errorf("mint grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, nil
}

func (s *deliveryService) GrantsForOrder(ctx context.Context, actor domain.Actor, orderID uuid.UUID) ([]domain.Grant, error) {
	order, err := s.orders.FindById(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if err := actor.CanAccess(order); err != nil {
		return nil, err
	}
	return s.deliveries.FindByOrder(ctx, orderID)
}

func (s *deliveryService) Redeem(ctx context.Context, token string) (grant *domain.Grant, err error) {
	ctx, span := observability.StartSpan(ctx, "delivery.redeem")
	outcome := "ok"
	defer func() {
		s.metrics.Redemptions.WithLabelValues(outcome).Inc()
		observability.EndSpan(span, err)
	}()

	grant, err = s.deliveries.FindByToken(ctx, token)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("find grant: %w", err)
	}
	if grant == nil {
		outcome = "invalid"
		return nil, domain.ErrGrantNotFound
	}
	span.SetAttributes(attribute.String("grant.id", grant.ID.String()))

	now := s.now()
	if !grant.IsValid(now) {
		outcome = "unavailable"
		return nil, domain.ErrGrantUnavailable
	}

	ok, err := s.files.Exists(ctx, grant.FileRef)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !ok {
		outcome = "missing_file"
		logging.FromContext(ctx, s.logger).Error("download_file_missing",
			zap.String("grant_id", grant.ID.String()), zap.String("file_ref", grant.FileRef))
		return nil, domain.ErrFileNotFound
	}

	// the increment re-checks validity, so two racing redemptions of the last
	// allowed download cannot both pass
	recorded, err := s.deliveries.RecordDownload(ctx, token, now)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("record download: %w", err)
	}
	if !recorded {
		outcome = "unavailable"
		return nil, domain.ErrGrantUnavailable
	}
	grant.DownloadCount++
	return grant, nil
}

func (s *deliveryService) RevokeGrant(ctx context.Context, actor domain.Actor, grantID uuid.UUID) error {
	if !actor.Authenticated() {
		return domain.ErrUnauthenticated
	}
	if !actor.IsStaff() {
		return domain.ErrForbidden
	}
	ok, err := s.deliveries.Revoke(ctx, grantID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrGrantNotFound
	}
	logging.FromContext(ctx, s.logger).Info("grant_revoked", zap.String("grant_id", grantID.String()))
	return nil
}
