package repo

import (
	"context"
	"database/sql"
	"storefront-checkout/internal/domain"
	"time"

	"github.com/google/uuid"
)

type DeliveryRepo interface {
	CreateGrants(ctx context.Context, tx *sql.Tx, grants []*domain.Grant) error
	// FindByToken returns nil, nil for an unknown token.
	FindByToken(ctx context.Context, token string) (*domain.Grant, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Grant, error)
	// RecordDownload increments the count only while the grant is still valid at now.
	RecordDownload(ctx context.Context, token string, now time.Time) (bool, error)
	Revoke(ctx context.Context, id uuid.UUID) (bool, error)
}

// WebhookEventRepo remembers processed processor event ids.
type WebhookEventRepo interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, tx *sql.Tx, eventID, eventType string) error
}

type deliveryRepo struct {
	db *sql.DB
}

func NewDeliveryRepo(db *sql.DB) DeliveryRepo {
	return &deliveryRepo{db: db}
}

const grantColumns = `id, order_id, product_id, variant_id, user_id, token, file_ref, download_count, max_downloads, expires_at, status, created_at`

func (r *deliveryRepo) CreateGrants(ctx context.Context, tx *sql.Tx, grants []*domain.Grant) error {
	db := conn(r.db, tx)
	for _, g := range grants {
		_, err := db.ExecContext(ctx, `
			INSERT INTO digital_deliveries (`+grantColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			g.ID, g.OrderID, g.ProductID, nullUUID(g.VariantID), nullUUID(g.UserID), g.Token, g.FileRef,
			g.DownloadCount, g.MaxDownloads, g.ExpiresAt, g.Status, g.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *deliveryRepo) FindByToken(ctx context.Context, token string) (*domain.Grant, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+grantColumns+` FROM digital_deliveries WHERE token = $1`, token)
	if err != nil {
		return nil, err
	}
	grants, err := scanGrants(rows)
	if err != nil || len(grants) == 0 {
		return nil, err
	}
	return &grants[0], nil
}

func (r *deliveryRepo) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Grant, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+grantColumns+` FROM digital_deliveries WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

func (r *deliveryRepo) RecordDownload(ctx context.Context, token string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE digital_deliveries SET download_count = download_count + 1
		WHERE token = $1
		  AND status = 'active'
		  AND (expires_at IS NULL OR expires_at > $2)
		  AND (max_downloads IS NULL OR download_count < max_downloads)`,
		token, now,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *deliveryRepo) Revoke(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE digital_deliveries SET status = 'revoked' WHERE id = $1 AND status <> 'revoked'`, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func scanGrants(rows *sql.Rows) ([]domain.Grant, error) {
	defer rows.Close()
	var grants []domain.Grant
	for rows.Next() {
		var (
			g         domain.Grant
			variantID uuid.NullUUID
			userID    uuid.NullUUID
			maxDl     sql.NullInt64
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&g.ID, &g.OrderID, &g.ProductID, &variantID, &userID, &g.Token, &g.FileRef,
			&g.DownloadCount, &maxDl, &expiresAt, &g.Status, &g.CreatedAt); err != nil {
			return nil, err
		}
		if variantID.Valid {
			v := variantID.UUID
			g.VariantID = &v
		}
		if userID.Valid {
			u := userID.UUID
			g.UserID = &u
		}
		if maxDl.Valid {
			n := int(maxDl.Int64)
			g.MaxDownloads = &n
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			g.ExpiresAt = &t
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

type webhookEventRepo struct {
	db *sql.DB
}

func NewWebhookEventRepo(db *sql.DB) WebhookEventRepo {
	return &webhookEventRepo{db: db}
}

func (r *webhookEventRepo) Seen(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)`, eventID).Scan(&exists)
	return exists, err
}

func (r *webhookEventRepo) Record(ctx context.Context, tx *sql.Tx, eventID, eventType string) error {
	_, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, processed_at) VALUES ($1, $2, now())
		ON CONFLICT (event_id) DO NOTHING`, eventID, eventType)
	return err
}
