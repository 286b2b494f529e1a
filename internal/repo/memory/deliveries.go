package memory

import (
	"context"
	"database/sql"
	"sort"
	"storefront-checkout/internal/domain"
	"time"

	"github.com/google/uuid"
)

type deliveryRepo struct {
	s *Store
}

func (r *deliveryRepo) CreateGrants(ctx context.Context, tx *sql.Tx, grants []*domain.Grant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, g := range grants {
		r.s.grants[g.Token] = cloneGrant(g)
	}
	return nil
}

func (r *deliveryRepo) FindByToken(ctx context.Context, token string) (*domain.Grant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.grants[token]
	if !ok {
		return nil, nil
	}
	return cloneGrant(g), nil
}

func (r *deliveryRepo) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Grant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Grant
	for _, g := range r.s.grants {
		if g.OrderID == orderID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *deliveryRepo) RecordDownload(ctx context.Context, token string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.grants[token]
	if !ok || !g.IsValid(now) {
		return false, nil
	}
	g.DownloadCount++
	return true, nil
}

func (r *deliveryRepo) Revoke(ctx context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, g := range r.s.grants {
		if g.ID == id && g.Status != domain.GrantRevoked {
			g.Status = domain.GrantRevoked
			return true, nil
		}
	}
	return false, nil
}

type webhookEventRepo struct {
	s *Store
}

func (r *webhookEventRepo) Seen(ctx context.Context, eventID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.events[eventID]
	return ok, nil
}

func (r *webhookEventRepo) Record(ctx context.Context, tx *sql.Tx, eventID, eventType string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.events[eventID]; !ok {
		r.s.events[eventID] = eventType
	}
	return nil
}
