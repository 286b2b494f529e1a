// Package memory provides in-process implementations of the repo ports for
// tests, local development and the simulator. A single mutex guards all
// maps, so every conditional update is atomic the way the SQL statements are.
package memory

import (
	"context"
	"database/sql"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/repo"
	"sync"

	"github.com/google/uuid"
)

type Store struct {
	mu           sync.RWMutex
	products     map[uuid.UUID]*domain.Product
	coupons      map[string]*domain.Coupon
	orders       map[uuid.UUID]*domain.Order
	orderNumbers map[string]uuid.UUID
	payments     map[string]*domain.Payment // by intent id
	grants       map[string]*domain.Grant   // by token
	events       map[string]string
}

func NewStore() *Store {
	return &Store{
		products:     make(map[uuid.UUID]*domain.Product),
		coupons:      make(map[string]*domain.Coupon),
		orders:       make(map[uuid.UUID]*domain.Order),
		orderNumbers: make(map[string]uuid.UUID),
		payments:     make(map[string]*domain.Payment),
		grants:       make(map[string]*domain.Grant),
		events:       make(map[string]string),
	}
}

func (s *Store) Orders() repo.OrderRepo               { return &orderRepo{s} }
func (s *Store) Payments() repo.PaymentRepo           { return &paymentRepo{s} }
func (s *Store) Inventory() repo.InventoryRepo        { return &inventoryRepo{s} }
func (s *Store) Products() repo.ProductRepo           { return &productRepo{s} }
func (s *Store) Coupons() repo.CouponRepo             { return &couponRepo{s} }
func (s *Store) Deliveries() repo.DeliveryRepo        { return &deliveryRepo{s} }
func (s *Store) WebhookEvents() repo.WebhookEventRepo { return &webhookEventRepo{s} }

func (s *Store) SeedProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = cloneProduct(&p)
}

func (s *Store) SeedCoupon(c domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = domain.NormalizeCouponCode(c.Code)
	clone := c
	s.coupons[c.Code] = &clone
}

// Stock returns the current stock of a product, or of one of its variants.
func (s *Store) Stock(productID uuid.UUID, variantID *uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return 0
	}
	if variantID != nil {
		if v, ok := p.Variant(*variantID); ok {
			return v.StockQuantity
		}
		return 0
	}
	return p.StockQuantity
}

func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *Store) GrantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants)
}

// TxRunner runs the callback without a transaction.
type TxRunner struct{}

func (TxRunner) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

func cloneProduct(p *domain.Product) *domain.Product {
	clone := *p
	clone.Variants = append([]domain.Variant(nil), p.Variants...)
	return &clone
}

func cloneOrder(o *domain.Order) *domain.Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]domain.LineItem(nil), o.Items...)
	if o.Discount != nil {
		d := *o.Discount
		clone.Discount = &d
	}
	if o.Payment != nil {
		p := *o.Payment
		clone.Payment = &p
	}
	if o.TrackingNumber != nil {
		t := *o.TrackingNumber
		clone.TrackingNumber = &t
	}
	return &clone
}

func cloneGrant(g *domain.Grant) *domain.Grant {
	clone := *g
	return &clone
}
