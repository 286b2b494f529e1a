package domain

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "pending_payment"
	OrderProcessing     OrderStatus = "processing"
	OrderShipped        OrderStatus = "shipped"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
)

// PaymentStatus is the order's payment axis, orthogonal to OrderStatus.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type LineItem struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Name      string
	Quantity  int
	// UnitPrice is the catalog price at checkout, in minor units.
	UnitPrice int64
	Digital   bool
}

func (l LineItem) Total() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

type Discount struct {
	Code   string
	Amount int64
}

type PaymentDetail struct {
	TransactionID  string
	Method         string
	AmountCaptured int64
	PaidAt         time.Time
}

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type Order struct {
	ID     uuid.UUID
	Number string
	// UserID is nil for guest checkouts.
	UserID          *uuid.UUID
	GuestEmail      string
	Items           []LineItem
	Subtotal        int64
	Discount        *Discount
	Total           int64
	Currency        string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	Payment         *PaymentDetail
	ShippingAddress Address
	TrackingNumber  *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (o *Order) IsGuest() bool {
	return o.UserID == nil
}

func (o *Order) OwnedBy(userID uuid.UUID) bool {
	return o.UserID != nil && *o.UserID == userID
}

func (o *Order) CouponCode() string {
	if o.Discount == nil {
		return ""
	}
	return o.Discount.Code
}

func (o *Order) DiscountAmount() int64 {
	if o.Discount == nil {
		return 0
	}
	return o.Discount.Amount
}

func (o *Order) DigitalItems() []LineItem {
	var out []LineItem
	for _, it := range o.Items {
		if it.Digital {
			out = append(out, it)
		}
	}
	return out
}

// Price computes subtotal and total from the line items and the discount.
func (o *Order) Price() error {
	var subtotal int64
	for _, it := range o.Items {
		subtotal += it.Total()
	}
	discount := o.DiscountAmount()
	if discount < 0 || discount > subtotal {
		return fmt.Errorf("%w: discount %d against subtotal %d", ErrMoneyInvariant, discount, subtotal)
	}
	o.Subtotal = subtotal
	o.Total = subtotal - discount
	return nil
}

const orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewOrderNumber returns a human-referenceable number such as ORD-20260102-K7M2QX.
func NewOrderNumber(now time.Time) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), buf), nil
}
