package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product is the read-only catalog view the checkout prices from.
type Product struct {
	ID            uuid.UUID
	Name          string
	Price         int64
	StockQuantity int
	Active        bool
	Digital       bool
	FileRef       string
	// MaxDownloads and DownloadTTL bound the grants minted for this product; nil means unlimited.
	MaxDownloads *int
	DownloadTTL  *time.Duration
	Variants     []Variant
}

type Variant struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Name      string
	// Price overrides the product price when set.
	Price         *int64
	StockQuantity int
}

func (p *Product) Variant(id uuid.UUID) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// LineFor snapshots the catalog price for a cart line.
func (p *Product) LineFor(variantID *uuid.UUID, quantity int) (LineItem, error) {
	if quantity <= 0 {
		return LineItem{}, ErrInvalidQuantity
	}
	item := LineItem{
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  quantity,
		UnitPrice: p.Price,
		Digital:   p.Digital,
	}
	if variantID != nil {
		v, ok := p.Variant(*variantID)
		if !ok {
			return LineItem{}, ErrVariantNotFound
		}
		id := v.ID
		item.VariantID = &id
		item.Name = p.Name + " / " + v.Name
		if v.Price != nil {
			item.UnitPrice = *v.Price
		}
	}
	return item, nil
}
