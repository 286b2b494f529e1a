package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

type GrantStatus string

const (
	GrantActive  GrantStatus = "active"
	GrantRevoked GrantStatus = "revoked"
	GrantExpired GrantStatus = "expired"
)

// Grant is a token-addressed right to download one digital line item.
type Grant struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	ProductID     uuid.UUID
	VariantID     *uuid.UUID
	UserID        *uuid.UUID
	Token         string
	FileRef       string
	DownloadCount int
	MaxDownloads  *int
	ExpiresAt     *time.Time
	Status        GrantStatus
	CreatedAt     time.Time
}

func (g *Grant) IsValid(now time.Time) bool {
	if g.Status != GrantActive {
		return false
	}
	if g.ExpiresAt != nil && !now.Before(*g.ExpiresAt) {
		return false
	}
	if g.MaxDownloads != nil && g.DownloadCount >= *g.MaxDownloads {
		return false
	}
	return true
}

const grantTokenBytes = 32

func NewGrantToken() (string, error) {
	buf := make([]byte, grantTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// NewGrant mints an active grant for a digital line item of a settled order.
func NewGrant(order *Order, item LineItem, product *Product, now time.Time) (*Grant, error) {
	token, err := NewGrantToken()
	if err != nil {
		return nil, err
	}
	g := &Grant{
		ID:           uuid.New(),
		OrderID:      order.ID,
		ProductID:    item.ProductID,
		VariantID:    item.VariantID,
		UserID:       order.UserID,
		Token:        token,
		FileRef:      product.FileRef,
		MaxDownloads: product.MaxDownloads,
		Status:       GrantActive,
		CreatedAt:    now,
	}
	if product.DownloadTTL != nil {
		exp := now.Add(*product.DownloadTTL)
		g.ExpiresAt = &exp
	}
	return g, nil
}
