package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrantIsValid(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	one := 1

	assert.True(t, (&Grant{Status: GrantActive}).IsValid(now))
	assert.True(t, (&Grant{Status: GrantActive, ExpiresAt: &future, MaxDownloads: &one}).IsValid(now))
	assert.False(t, (&Grant{Status: GrantActive, MaxDownloads: &one, DownloadCount: 1}).IsValid(now))
	assert.False(t, (&Grant{Status: GrantActive, ExpiresAt: &past}).IsValid(now))
	assert.False(t, (&Grant{Status: GrantRevoked}).IsValid(now))
	assert.False(t, (&Grant{Status: GrantExpired}).IsValid(now))
}

func TestNewGrant(t *testing.T) {
	uid := uuid.New()
	order := &Order{ID: uuid.New(), UserID: &uid}
	ttl := 48 * time.Hour
	three := 3
	product := &Product{ID: uuid.New(), Digital: true, FileRef: "ebooks/go.pdf", MaxDownloads: &three, DownloadTTL: &ttl}
	now := time.Now()

	g, err := NewGrant(order, LineItem{ProductID: product.ID, Quantity: 1, Digital: true}, product, now)
	require.NoError(t, err)
	assert.Len(t, g.Token, 64)
	assert.Equal(t, GrantActive, g.Status)
	assert.Equal(t, 0, g.DownloadCount)
	assert.Equal(t, "ebooks/go.pdf", g.FileRef)
	assert.Equal(t, now.Add(ttl), *g.ExpiresAt)
	assert.Equal(t, uid, *g.UserID)

	other, err := NewGrant(order, LineItem{ProductID: product.ID}, &Product{ID: product.ID}, now)
	require.NoError(t, err)
	assert.NotEqual(t, g.Token, other.Token)
	assert.Nil(t, other.ExpiresAt)
	assert.Nil(t, other.MaxDownloads)
}
