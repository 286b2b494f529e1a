package repo

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"storefront-checkout/internal/database"
	"storefront-checkout/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/sync/errgroup"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in -short mode")
	}
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	// the schema is idempotent
	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func insertProduct(t *testing.T, db *sql.DB, stock int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(`INSERT INTO products (id, name, price, stock_quantity) VALUES ($1, 'Poster', 1500, $2)`, id, stock)
	require.NoError(t, err)
	return id
}

func newPendingOrder(t *testing.T, productID uuid.UUID) *domain.Order {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	number, err := domain.NewOrderNumber(now)
	require.NoError(t, err)
	userID := uuid.New()
	o := &domain.Order{
		ID:            uuid.New(),
		Number:        number,
		UserID:        &userID,
		Items:         []domain.LineItem{{ProductID: productID, Name: "Poster", Quantity: 2, UnitPrice: 1500}},
		Currency:      "usd",
		Status:        domain.OrderPendingPayment,
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, o.Price())
	return o
}

func TestPostgresReserveNeverOversells(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	inventory := NewInventoryRepo(db)
	productID := insertProduct(t, db, 5)

	var reserved atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			err := inventory.Reserve(gctx, nil, productID, nil, 1)
			switch {
			case err == nil:
				reserved.Add(1)
				return nil
			case errors.Is(err, domain.ErrInsufficientStock):
				return nil
			default:
				return err
			}
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 5, reserved.Load())

	var stock int
	require.NoError(t, db.QueryRow(`SELECT stock_quantity FROM products WHERE id = $1`, productID).Scan(&stock))
	assert.Zero(t, stock)

	require.NoError(t, inventory.Release(ctx, nil, productID, nil, 2))
	require.NoError(t, db.QueryRow(`SELECT stock_quantity FROM products WHERE id = $1`, productID).Scan(&stock))
	assert.Equal(t, 2, stock)
}

func TestPostgresReserveRollsBackWithTx(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	inventory := NewInventoryRepo(db)
	first := insertProduct(t, db, 3)
	second := insertProduct(t, db, 0)

	err := NewTxRunner(db).WithinTx(ctx, func(tx *sql.Tx) error {
		if err := inventory.Reserve(ctx, tx, first, nil, 2); err != nil {
			return err
		}
		return inventory.Reserve(ctx, tx, second, nil, 1)
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stock int
	require.NoError(t, db.QueryRow(`SELECT stock_quantity FROM products WHERE id = $1`, first).Scan(&stock))
	assert.Equal(t, 3, stock)
}

func TestPostgresMarkPaidHasOneWinner(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	orders := NewOrderRepo(db)
	order := newPendingOrder(t, insertProduct(t, db, 10))
	require.NoError(t, orders.CreateOrder(ctx, nil, order))

	var winners atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			ok, err := orders.MarkPaid(gctx, nil, order.ID, domain.PaymentDetail{
				TransactionID:  "pi_" + uuid.NewString(),
				Method:         "card",
				AmountCaptured: order.Total,
				PaidAt:         time.Now(),
			})
			if ok {
				winners.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, winners.Load())

	got, err := orders.FindById(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, domain.OrderProcessing, got.Status)
	require.NotNil(t, got.Payment)
	assert.Equal(t, order.Total, got.Payment.AmountCaptured)
	require.Len(t, got.Items, 1)

	ok, err := orders.Cancel(ctx, nil, order.ID)
	require.NoError(t, err)
	assert.False(t, ok, "paid orders are not cancellable")
}

func TestPostgresOrderNumberCollision(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	orders := NewOrderRepo(db)
	productID := insertProduct(t, db, 10)

	first := newPendingOrder(t, productID)
	require.NoError(t, orders.CreateOrder(ctx, nil, first))

	second := newPendingOrder(t, productID)
	second.Number = first.Number
	err := NewTxRunner(db).WithinTx(ctx, func(tx *sql.Tx) error {
		return orders.CreateOrder(ctx, tx, second)
	})
	require.ErrorIs(t, err, domain.ErrOrderNumberTaken)

	missing, err := orders.FindById(ctx, second.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostgresWebhookEventsDeduplicate(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	events := NewWebhookEventRepo(db)

	seen, err := events.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, events.Record(ctx, nil, "evt_1", "payment_intent.succeeded"))
	require.NoError(t, events.Record(ctx, nil, "evt_1", "payment_intent.succeeded"))

	seen, err = events.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
}
