package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestOrderRepository_PostgresCreateGetList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()
	userID := createUserForIntegrationTest(t, store, "buyer@example.com")

	now := time.Now().UTC().Round(time.Microsecond)
	older := sampleOrder("order-1", userID, now.Add(-2*time.Minute))
	newer := sampleOrder("order-2", userID, now.Add(-time.Minute))
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	got, err := repo.Get(ctx, older.ID)
	require.NoError(t, err)
	require.Equal(t, older.TotalMinor, got.TotalMinor)
	require.Equal(t, older.Shipping, got.Shipping)
	require.Len(t, got.Items, 2)
	require.Equal(t, int64(1), got.Items[0].ProductID)
	require.Equal(t, int64(8990), got.Items[0].PriceMinor)
	require.Empty(t, got.ValidateInvariants())

	listed, err := repo.ListByUser(ctx, userID, 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, newer.ID, listed[0].ID)

	all, err := repo.ListByUser(ctx, userID, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.ErrorIs(t, repo.Create(ctx, older), domain.ErrOrderAlreadyExists)
	_, err = repo.Get(ctx, "missing-order")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_PostgresCreateIsAtomic(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()
	userID := createUserForIntegrationTest(t, store, "atomic@example.com")

	order := sampleOrder("order-broken", userID, time.Now().UTC())
	order.Items[1].ProductID = 999999

	err := repo.Create(ctx, order)
	require.ErrorIs(t, err, domain.ErrPersistence)

	_, err = repo.Get(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_PostgresUpdateStatus(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()
	userID := createUserForIntegrationTest(t, store, "status@example.com")

	order := sampleOrder("order-status", userID, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, order))

	require.NoError(t, repo.UpdateStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusPaid))
	got, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPaid, got.Status)

	err = repo.UpdateStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled)
	require.ErrorIs(t, err, domain.ErrOrderStatusConflict)

	err = repo.UpdateStatus(ctx, "missing", domain.OrderStatusPending, domain.OrderStatusPaid)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func sampleOrder(id string, userID int64, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:                id,
		UserID:            userID,
		Status:            domain.OrderStatusPending,
		TotalMinor:        8990*2 + 6990 + 1000,
		ShippingCostMinor: 1000,
		ShippingDays:      3,
		Shipping: domain.ShippingAddress{
			Zipcode: "12345", Street: "Main", Number: "1", City: "Town", State: "ST", Country: "US",
		},
		Items: []domain.OrderItem{
			{ID: id + "-item-1", OrderID: id, ProductID: 1, Quantity: 2, PriceMinor: 8990},
			{ID: id + "-item-2", OrderID: id, ProductID: 4, Quantity: 1, PriceMinor: 6990},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}
