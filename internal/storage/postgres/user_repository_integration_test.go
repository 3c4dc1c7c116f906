package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestUserRepository_PostgresUsersAndTokens(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewUserRepository(store)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, domain.User{Name: "Ana", Email: "Ana@Example.com", PasswordHash: "hash"})
	require.NoError(t, err)
	require.NotZero(t, user.ID)
	require.Equal(t, "ana@example.com", user.Email)

	_, err = repo.CreateUser(ctx, domain.User{Name: "Dup", Email: "ANA@example.com", PasswordHash: "hash"})
	require.ErrorIs(t, err, domain.ErrEmailTaken)

	found, err := repo.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)

	require.NoError(t, repo.SetToken(ctx, user.ID, "token-1"))
	id, err := repo.GetUserIDByToken(ctx, "token-1")
	require.NoError(t, err)
	require.Equal(t, user.ID, id)

	_, err = repo.GetUserIDByToken(ctx, "unknown")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	require.ErrorIs(t, repo.SetToken(ctx, 424242, "x"), domain.ErrUserNotFound)
}

func TestUserRepository_PostgresAddresses(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewUserRepository(store)
	ctx := context.Background()

	owner := createUserForIntegrationTest(t, store, "owner@example.com")
	other := createUserForIntegrationTest(t, store, "other@example.com")

	addr, err := repo.CreateAddress(ctx, domain.Address{
		UserID: owner, Zipcode: "12345", Street: "Main", Number: "10", City: "Town", State: "ST", Country: "US",
	})
	require.NoError(t, err)
	require.NotZero(t, addr.ID)

	_, err = repo.GetAddress(ctx, other, addr.ID)
	require.ErrorIs(t, err, domain.ErrAddressNotFound)
	require.ErrorIs(t, repo.DeleteAddress(ctx, other, addr.ID), domain.ErrAddressNotFound)

	list, err := repo.ListAddresses(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.DeleteAddress(ctx, owner, addr.ID))
	list, err = repo.ListAddresses(ctx, owner)
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = repo.CreateAddress(ctx, domain.Address{UserID: 424242, Zipcode: "1"})
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}
