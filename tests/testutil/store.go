package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/store"
)

// NewTestStore creates an in-memory SQLite store with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err, "creating test store")

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedAccount creates a user and one account of the given provider.
func SeedAccount(t *testing.T, s store.Store, username string, provider model.ProviderType) (*model.User, *model.Account) {
	t.Helper()
	ctx := context.Background()

	user, err := s.CreateUser(ctx, model.User{Username: username})
	require.NoError(t, err, "creating user")

	account, err := s.CreateAccount(ctx, model.Account{
		UserID:       user.ID,
		Provider:     provider,
		Nickname:     username + "-" + string(provider),
		Organization: "org",
	})
	require.NoError(t, err, "creating account")

	return user, account
}
