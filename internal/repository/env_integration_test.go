//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/testutil"
)

func newRepoTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}

// seedRental creates an owner, a model and a customer and returns a rental
// for them that has not been inserted yet.
func seedRental(t *testing.T, ctx context.Context, repo *Repository) (*model.Model, *model.User, *model.Rental) {
	t.Helper()

	owner := testutil.NewTestUser(t, model.RoleModelOwner)
	customer := testutil.NewTestUser(t)
	for _, u := range []*model.User{owner, customer} {
		if err := repo.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	m := testutil.NewTestModel(t, *owner.Wallet, "")
	if err := repo.CreateModel(ctx, m); err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}
	return m, customer, testutil.NewTestRental(t, m.ID, customer, time.Hour)
}
