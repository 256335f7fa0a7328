//go:build integration

package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/testutil"
)

func TestIntegrationCatalogRepository_CreateAndGet(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	m := testutil.NewTestModel(t, testutil.UniqueWallet(), "7")
	if err := repo.CreateModel(ctx, m); err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}

	byChain, err := repo.GetModelByChainID(ctx, "7")
	if err != nil {
		t.Fatalf("GetModelByChainID failed: %v", err)
	}
	if byChain.ID != m.ID {
		t.Errorf("ID mismatch: got %q, want %q", byChain.ID, m.ID)
	}
	if byChain.PricePerMinute != m.PricePerMinute {
		t.Errorf("price mismatch: got %q, want %q", byChain.PricePerMinute, m.PricePerMinute)
	}

	if _, err := repo.GetModelByID(ctx, "missing"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Expected ErrModelNotFound, got: %v", err)
	}
}

func TestIntegrationCatalogRepository_DuplicateChainID(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	if err := repo.CreateModel(ctx, testutil.NewTestModel(t, testutil.UniqueWallet(), "3")); err != nil {
		t.Fatalf("CreateModel (first) failed: %v", err)
	}
	err := repo.CreateModel(ctx, testutil.NewTestModel(t, testutil.UniqueWallet(), "3"))
	if !errors.Is(err, ErrChainModelExists) {
		t.Errorf("Expected ErrChainModelExists, got: %v", err)
	}
}

func TestIntegrationCatalogRepository_ListFilters(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	owner := testutil.UniqueWallet()
	older := testutil.NewTestModel(t, owner, "")
	older.Name = "Sentiment Classifier"
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := testutil.NewTestModel(t, owner, "")
	newer.Name = "Math Tutor"
	other := testutil.NewTestModel(t, testutil.UniqueWallet(), "")
	inactive := testutil.NewTestModel(t, owner, "")
	inactive.Active = false

	for _, m := range []*model.Model{older, newer, other, inactive} {
		if err := repo.CreateModel(ctx, m); err != nil {
			t.Fatalf("CreateModel failed: %v", err)
		}
	}

	byOwner, err := repo.ListModels(ctx, model.ModelFilter{Owner: owner})
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(byOwner) != 2 {
		t.Fatalf("Expected 2 active models for owner, got %d", len(byOwner))
	}
	if byOwner[0].ID != newer.ID {
		t.Errorf("Expected newest first, got %q", byOwner[0].Name)
	}

	search, err := repo.ListModels(ctx, model.ModelFilter{Search: "tutor"})
	if err != nil {
		t.Fatalf("ListModels (search) failed: %v", err)
	}
	if len(search) != 1 || search[0].ID != newer.ID {
		t.Errorf("Expected case-insensitive name match, got %d models", len(search))
	}
}

func TestIntegrationCatalogRepository_UpdatePriceAndDeactivate(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	m := testutil.NewTestModel(t, testutil.UniqueWallet(), "")
	if err := repo.CreateModel(ctx, m); err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}

	if err := repo.UpdateModelPrice(ctx, m.ID, "2000"); err != nil {
		t.Fatalf("UpdateModelPrice failed: %v", err)
	}
	got, err := repo.GetModelByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetModelByID failed: %v", err)
	}
	if got.PricePerMinute != "2000" {
		t.Errorf("price not updated: %q", got.PricePerMinute)
	}

	if err := repo.DeactivateModel(ctx, m.ID); err != nil {
		t.Fatalf("DeactivateModel failed: %v", err)
	}
	list, err := repo.ListModels(ctx, model.ModelFilter{})
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("deactivated model still listed")
	}

	if err := repo.UpdateModelPrice(ctx, "missing", "1"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Expected ErrModelNotFound, got: %v", err)
	}
}
