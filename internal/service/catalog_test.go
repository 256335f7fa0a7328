package service

import (
	"context"
	"errors"
	"testing"

	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/model"
)

func registerOwner(t *testing.T, env *testEnv, wallet string) {
	t.Helper()
	if _, _, err := env.users.RegisterWallet(context.Background(), wallet, []string{model.RoleModelOwner}); err != nil {
		t.Fatalf("register owner: %v", err)
	}
}

func TestCatalogService_Register(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()
	registerOwner(t, env, testCustomer)

	res, err := env.catalog.Register(ctx, RegisterModelInput{
		Wallet:         testCustomer,
		Name:           "  Sentiment  ",
		Description:    "classifier",
		ContentPointer: testCIDv0,
		PricePerMinute: "2000",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if res.Model.Name != "Sentiment" || res.Model.OwnerWallet != testCustomer {
		t.Errorf("unexpected model %+v", res.Model)
	}
	if res.Model.ChainModelID == nil || *res.Model.ChainModelID != "2" || res.TxHash == "" {
		t.Errorf("expected chain id 2 and a tx hash, got %v %q", res.Model.ChainModelID, res.TxHash)
	}

	resolved, err := env.catalog.Resolve(ctx, "2")
	if err != nil || resolved.ID != res.Model.ID {
		t.Errorf("expected chain id to resolve to %s, got %v %v", res.Model.ID, resolved, err)
	}
}

func TestCatalogService_RegisterRejections(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()
	registerOwner(t, env, testCustomer)
	if _, _, err := env.users.RegisterWallet(ctx, "0x1000000000000000000000000000000000000001", nil); err != nil {
		t.Fatal(err)
	}

	valid := RegisterModelInput{Wallet: testCustomer, Name: "M", ContentPointer: testCIDv0, PricePerMinute: "1"}

	tests := []struct {
		name   string
		mutate func(*RegisterModelInput)
		want   error
	}{
		{"unknown user", func(in *RegisterModelInput) { in.Wallet = "0x2000000000000000000000000000000000000002" }, ErrUserNotFound},
		{"customer only", func(in *RegisterModelInput) { in.Wallet = "0x1000000000000000000000000000000000000001" }, ErrRoleRequired},
		{"blank name", func(in *RegisterModelInput) { in.Name = " " }, ErrInvalidName},
		{"bad cid", func(in *RegisterModelInput) { in.ContentPointer = "../etc/passwd" }, ErrInvalidCID},
		{"zero price", func(in *RegisterModelInput) { in.PricePerMinute = "0" }, ErrInvalidPrice},
		{"decimal price", func(in *RegisterModelInput) { in.PricePerMinute = "0.5" }, ErrInvalidPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			if _, err := env.catalog.Register(ctx, in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCatalogService_RegisterLedgerFailurePersistsNothing(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()
	registerOwner(t, env, testCustomer)
	env.gateway.RegisterErr = errors.New("connection reset")

	_, err := env.catalog.Register(ctx, RegisterModelInput{
		Wallet: testCustomer, Name: "M", ContentPointer: testCIDv0, PricePerMinute: "1",
	})
	if !errors.Is(err, ErrLedger) {
		t.Fatalf("expected ErrLedger, got %v", err)
	}

	models, _ := env.catalog.List(ctx, model.ModelFilter{Owner: testCustomer})
	if len(models) != 0 {
		t.Errorf("expected nothing persisted, got %d models", len(models))
	}
}

func TestCatalogService_UpdatePrice(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	if _, err := env.catalog.UpdatePrice(ctx, testChainID, testCustomer, "5"); !errors.Is(err, ErrNotModelOwner) {
		t.Fatalf("expected ErrNotModelOwner, got %v", err)
	}
	if _, err := env.catalog.UpdatePrice(ctx, testChainID, testOwner, "-5"); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}

	res, err := env.catalog.UpdatePrice(ctx, testChainID, testOwner, "2000000000000000")
	if err != nil {
		t.Fatalf("UpdatePrice failed: %v", err)
	}
	if res.TxHash == "" || res.Model.PricePerMinute != "2000000000000000" {
		t.Errorf("unexpected result %+v", res)
	}

	price, _ := env.gateway.ResolvePrice(ctx, mustBig(t, testChainID))
	if price.String() != "2000000000000000" {
		t.Errorf("expected chain price updated, got %s", price)
	}
	stored, _ := env.store.GetModelByID(ctx, env.qaModel.ID)
	if stored.PricePerMinute != "2000000000000000" {
		t.Errorf("expected catalog price updated, got %s", stored.PricePerMinute)
	}
}

func TestCatalogService_UpdatePriceRevertKeepsCatalog(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()
	env.gateway.UpdateErr = &chain.RevertError{Method: "updatePrice", Reason: "Not model owner"}

	_, err := env.catalog.UpdatePrice(ctx, env.qaModel.ID, testOwner, "7")
	if !errors.Is(err, ErrLedger) {
		t.Fatalf("expected ErrLedger, got %v", err)
	}
	if rev, ok := chain.IsRevert(err); !ok || rev.Reason != "Not model owner" {
		t.Errorf("expected revert reason to survive wrapping, got %v", err)
	}

	stored, _ := env.store.GetModelByID(ctx, env.qaModel.ID)
	if stored.PricePerMinute != "1000000000000000" {
		t.Errorf("expected catalog price unchanged, got %s", stored.PricePerMinute)
	}
}

func TestCatalogService_Deactivate(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	if _, err := env.catalog.Deactivate(ctx, env.qaModel.ID, testCustomer); !errors.Is(err, ErrNotModelOwner) {
		t.Fatalf("expected ErrNotModelOwner, got %v", err)
	}
	if _, err := env.catalog.Deactivate(ctx, env.qaModel.ID, testOwner); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if _, err := env.catalog.Resolve(ctx, testChainID); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected deactivated model to be unresolvable, got %v", err)
	}
}

func TestCatalogService_ChainView(t *testing.T) {
	ctx := context.Background()

	t.Run("from chain", func(t *testing.T) {
		env := newTestEnv(t, envOptions{})
		view, err := env.catalog.ChainView(ctx, "1")
		if err != nil {
			t.Fatal(err)
		}
		if view.Source != "chain" || view.PricePerMinute != "1000000000000000" || !view.Active {
			t.Errorf("unexpected view %+v", view)
		}
		if _, err := env.catalog.ChainView(ctx, "77"); !errors.Is(err, ErrModelNotFound) {
			t.Errorf("expected ErrModelNotFound, got %v", err)
		}
		if _, err := env.catalog.ChainView(ctx, "abc"); !errors.Is(err, chain.ErrInvalidID) {
			t.Errorf("expected ErrInvalidID, got %v", err)
		}
		next, err := env.catalog.NextChainID(ctx)
		if err != nil || next != "2" {
			t.Errorf("expected next id 2, got %q %v", next, err)
		}
	})

	t.Run("catalog fallback", func(t *testing.T) {
		env := newTestEnv(t, envOptions{noChain: true})
		view, err := env.catalog.ChainView(ctx, "1")
		if err != nil {
			t.Fatal(err)
		}
		if view.Source != "catalog" || view.Owner != testOwner || view.IPFSCid != "QmQAModelBasicQuestions" {
			t.Errorf("unexpected view %+v", view)
		}
		if _, err := env.catalog.NextChainID(ctx); !errors.Is(err, ErrChainDisabled) {
			t.Errorf("expected ErrChainDisabled, got %v", err)
		}
	})
}

func TestCatalogService_ListFilters(t *testing.T) {
	env := newTestEnv(t, envOptions{noChain: true})
	ctx := context.Background()
	registerOwner(t, env, testCustomer)

	if _, err := env.catalog.Register(ctx, RegisterModelInput{
		Wallet: testCustomer, Name: "Translator", ContentPointer: testCIDv0, PricePerMinute: "3",
	}); err != nil {
		t.Fatal(err)
	}

	all, _ := env.catalog.List(ctx, model.ModelFilter{})
	if len(all) != 2 {
		t.Errorf("expected 2 models, got %d", len(all))
	}
	mine, _ := env.catalog.List(ctx, model.ModelFilter{Owner: testCustomer})
	if len(mine) != 1 || mine[0].Name != "Translator" {
		t.Errorf("unexpected owner filter result %+v", mine)
	}
	found, _ := env.catalog.List(ctx, model.ModelFilter{Search: "q&a"})
	if len(found) != 1 || found[0].ID != env.qaModel.ID {
		t.Errorf("unexpected search result %+v", found)
	}
	if _, err := env.catalog.List(ctx, model.ModelFilter{Owner: "nope"}); !errors.Is(err, ErrInvalidWallet) {
		t.Errorf("expected ErrInvalidWallet, got %v", err)
	}
}
