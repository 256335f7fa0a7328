package handler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/handler/dto"
	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/service"
	"github.com/inferchain/inferchain/internal/testutil/apptest"
)

const (
	creatorWallet = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
	validCID      = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
)

func createModel(t *testing.T, env *apptest.Env, price any) dto.RegisterModelResponse {
	t.Helper()
	rec := env.Do(t, http.MethodPost, "/models", map[string]any{
		"wallet":         creatorWallet,
		"name":           "Sentiment",
		"description":    "Classifies sentiment",
		"ipfsCid":        validCID,
		"pricePerMinute": price,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return apptest.Decode[dto.RegisterModelResponse](t, rec)
}

func TestModels_Create(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})
	env.RegisterOwner(t, creatorWallet)

	resp := createModel(t, env, 1000000000000000)

	require.NotNil(t, resp.Model)
	assert.NotEmpty(t, resp.ID)
	require.NotNil(t, resp.ChainModelID)
	assert.Equal(t, "2", *resp.ChainModelID)
	assert.NotEmpty(t, resp.TxHash)
	assert.Equal(t, "1000000000000000", resp.PricePerMinute)
	assert.Equal(t, creatorWallet, resp.OwnerWallet)
	assert.True(t, resp.Active)

	rec := env.Do(t, http.MethodGet, "/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	models := apptest.Decode[[]model.Model](t, rec)
	require.Len(t, models, 2)
	assert.Equal(t, resp.ID, models[0].ID)
	assert.True(t, models[0].Active)

	rec = env.Do(t, http.MethodGet, "/models?owner="+creatorWallet, nil)
	assert.Len(t, apptest.Decode[[]model.Model](t, rec), 1)

	rec = env.Do(t, http.MethodGet, "/models/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resp.ID, apptest.Decode[model.Model](t, rec).ID)
}

func TestModels_CreateRejections(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})
	env.RegisterOwner(t, creatorWallet)
	if _, _, err := env.Users.RegisterWallet(context.Background(), apptest.CustomerWallet, []string{model.RoleCustomer}); err != nil {
		t.Fatal(err)
	}

	base := func(mutate func(map[string]any)) map[string]any {
		body := map[string]any{
			"wallet":         creatorWallet,
			"name":           "Sentiment",
			"ipfsCid":        validCID,
			"pricePerMinute": "1000",
		}
		mutate(body)
		return body
	}

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"unknown user", base(func(b map[string]any) { b["wallet"] = "0x90f79bf6eb2c4f870365e785982e1f101e93b906" }), http.StatusNotFound},
		{"not a model owner", base(func(b map[string]any) { b["wallet"] = apptest.CustomerWallet }), http.StatusForbidden},
		{"missing name", base(func(b map[string]any) { b["name"] = "" }), http.StatusBadRequest},
		{"bad cid", base(func(b map[string]any) { b["ipfsCid"] = "not-a-cid" }), http.StatusBadRequest},
		{"zero price", base(func(b map[string]any) { b["pricePerMinute"] = "0" }), http.StatusBadRequest},
		{"fractional price", base(func(b map[string]any) { b["pricePerMinute"] = 1.5 }), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.Do(t, http.MethodPost, "/models", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestModels_CreateLedgerFailure(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})
	env.RegisterOwner(t, creatorWallet)
	env.Gateway.RegisterErr = errors.New("nonce too low")

	rec := env.Do(t, http.MethodPost, "/models", map[string]any{
		"wallet": creatorWallet, "name": "Sentiment", "ipfsCid": validCID, "pricePerMinute": "1000",
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "LEDGER_ERROR", apptest.Decode[dto.ErrorResponse](t, rec).Code)

	rec = env.Do(t, http.MethodGet, "/models?owner="+creatorWallet, nil)
	assert.Empty(t, apptest.Decode[[]model.Model](t, rec))
}

func TestModels_UpdatePrice(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})
	env.RegisterOwner(t, creatorWallet)
	created := createModel(t, env, "1000")

	rec := env.Do(t, http.MethodPut, "/models/"+created.ID+"/price", map[string]any{
		"newPricePerMinute": "2000", "wallet": apptest.CustomerWallet,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.Do(t, http.MethodPut, "/models/"+created.ID+"/price", map[string]any{
		"newPricePerMinute": "-5", "wallet": creatorWallet,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.Do(t, http.MethodPut, "/models/2/price", map[string]any{
		"newPricePerMinute": 2000, "wallet": creatorWallet,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	update := apptest.Decode[dto.UpdatePriceResponse](t, rec)
	assert.True(t, update.Success)
	assert.NotEmpty(t, update.TxHash)
	assert.Equal(t, created.ID, update.ModelID)
	assert.Equal(t, "2000", update.PricePerMinute)

	rec = env.Do(t, http.MethodGet, "/models/blockchain/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := apptest.Decode[service.ChainModelView](t, rec)
	assert.Equal(t, "2000", view.PricePerMinute)
	assert.Equal(t, "chain", view.Source)
}

func TestModels_UpdatePriceLedgerErrors(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})
	env.RegisterOwner(t, creatorWallet)
	created := createModel(t, env, "1000")
	path := "/models/" + created.ID + "/price"
	body := map[string]any{"newPricePerMinute": "2000", "wallet": creatorWallet}

	env.Gateway.UpdateErr = &chain.RevertError{Method: "updatePrice", Reason: "Not model owner"}
	rec := env.Do(t, http.MethodPut, path, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := apptest.Decode[dto.ErrorResponse](t, rec)
	assert.Equal(t, "CHAIN_REVERT", resp.Code)
	assert.Contains(t, resp.Details, "Not model owner")

	env.Gateway.UpdateErr = errors.New("connection reset")
	rec = env.Do(t, http.MethodPut, path, body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = env.Do(t, http.MethodGet, "/models/"+created.ID, nil)
	assert.Equal(t, "1000", apptest.Decode[model.Model](t, rec).PricePerMinute)
}

func TestModels_Delete(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})
	env.RegisterOwner(t, creatorWallet)
	created := createModel(t, env, "1000")

	rec := env.Do(t, http.MethodDelete, "/models/"+created.ID+"?wallet="+apptest.CustomerWallet, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.Do(t, http.MethodDelete, "/models/"+created.ID+"?wallet="+creatorWallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, apptest.Decode[model.Model](t, rec).Active)

	rec = env.Do(t, http.MethodGet, "/models?owner="+creatorWallet, nil)
	assert.Empty(t, apptest.Decode[[]model.Model](t, rec))
}

func TestModels_ChainReads(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})

	rec := env.Do(t, http.MethodGet, "/models/blockchain/next-id", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", apptest.Decode[dto.NextIDResponse](t, rec).NextID)

	rec = env.Do(t, http.MethodGet, "/models/blockchain/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := apptest.Decode[service.ChainModelView](t, rec)
	assert.Equal(t, "QmQAModelBasicQuestions", view.IPFSCid)
	assert.True(t, view.Active)

	rec = env.Do(t, http.MethodGet, "/models/blockchain/77", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.Do(t, http.MethodGet, "/models/blockchain/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModels_ChainDisabled(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{NoChain: true})

	rec := env.Do(t, http.MethodGet, "/models/blockchain/next-id", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "blockchain integration disabled", apptest.Decode[dto.ErrorResponse](t, rec).Error)

	rec = env.Do(t, http.MethodGet, "/models/blockchain/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "catalog", apptest.Decode[service.ChainModelView](t, rec).Source)
}
