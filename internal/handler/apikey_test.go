package handler_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferchain/inferchain/internal/handler/dto"
	"github.com/inferchain/inferchain/internal/testutil/apptest"
)

// generate issues a key, registering the request's wallet first.
func generate(t *testing.T, env *apptest.Env, body map[string]any) dto.GenerateKeyResponse {
	t.Helper()
	if wallet, ok := body["wallet"].(string); ok {
		env.RegisterCustomer(t, wallet)
	}
	rec := env.Do(t, http.MethodPost, "/api-keys/generate", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return apptest.Decode[dto.GenerateKeyResponse](t, rec)
}

func TestAPIKeys_GeneratePaid(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{PaymentsEnabled: true})

	resp := generate(t, env, map[string]any{
		"wallet":        apptest.CustomerWallet,
		"modelId":       1,
		"durationHours": 1,
	})

	assert.NotEmpty(t, resp.APIKey)
	assert.Equal(t, env.QAModel.ID, resp.ModelID)
	require.NotNil(t, resp.ChainModelID)
	assert.Equal(t, "1", *resp.ChainModelID)
	assert.Equal(t, 1, resp.DurationHours)
	assert.True(t, resp.PaymentProcessed)
	assert.Equal(t, "1", resp.RequestID)
	assert.False(t, resp.AccountCreated)
	assert.WithinDuration(t, env.Clock.Now().Add(time.Hour), resp.ExpiresAt, time.Second)

	require.NotNil(t, resp.PaymentDetails)
	assert.Equal(t, "60000000000000000", resp.PaymentDetails.TotalCostWei)
	assert.Equal(t, "0.06 ETH", resp.PaymentDetails.TotalCost)
	assert.Equal(t, int64(60), resp.PaymentDetails.DurationMinutes)
	assert.Equal(t, "settled", resp.PaymentDetails.Settlement)
	assert.Equal(t, "0.045 ETH", resp.PaymentDetails.Distribution["modelOwner"])
	assert.Equal(t, "0.015 ETH", resp.PaymentDetails.Distribution["platform"])
}

func TestAPIKeys_GenerateDefaultsTo24Hours(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})

	resp := generate(t, env, map[string]any{"email": "alice@example.com", "modelId": env.QAModel.ID})

	assert.Equal(t, 24, resp.DurationHours)
	assert.False(t, resp.PaymentProcessed)
	assert.Nil(t, resp.PaymentDetails)
	assert.WithinDuration(t, env.Clock.Now().Add(24*time.Hour), resp.ExpiresAt, time.Second)
}

func TestAPIKeys_GenerateRejections(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"no identity", map[string]any{"modelId": "1"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"no model", map[string]any{"wallet": apptest.CustomerWallet}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad wallet", map[string]any{"wallet": "0x123", "modelId": "1"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"zero hours", map[string]any{"wallet": apptest.CustomerWallet, "modelId": "1", "durationHours": 0}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown model", map[string]any{"wallet": apptest.CustomerWallet, "modelId": "99"}, http.StatusNotFound, "MODEL_NOT_FOUND"},
		{"unregistered wallet", map[string]any{"wallet": "0x3000000000000000000000000000000000000003", "modelId": "1"}, http.StatusNotFound, "USER_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.Do(t, http.MethodPost, "/api-keys/generate", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, apptest.Decode[dto.ErrorResponse](t, rec).Code)
		})
	}

	rec := env.Do(t, http.MethodPost, "/api-keys/generate", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.Store.Rentals())
}

func TestAPIKeys_GenerateDegradesWhenLedgerFails(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{PaymentsEnabled: true})
	env.Gateway.ReserveErr = errors.New("insufficient funds for gas")

	resp := generate(t, env, map[string]any{"wallet": apptest.CustomerWallet, "modelId": "1", "durationHours": 1})

	assert.False(t, resp.PaymentProcessed)
	assert.Empty(t, resp.RequestID)
	assert.Nil(t, resp.PaymentDetails)
	assert.Len(t, env.Store.Rentals(), 1)

	rec := env.Do(t, http.MethodPost, "/api-keys/validate", map[string]string{"apiKey": resp.APIKey})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeys_GenerateFailClosed(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{PaymentsEnabled: true, FailClosed: true})
	env.Gateway.ReserveErr = errors.New("insufficient funds for gas")
	env.RegisterCustomer(t, apptest.CustomerWallet)

	rec := env.Do(t, http.MethodPost, "/api-keys/generate", map[string]any{"wallet": apptest.CustomerWallet, "modelId": "1"})

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	body := apptest.Decode[dto.ErrorResponse](t, rec)
	assert.Equal(t, "PAYMENT_REQUIRED", body.Code)
	assert.Contains(t, body.Details, "insufficient funds")
	assert.Empty(t, env.Store.Rentals())
}

func TestAPIKeys_Validate(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})
	key := generate(t, env, map[string]any{"wallet": apptest.CustomerWallet, "modelId": "1", "durationHours": 1})

	rec := env.Do(t, http.MethodPost, "/api-keys/validate", map[string]string{"apiKey": key.APIKey})
	require.Equal(t, http.StatusOK, rec.Code)
	valid := apptest.Decode[dto.ValidateKeyResponse](t, rec)
	assert.True(t, valid.Valid)
	assert.Equal(t, env.QAModel.ID, valid.ModelID)
	require.NotNil(t, valid.ExpiresAt)
	assert.True(t, valid.ExpiresAt.Equal(key.ExpiresAt))

	// Repeated validation leaves the rental untouched.
	before := env.Store.Rentals()[0]
	env.Do(t, http.MethodPost, "/api-keys/validate", map[string]string{"apiKey": key.APIKey})
	after := env.Store.Rentals()[0]
	assert.Equal(t, before.ExpiresAt, after.ExpiresAt)
	assert.Equal(t, before.Active, after.Active)

	rec = env.Do(t, http.MethodPost, "/api-keys/validate", map[string]string{"apiKey": "ik_test_nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "API key not found", apptest.Decode[dto.ValidateKeyResponse](t, rec).Reason)

	rec = env.Do(t, http.MethodPost, "/api-keys/validate", map[string]string{"apiKey": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.Clock.Advance(time.Hour)
	rec = env.Do(t, http.MethodPost, "/api-keys/validate", map[string]string{"apiKey": key.APIKey})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	expired := apptest.Decode[dto.ValidateKeyResponse](t, rec)
	assert.False(t, expired.Valid)
	assert.Equal(t, "API key expired", expired.Reason)
}

func TestAPIKeys_List(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})

	rec := env.Do(t, http.MethodGet, "/api-keys", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.Do(t, http.MethodGet, "/api-keys?wallet="+apptest.CustomerWallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, apptest.Decode[[]dto.ListedKeyResponse](t, rec))

	first := generate(t, env, map[string]any{"wallet": apptest.CustomerWallet, "modelId": "1", "durationHours": 1})
	env.Clock.Advance(time.Minute)
	second := generate(t, env, map[string]any{"wallet": apptest.CustomerWallet, "modelId": "1", "durationHours": 2})
	env.Clock.Advance(90 * time.Minute)

	rec = env.Do(t, http.MethodGet, "/api-keys?wallet="+apptest.CustomerWallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	keys := apptest.Decode[[]dto.ListedKeyResponse](t, rec)
	require.Len(t, keys, 2)
	assert.Equal(t, second.APIKey, keys[0].APIKey)
	assert.False(t, keys[0].IsExpired)
	assert.Equal(t, first.APIKey, keys[1].APIKey)
	assert.True(t, keys[1].IsExpired)
}

func TestAPIKeys_Revoke(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})
	key := generate(t, env, map[string]any{"wallet": apptest.CustomerWallet, "modelId": "1"})

	rec := env.Do(t, http.MethodPost, "/api-keys/revoke", map[string]string{"apiKey": key.APIKey, "wallet": apptest.OwnerWallet})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.Do(t, http.MethodPost, "/api-keys/revoke", map[string]string{"apiKey": "ik_test_nope", "wallet": apptest.CustomerWallet})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.Do(t, http.MethodPost, "/api-keys/revoke", map[string]string{"apiKey": key.APIKey, "wallet": apptest.CustomerWallet})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, apptest.Decode[dto.RevokeKeyResponse](t, rec).Revoked)

	rec = env.Do(t, http.MethodPost, "/api-keys/validate", map[string]string{"apiKey": key.APIKey})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "API key revoked", apptest.Decode[dto.ValidateKeyResponse](t, rec).Reason)
}
