package server_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferchain/inferchain/internal/handler/dto"
	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/testutil/apptest"
)

const creator = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"

// A creator lists a model, a customer rents it, asks a question and is
// turned away once the rental lapses.
func TestRouter_RentalLifecycle(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{PaymentsEnabled: true})

	rec := env.Do(t, http.MethodPost, "/users/register", map[string]any{
		"wallet": creator, "roles": []string{model.RoleModelOwner},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.Do(t, http.MethodPost, "/models", map[string]any{
		"wallet":         creator,
		"name":           "Tutor",
		"description":    "Answers study questions",
		"ipfsCid":        "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
		"pricePerMinute": "1000000000000000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := apptest.Decode[dto.RegisterModelResponse](t, rec)
	require.NotNil(t, created.ChainModelID)

	rec = env.Do(t, http.MethodGet, "/models?search=tutor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := apptest.Decode[[]model.Model](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
	assert.True(t, listed[0].Active)

	rec = env.Do(t, http.MethodPost, "/api-keys/generate", map[string]any{
		"wallet": apptest.CustomerWallet, "modelId": *created.ChainModelID, "durationHours": 1,
	})
	require.Equal(t, http.StatusNotFound, rec.Code, "an unregistered wallet must register first")

	rec = env.Do(t, http.MethodPost, "/users/register", map[string]any{"wallet": apptest.CustomerWallet})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.Do(t, http.MethodPost, "/api-keys/generate", map[string]any{
		"wallet": apptest.CustomerWallet, "modelId": *created.ChainModelID, "durationHours": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	key := apptest.Decode[dto.GenerateKeyResponse](t, rec)
	assert.True(t, key.PaymentProcessed)
	assert.Equal(t, created.ID, key.ModelID)

	rec = env.Do(t, http.MethodPost, "/qa/ask", map[string]string{"question": "what is ai"}, "X-API-Key", key.APIKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	answer := apptest.Decode[dto.AskResponse](t, rec)
	assert.Contains(t, answer.Answer, "AI (Artificial Intelligence)")
	assert.Equal(t, "Tutor", answer.ModelName)
	assert.Equal(t, created.ID, answer.ModelID)

	env.Clock.Advance(time.Hour + time.Second)

	rec = env.Do(t, http.MethodPost, "/api-keys/validate", map[string]string{"apiKey": key.APIKey})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	expired := apptest.Decode[dto.ValidateKeyResponse](t, rec)
	assert.False(t, expired.Valid)
	assert.Equal(t, "API key expired", expired.Reason)

	rec = env.Do(t, http.MethodPost, "/qa/ask", map[string]string{"question": "what is ai"}, "X-API-Key", key.APIKey)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_JSONFallbacks(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})

	rec := env.Do(t, http.MethodGet, "/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", apptest.Decode[dto.ErrorResponse](t, rec).Code)

	rec = env.Do(t, http.MethodPatch, "/api-keys/generate", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", apptest.Decode[dto.ErrorResponse](t, rec).Code)
}

func TestRouter_MalformedBodies(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})

	rec := env.Do(t, http.MethodPost, "/api-keys/generate", "not an object")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", apptest.Decode[dto.ErrorResponse](t, rec).Code)

	huge := map[string]string{"question": string(make([]byte, apptest.MaxBodyBytes))}
	rec = env.Do(t, http.MethodPost, "/api-keys/validate", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRouter_CommonHeaders(t *testing.T) {
	t.Parallel()
	env := apptest.New(t, apptest.Options{})

	rec := env.Do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = env.Do(t, http.MethodGet, "/", nil, "X-Request-ID", "req-123")
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
