// Package apptest assembles the full HTTP stack over in-memory stores and the
// fake ledger for handler and end-to-end tests.
package apptest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/inferchain/inferchain/internal/auth"
	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/config"
	"github.com/inferchain/inferchain/internal/handler"
	"github.com/inferchain/inferchain/internal/ipfs"
	"github.com/inferchain/inferchain/internal/metrics"
	"github.com/inferchain/inferchain/internal/middleware"
	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/server"
	"github.com/inferchain/inferchain/internal/service"
	"github.com/inferchain/inferchain/internal/testutil/memstore"
)

// Fixtures shared by HTTP tests.
const (
	OwnerWallet    = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	CustomerWallet = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	QAPriceWei     = "1000000000000000"
	QAChainID      = "1"
	JWTSecret      = "0123456789abcdef0123456789abcdef"
	MaxBodyBytes   = 1 << 20
)

// Options selects the ledger behaviour of an Env.
type Options struct {
	PaymentsEnabled bool
	FailClosed      bool
	NoChain         bool
	// Pinner defaults to an unconfigured Pinata client.
	Pinner handler.Pinner
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current test time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env is a running application over in-memory dependencies.
type Env struct {
	Store    *memstore.Store
	Cache    *memstore.Cache
	Gateway  *chain.Fake
	Recorder *metrics.InMemoryRecorder
	Clock    *Clock
	Sessions *auth.SessionManager

	APIKeys *service.APIKeyService
	Catalog *service.CatalogService
	Users   *service.UserService

	QAModel *model.Model
	Router  http.Handler
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New builds an Env with the Q&A model seeded as chain id 1.
func New(t *testing.T, opts Options) *Env {
	t.Helper()

	env := &Env{
		Store:    memstore.NewStore(),
		Cache:    memstore.NewCache(),
		Gateway:  chain.NewFake(),
		Recorder: metrics.NewInMemory(),
		Clock:    &Clock{now: time.Now().UTC()},
		Sessions: auth.NewSessionManager(JWTSecret, time.Hour),
	}
	logger := DiscardLogger()
	env.Gateway.SetClock(env.Clock.Now)

	sealer, err := auth.NewSealer([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}

	// Interfaces stay untyped nil when the chain is off.
	var (
		payments chain.Payments
		registry chain.Registry
		gateway  chain.Gateway
		nodes    chain.Nodes
	)
	if !opts.NoChain {
		payments, registry, gateway, nodes = env.Gateway, env.Gateway, env.Gateway, env.Gateway
	}

	paymentSvc := service.NewPaymentService(payments, env.Store, service.PaymentConfig{
		Enabled:       opts.PaymentsEnabled,
		FailClosed:    opts.FailClosed,
		Mode:          config.SettlementSync,
		CommissionBps: 2500,
		MaxAttempts:   6,
		SyncGrace:     time.Minute,
	}, env.Recorder, logger)
	paymentSvc.SetClock(env.Clock.Now)

	env.Catalog = service.NewCatalogService(env.Store, env.Store, registry, false, logger)

	env.APIKeys = service.NewAPIKeyService(env.Store, env.Store, env.Cache, env.Catalog, paymentSvc, sealer,
		service.APIKeyConfig{TokenEnv: "test", DefaultHours: 24, MaxHours: 8760}, env.Recorder, logger)
	env.APIKeys.SetClock(env.Clock.Now)

	qaSvc := service.NewQAService(env.Catalog, paymentSvc, true, env.Recorder, logger)
	qaSvc.SetClock(env.Clock.Now)

	hasher := auth.NewPasswordHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	env.Users = service.NewUserService(env.Store, env.Store, env.Catalog, hasher, env.Sessions, logger)

	inferenceSvc := service.NewInferenceService(gateway, env.Store, env.Catalog, 6, logger)
	nodeSvc := service.NewNodeService(nodes, logger)

	env.Gateway.AddModel(1, common.HexToAddress(OwnerWallet), "QmQAModelBasicQuestions", mustWei(QAPriceWei))
	chainID := QAChainID
	seeded, _, err := env.Catalog.Seed(context.Background(), &model.Model{
		ChainModelID:   &chainID,
		OwnerWallet:    OwnerWallet,
		Name:           "Basic Q&A Model",
		Description:    "Answers basic questions",
		ContentPointer: "QmQAModelBasicQuestions",
		PricePerMinute: QAPriceWei,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	env.QAModel = seeded

	pinner := opts.Pinner
	if pinner == nil {
		pinner = ipfs.NewClient(ipfs.Config{BaseURL: "http://127.0.0.1:0"}, logger)
	}

	handlers := server.Handlers{
		Root: handler.New(handler.ServiceInfo{
			ChainEnabled:    !opts.NoChain,
			PaymentsEnabled: opts.PaymentsEnabled,
			SettlementMode:  config.SettlementSync,
		}),
		Health:    handler.NewHealthHandler(nil, nil, nil, logger),
		Metrics:   handler.NewMetricsHandler(env.Recorder),
		APIKeys:   handler.NewAPIKeyHandler(env.APIKeys, logger),
		QA:        handler.NewQAHandler(qaSvc, logger),
		Models:    handler.NewModelHandler(env.Catalog, logger),
		Users:     handler.NewUserHandler(env.Users, logger),
		Inference: handler.NewInferenceHandler(inferenceSvc, logger),
		Nodes:     handler.NewNodeHandler(nodeSvc, logger),
		IPFS:      handler.NewIPFSHandler(pinner, 1<<20, logger),
	}
	env.Router = server.NewRouter(handlers, server.RouterConfig{
		Logger:         logger,
		IsDevelopment:  true,
		AllowedOrigins: []string{"http://localhost:3000"},
		MaxBodyBytes:   MaxBodyBytes,
		Validator:      env.APIKeys,
		Sessions:       env.Sessions,
		RateLimit:      middleware.RateLimitConfig{Logger: logger},
	})

	return env
}

// Do sends a request through the router. body is JSON-encoded unless it is nil.
func (e *Env) Do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.Router.ServeHTTP(rec, req)
	return rec
}

// Decode unmarshals a response body.
func Decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

// RegisterCustomer registers a wallet with the default customer role.
func (e *Env) RegisterCustomer(t *testing.T, wallet string) {
	t.Helper()
	if _, _, err := e.Users.RegisterWallet(context.Background(), wallet, nil); err != nil {
		t.Fatalf("register customer: %v", err)
	}
}

// RegisterOwner registers a wallet with the modelOwner role.
func (e *Env) RegisterOwner(t *testing.T, wallet string) {
	t.Helper()
	if _, _, err := e.Users.RegisterWallet(context.Background(), wallet, []string{model.RoleModelOwner}); err != nil {
		t.Fatalf("register owner: %v", err)
	}
}

// AdminToken signs a session carrying the admin role.
func (e *Env) AdminToken(t *testing.T) string {
	t.Helper()
	token, _, err := e.Sessions.Issue("admin-user", "admin@example.com", []string{model.RoleAdmin})
	if err != nil {
		t.Fatalf("issue admin token: %v", err)
	}
	return token
}

func mustWei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad wei literal " + s)
	}
	return v
}
