package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/inferchain/inferchain/internal/auth"
	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/config"
	"github.com/inferchain/inferchain/internal/metrics"
	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/testutil/memstore"
)

const (
	testOwner     = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	testCustomer  = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	testPriceWei  = 1_000_000_000_000_000
	testChainID   = "1"
	testCIDv0     = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	testJWTSecret = "0123456789abcdef0123456789abcdef"
)

var testArgon2Params = auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type envOptions struct {
	paymentsEnabled bool
	failClosed      bool
	mode            string
	noChain         bool
}

type testEnv struct {
	store    *memstore.Store
	cache    *memstore.Cache
	gateway  *chain.Fake
	recorder *metrics.InMemoryRecorder
	clock    *testClock

	payments  *PaymentService
	catalog   *CatalogService
	apiKeys   *APIKeyService
	qa        *QAService
	users     *UserService
	inference *InferenceService
	nodes     *NodeService

	qaModel *model.Model
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	if opts.mode == "" {
		opts.mode = config.SettlementSync
	}

	env := &testEnv{
		store:    memstore.NewStore(),
		cache:    memstore.NewCache(),
		gateway:  chain.NewFake(),
		recorder: metrics.NewInMemory(),
		clock:    newTestClock(),
	}
	logger := discardLogger()

	sealer, err := auth.NewSealer([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}

	var (
		payments chain.Payments
		registry chain.Registry
		gateway  chain.Gateway
		nodes    chain.Nodes
	)
	if !opts.noChain {
		payments, registry, gateway, nodes = env.gateway, env.gateway, env.gateway, env.gateway
	}

	env.payments = NewPaymentService(payments, env.store, PaymentConfig{
		Enabled:       opts.paymentsEnabled,
		FailClosed:    opts.failClosed,
		Mode:          opts.mode,
		CommissionBps: 2500,
		MaxAttempts:   6,
		SyncGrace:     time.Minute,
	}, env.recorder, logger)
	env.payments.SetClock(env.clock.Now)

	env.catalog = NewCatalogService(env.store, env.store, registry, false, logger)
	env.catalog.now = env.clock.Now

	env.apiKeys = NewAPIKeyService(env.store, env.store, env.cache, env.catalog, env.payments, sealer,
		APIKeyConfig{TokenEnv: "test", DefaultHours: 24, MaxHours: 8760}, env.recorder, logger)
	env.apiKeys.SetClock(env.clock.Now)

	env.qa = NewQAService(env.catalog, env.payments, true, env.recorder, logger)
	env.qa.SetClock(env.clock.Now)

	env.users = NewUserService(env.store, env.store, env.catalog,
		auth.NewPasswordHasher(testArgon2Params), auth.NewSessionManager(testJWTSecret, time.Hour), logger)
	env.users.now = env.clock.Now

	env.inference = NewInferenceService(gateway, env.store, env.catalog, 6, logger)
	env.inference.now = env.clock.Now
	env.nodes = NewNodeService(nodes, logger)

	// The seeded Q&A model, mirrored on chain as id 1.
	env.gateway.AddModel(1, common.HexToAddress(testOwner), "QmQAModelBasicQuestions", big.NewInt(testPriceWei))
	seeded, _, err := env.catalog.Seed(context.Background(), &model.Model{
		ChainModelID:   ptr(testChainID),
		OwnerWallet:    testOwner,
		Name:           "Basic Q&A Model",
		Description:    "Answers basic questions",
		ContentPointer: "QmQAModelBasicQuestions",
		PricePerMinute: "1000000000000000",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	env.qaModel = seeded

	return env
}

// registerCustomer registers testCustomer as a wallet account.
func registerCustomer(t *testing.T, env *testEnv) {
	t.Helper()
	if _, _, err := env.users.RegisterWallet(context.Background(), testCustomer, nil); err != nil {
		t.Fatalf("register customer: %v", err)
	}
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("not an integer: %q", s)
	}
	return v
}

func (e *testEnv) qaModelRental() *model.RentalContext {
	return &model.RentalContext{
		RentalID:  "rental-1",
		ModelID:   e.qaModel.ID,
		ExpiresAt: e.clock.Now().Add(time.Hour),
	}
}
