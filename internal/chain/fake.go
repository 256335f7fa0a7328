package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
)

// Fake is an in-memory Gateway. It backs tests and runs with CHAIN_ENABLED=false
// where a ledger is still wanted for local demos. Failures can be injected per operation.
type Fake struct {
	mu sync.Mutex

	now func() time.Time

	models      map[string]*OnChainModel
	nextModelID int64

	requests      map[string]*InferenceRequest
	nextRequestID int64
	commits       map[string]int

	nodes      map[common.Address]bool
	admin      common.Address
	commission common.Address
	publisher  common.Address
	payer      common.Address

	feed event.Feed

	// Injected failures, returned as-is when non-nil.
	ReserveErr  error
	CommitErr   error
	RegisterErr error
	UpdateErr   error
	PriceErr    error
}

// NewFake returns an empty ledger whose ids start at 1.
func NewFake() *Fake {
	return &Fake{
		now:           time.Now,
		models:        make(map[string]*OnChainModel),
		nextModelID:   1,
		requests:      make(map[string]*InferenceRequest),
		nextRequestID: 1,
		commits:       make(map[string]int),
		nodes:         make(map[common.Address]bool),
		admin:         fakeAddress("admin"),
		commission:    fakeAddress("commission"),
		publisher:     fakeAddress("publisher"),
		payer:         fakeAddress("payer"),
	}
}

func fakeAddress(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}

// SetClock overrides the time source.
func (f *Fake) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// AddModel seeds a model under an explicit id.
func (f *Fake) AddModel(id int64, owner common.Address, contentPointer string, price *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models[big.NewInt(id).String()] = &OnChainModel{
		ID:             big.NewInt(id),
		Owner:          owner,
		ContentPointer: contentPointer,
		PricePerMinute: new(big.Int).Set(price),
		Active:         true,
	}
	if id >= f.nextModelID {
		f.nextModelID = id + 1
	}
}

// Commits returns how many times submitResult succeeded for a request.
func (f *Fake) Commits(requestID *big.Int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits[requestID.String()]
}

// Emit publishes an InferenceRequested event to subscribers.
// It blocks until every subscriber has received it.
func (f *Fake) Emit(ev *PaymentRequested) int {
	return f.feed.Send(ev)
}

func (f *Fake) ResolvePrice(_ context.Context, modelID *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PriceErr != nil {
		return nil, f.PriceErr
	}
	m, ok := f.models[modelID.String()]
	if !ok {
		return nil, ErrModelNotOnChain
	}
	return new(big.Int).Set(m.PricePerMinute), nil
}

func (f *Fake) Reserve(_ context.Context, modelID *big.Int, minutes int64, value *big.Int) (*Reservation, error) {
	f.mu.Lock()
	if f.ReserveErr != nil {
		f.mu.Unlock()
		return nil, f.ReserveErr
	}
	m, ok := f.models[modelID.String()]
	if !ok {
		f.mu.Unlock()
		return nil, &RevertError{Method: "requestInference", Reason: "Model not active"}
	}
	if value.Cmp(TotalCost(m.PricePerMinute, minutes)) < 0 {
		f.mu.Unlock()
		return nil, &RevertError{Method: "requestInference", Reason: "Insufficient payment"}
	}

	id := big.NewInt(f.nextRequestID)
	f.nextRequestID++
	expires := f.now().Add(time.Duration(minutes) * time.Minute).UTC().Truncate(time.Second)
	f.requests[id.String()] = &InferenceRequest{
		RequestID:  id,
		User:       f.payer,
		ModelID:    new(big.Int).Set(modelID),
		PaidAmount: new(big.Int).Set(value),
		ExpiresAt:  expires,
	}
	f.mu.Unlock()

	txHash := common.BytesToHash(crypto.Keccak256([]byte("reserve"), id.Bytes()))
	ev := &PaymentRequested{
		RequestID: id,
		User:      f.payer,
		ModelID:   new(big.Int).Set(modelID),
		Minutes:   big.NewInt(minutes),
		ExpiresAt: expires,
		TxHash:    txHash,
	}
	// Delivery mirrors a websocket feed and must not hold up the caller.
	go f.feed.Send(ev)

	return &Reservation{RequestID: id, TxHash: txHash, Value: value, Minutes: minutes, ExpiresAt: expires}, nil
}

func (f *Fake) Commit(_ context.Context, requestID *big.Int) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CommitErr != nil {
		return nil, f.CommitErr
	}
	req, ok := f.requests[requestID.String()]
	if !ok {
		return nil, &RevertError{Method: "submitResult", Reason: "Invalid request"}
	}
	if req.Fulfilled {
		return nil, &RevertError{Method: "submitResult", Reason: "Already fulfilled"}
	}
	req.Fulfilled = true
	f.commits[requestID.String()]++
	return &Receipt{
		RequestID: requestID,
		TxHash:    common.BytesToHash(crypto.Keccak256([]byte("commit"), requestID.Bytes())),
	}, nil
}

func (f *Fake) RegisterModel(_ context.Context, contentPointer string, price *big.Int) (*big.Int, common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RegisterErr != nil {
		return nil, common.Hash{}, f.RegisterErr
	}
	id := big.NewInt(f.nextModelID)
	f.nextModelID++
	f.models[id.String()] = &OnChainModel{
		ID:             id,
		Owner:          f.publisher,
		ContentPointer: contentPointer,
		PricePerMinute: new(big.Int).Set(price),
		Active:         true,
	}
	return new(big.Int).Set(id), common.BytesToHash(crypto.Keccak256([]byte("register"), id.Bytes())), nil
}

func (f *Fake) UpdatePrice(_ context.Context, modelID, price *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return common.Hash{}, f.UpdateErr
	}
	m, ok := f.models[modelID.String()]
	if !ok {
		return common.Hash{}, &RevertError{Method: "updatePrice", Reason: "Not model owner"}
	}
	m.PricePerMinute = new(big.Int).Set(price)
	return common.BytesToHash(crypto.Keccak256([]byte("price"), modelID.Bytes(), price.Bytes())), nil
}

func (f *Fake) GetModel(_ context.Context, modelID *big.Int) (*OnChainModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.models[modelID.String()]
	if !ok {
		return nil, ErrModelNotOnChain
	}
	cp := *m
	cp.PricePerMinute = new(big.Int).Set(m.PricePerMinute)
	return &cp, nil
}

func (f *Fake) NextModelID(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return big.NewInt(f.nextModelID), nil
}

func (f *Fake) RequestStatus(_ context.Context, requestID *big.Int) (*InferenceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[requestID.String()]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (f *Fake) NextRequestID(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return big.NewInt(f.nextRequestID), nil
}

func (f *Fake) CommissionAccount(context.Context) (common.Address, error) {
	return f.commission, nil
}

func (f *Fake) QuoteInference(ctx context.Context, modelID *big.Int, minutes int64) (*UnsignedTx, *big.Int, error) {
	price, err := f.ResolvePrice(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	tx, err := packRequestInference(fakeAddress("inference-manager"), modelID, minutes, TotalCost(price, minutes))
	if err != nil {
		return nil, nil, err
	}
	return tx, price, nil
}

func (f *Fake) AddNode(_ context.Context, node common.Address) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[node] = true
	return common.BytesToHash(crypto.Keccak256([]byte("add"), node.Bytes())), nil
}

func (f *Fake) RemoveNode(_ context.Context, node common.Address) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nodes, node)
	return common.BytesToHash(crypto.Keccak256([]byte("remove"), node.Bytes())), nil
}

func (f *Fake) IsApproved(_ context.Context, node common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[node], nil
}

func (f *Fake) Admin(context.Context) (common.Address, error) {
	return f.admin, nil
}

func (f *Fake) SubscribePaymentRequests(_ context.Context, sink chan<- *PaymentRequested) (event.Subscription, error) {
	return f.feed.Subscribe(sink), nil
}

var (
	_ Gateway = (*Fake)(nil)
	_ Gateway = (*Client)(nil)
)
