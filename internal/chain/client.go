package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/inferchain/inferchain/internal/metrics"
	"golang.org/x/time/rate"
)

// Config configures the contract client.
type Config struct {
	RPCURL           string
	WSURL            string
	ModelRegistry    common.Address
	InferenceManager common.Address
	NodeRegistry     common.Address
	CallTimeout      time.Duration
	RPS              float64
}

// Client implements Gateway over JSON-RPC using go-ethereum bound contracts.
// Safe for concurrent use.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	cfg     Config
	keys    KeyProvider

	registry  *bind.BoundContract
	inference *bind.BoundContract
	nodes     *bind.BoundContract

	limiter  *rate.Limiter
	recorder metrics.Recorder
	logger   *slog.Logger

	// One lock per signing account keeps nonces ordered within this process.
	signMu map[Account]*sync.Mutex
}

// Dial connects to the RPC endpoint and resolves the chain id.
func Dial(ctx context.Context, cfg Config, keys KeyProvider, recorder metrics.Recorder, logger *slog.Logger) (*Client, error) {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	idCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()
	chainID, err := eth.ChainID(idCtx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	burst := int(cfg.RPS)
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		eth:       eth,
		chainID:   chainID,
		cfg:       cfg,
		keys:      keys,
		registry:  bind.NewBoundContract(cfg.ModelRegistry, ModelRegistryABI, eth, eth, eth),
		inference: bind.NewBoundContract(cfg.InferenceManager, InferenceManagerABI, eth, eth, eth),
		nodes:     bind.NewBoundContract(cfg.NodeRegistry, NodeRegistryABI, eth, eth, eth),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		recorder:  recorder,
		logger:    logger.With("component", "chain"),
		signMu: map[Account]*sync.Mutex{
			AccountPayer:     {},
			AccountNode:      {},
			AccountPublisher: {},
			AccountAdmin:     {},
		},
	}

	c.logger.Info("chain gateway connected", "chain_id", chainID.String())
	return c, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID returns the connected chain id.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Ping checks RPC connectivity.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	_, err := c.eth.BlockNumber(ctx)
	return err
}

// ResolvePrice returns the per-minute price of a registered model.
func (c *Client) ResolvePrice(ctx context.Context, modelID *big.Int) (*big.Int, error) {
	out, err := c.call(ctx, c.registry, "getPricePerMinute", modelID)
	if err != nil {
		if _, ok := IsRevert(err); ok {
			return nil, fmt.Errorf("%w: %v", ErrModelNotOnChain, err)
		}
		return nil, err
	}

	price := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if price == nil || price.Sign() == 0 {
		return nil, ErrModelNotOnChain
	}
	return price, nil
}

// Reserve escrows value for minutes of model time and returns the request id
// taken from the InferenceRequested event in the receipt.
func (c *Client) Reserve(ctx context.Context, modelID *big.Int, minutes int64, value *big.Int) (*Reservation, error) {
	receipt, err := c.transact(ctx, AccountPayer, c.inference, value, "requestInference", modelID, big.NewInt(minutes))
	if err != nil {
		return nil, err
	}

	ev, err := findInferenceRequested(c.inference, c.cfg.InferenceManager, receipt.Logs)
	if err != nil {
		return nil, err
	}

	return &Reservation{
		RequestID: ev.RequestID,
		TxHash:    receipt.TxHash,
		Value:     value,
		Minutes:   minutes,
		ExpiresAt: ev.ExpiresAt,
	}, nil
}

// Commit settles a request through submitResult, releasing escrow to the model
// owner and the commission account.
func (c *Client) Commit(ctx context.Context, requestID *big.Int) (*Receipt, error) {
	receipt, err := c.transact(ctx, AccountNode, c.inference, nil, "submitResult", requestID)
	if err != nil {
		return nil, err
	}
	return &Receipt{RequestID: requestID, TxHash: receipt.TxHash}, nil
}

// RegisterModel registers a content pointer and price, returning the new model id.
func (c *Client) RegisterModel(ctx context.Context, contentPointer string, price *big.Int) (*big.Int, common.Hash, error) {
	expected, err := c.NextModelID(ctx)
	if err != nil {
		return nil, common.Hash{}, err
	}

	receipt, err := c.transact(ctx, AccountPublisher, c.registry, nil, "registerModel", contentPointer, price)
	if err != nil {
		return nil, common.Hash{}, err
	}

	registeredID := ModelRegistryABI.Events[EventModelRegistered].ID
	for _, l := range receipt.Logs {
		if l.Address != c.cfg.ModelRegistry || len(l.Topics) == 0 || l.Topics[0] != registeredID {
			continue
		}
		var ev modelRegisteredLog
		if err := c.registry.UnpackLog(&ev, EventModelRegistered, *l); err == nil && ev.ModelId != nil {
			return ev.ModelId, receipt.TxHash, nil
		}
	}

	// Contracts without the event assign ids sequentially.
	return expected, receipt.TxHash, nil
}

// UpdatePrice sets a model's per-minute price.
func (c *Client) UpdatePrice(ctx context.Context, modelID, price *big.Int) (common.Hash, error) {
	receipt, err := c.transact(ctx, AccountPublisher, c.registry, nil, "updatePrice", modelID, price)
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

// GetModel reads a ModelRegistry record.
func (c *Client) GetModel(ctx context.Context, modelID *big.Int) (*OnChainModel, error) {
	out, err := c.call(ctx, c.registry, "getModel", modelID)
	if err != nil {
		if _, ok := IsRevert(err); ok {
			return nil, fmt.Errorf("%w: %v", ErrModelNotOnChain, err)
		}
		return nil, err
	}

	m := &OnChainModel{
		ID:             modelID,
		Owner:          *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		ContentPointer: *abi.ConvertType(out[1], new(string)).(*string),
		PricePerMinute: *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		Active:         *abi.ConvertType(out[3], new(bool)).(*bool),
	}
	if m.Owner == (common.Address{}) {
		return nil, ErrModelNotOnChain
	}
	return m, nil
}

// NextModelID returns the id the next registration will receive.
func (c *Client) NextModelID(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, c.registry, "nextModelId")
}

// RequestStatus reads an InferenceManager request record.
func (c *Client) RequestStatus(ctx context.Context, requestID *big.Int) (*InferenceRequest, error) {
	out, err := c.call(ctx, c.inference, "requests", requestID)
	if err != nil {
		return nil, err
	}

	req := &InferenceRequest{
		RequestID:  requestID,
		User:       *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		ModelID:    *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		PaidAmount: *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		Fulfilled:  *abi.ConvertType(out[4], new(bool)).(*bool),
	}
	expires := *abi.ConvertType(out[3], new(*big.Int)).(**big.Int)
	req.ExpiresAt = time.Unix(expires.Int64(), 0).UTC()

	if req.User == (common.Address{}) {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// NextRequestID returns the id the next inference request will receive.
func (c *Client) NextRequestID(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, c.inference, "nextRequestId")
}

// CommissionAccount returns the platform commission address.
func (c *Client) CommissionAccount(ctx context.Context) (common.Address, error) {
	return c.callAddress(ctx, c.inference, "commissionAccount")
}

// QuoteInference prices a request and packs the unsigned requestInference call.
func (c *Client) QuoteInference(ctx context.Context, modelID *big.Int, minutes int64) (*UnsignedTx, *big.Int, error) {
	price, err := c.ResolvePrice(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	tx, err := packRequestInference(c.cfg.InferenceManager, modelID, minutes, TotalCost(price, minutes))
	if err != nil {
		return nil, nil, err
	}
	return tx, price, nil
}

// AddNode approves a node.
func (c *Client) AddNode(ctx context.Context, node common.Address) (common.Hash, error) {
	receipt, err := c.transact(ctx, AccountAdmin, c.nodes, nil, "addNode", node)
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

// RemoveNode revokes a node.
func (c *Client) RemoveNode(ctx context.Context, node common.Address) (common.Hash, error) {
	receipt, err := c.transact(ctx, AccountAdmin, c.nodes, nil, "removeNode", node)
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

// IsApproved reports whether a node is approved.
func (c *Client) IsApproved(ctx context.Context, node common.Address) (bool, error) {
	out, err := c.call(ctx, c.nodes, "isApproved", node)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// Admin returns the NodeRegistry admin.
func (c *Client) Admin(ctx context.Context) (common.Address, error) {
	return c.callAddress(ctx, c.nodes, "admin")
}

// SubscribePaymentRequests streams InferenceRequested events over the websocket endpoint.
// The subscription ends when ctx is cancelled, Unsubscribe is called, or the connection fails.
func (c *Client) SubscribePaymentRequests(ctx context.Context, sink chan<- *PaymentRequested) (event.Subscription, error) {
	if c.cfg.WSURL == "" {
		return nil, errors.New("websocket endpoint not configured")
	}

	ws, err := ethclient.DialContext(ctx, c.cfg.WSURL)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	contract := bind.NewBoundContract(c.cfg.InferenceManager, InferenceManagerABI, ws, ws, ws)
	logs, sub, err := contract.WatchLogs(&bind.WatchOpts{Context: ctx}, EventInferenceRequested)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("watch %s: %w", EventInferenceRequested, err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer ws.Close()
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				ev, err := decodeInferenceRequested(contract, l)
				if err != nil {
					c.logger.Warn("undecodable event", "tx_hash", l.TxHash.Hex(), "error", err)
					continue
				}
				select {
				case sink <- ev:
				case err := <-sub.Err():
					return err
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (c *Client) call(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit: %w", method, err)
	}

	start := time.Now()
	var out []interface{}
	err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
	c.recorder.ObserveChainCall(time.Since(start), err != nil)
	if err != nil {
		return nil, wrapCallError(method, err)
	}
	return out, nil
}

func (c *Client) callBig(ctx context.Context, contract *bind.BoundContract, method string) (*big.Int, error) {
	out, err := c.call(ctx, contract, method)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *Client) callAddress(ctx context.Context, contract *bind.BoundContract, method string) (common.Address, error) {
	out, err := c.call(ctx, contract, method)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// transact signs with account, sends, and waits for the receipt under one deadline.
func (c *Client) transact(ctx context.Context, account Account, contract *bind.BoundContract, value *big.Int, method string, args ...interface{}) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	key, err := c.keys.Key(ctx, account)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = value

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit: %w", method, err)
	}

	start := time.Now()
	mu := c.signMu[account]
	mu.Lock()
	tx, err := contract.Transact(opts, method, args...)
	mu.Unlock()
	if err != nil {
		c.recorder.ObserveChainCall(time.Since(start), true)
		return nil, wrapCallError(method, err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	c.recorder.ObserveChainCall(time.Since(start), err != nil)
	if err != nil {
		return nil, fmt.Errorf("wait for %s %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &RevertError{Method: method}
	}

	c.logger.Debug("transaction mined",
		"method", method,
		"account", string(account),
		"tx_hash", receipt.TxHash.Hex(),
		"gas_used", receipt.GasUsed,
	)
	return receipt, nil
}

// wrapCallError converts node errors into RevertError where a revert reason is available.
func wrapCallError(method string, err error) error {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if raw, decErr := hexutil.Decode(hexData); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return &RevertError{Method: method, Reason: reason}
				}
			}
		}
	}

	msg := err.Error()
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		reason := strings.TrimSpace(strings.TrimPrefix(msg[i+len("execution reverted"):], ":"))
		return &RevertError{Method: method, Reason: reason}
	}
	return fmt.Errorf("%s: %w", method, err)
}
