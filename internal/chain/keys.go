package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account names a service-operated signing account.
type Account string

const (
	// AccountPayer funds requestInference on behalf of customers.
	AccountPayer Account = "payer"
	// AccountNode is an approved node that calls submitResult.
	AccountNode Account = "node"
	// AccountPublisher registers models and updates prices.
	AccountPublisher Account = "publisher"
	// AccountAdmin manages the NodeRegistry.
	AccountAdmin Account = "admin"
)

// KeyProvider supplies signing keys. Keys are injected, never compiled in.
type KeyProvider interface {
	Key(ctx context.Context, account Account) (*ecdsa.PrivateKey, error)
}

// StaticKeyProvider holds keys parsed once at startup.
type StaticKeyProvider struct {
	keys map[Account]*ecdsa.PrivateKey
}

// NewStaticKeyProvider parses hex private keys (with or without 0x). Empty entries are skipped.
func NewStaticKeyProvider(hexKeys map[Account]string) (*StaticKeyProvider, error) {
	p := &StaticKeyProvider{keys: make(map[Account]*ecdsa.PrivateKey, len(hexKeys))}
	for account, raw := range hexKeys {
		raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
		if raw == "" {
			continue
		}
		key, err := crypto.HexToECDSA(raw)
		if err != nil {
			// The key itself must never reach logs.
			return nil, fmt.Errorf("parse %s key: invalid secp256k1 private key", account)
		}
		p.keys[account] = key
	}
	return p, nil
}

// Key returns the key for an account or ErrMissingKey.
func (p *StaticKeyProvider) Key(_ context.Context, account Account) (*ecdsa.PrivateKey, error) {
	key, ok := p.keys[account]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, account)
	}
	return key, nil
}

// Address returns the address of an account, or the zero address if unset.
func (p *StaticKeyProvider) Address(account Account) common.Address {
	key, ok := p.keys[account]
	if !ok {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(key.PublicKey)
}
