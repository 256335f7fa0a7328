package model

import "time"

// Model is a registered AI model offered for rent.
// ID is the canonical identifier; ChainModelID is the ModelRegistry id when mirrored on chain.
type Model struct {
	ID             string    `json:"id"`
	ChainModelID   *string   `json:"blockchainModelId,omitempty"`
	OwnerWallet    string    `json:"owner"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Category       string    `json:"category,omitempty"`
	ContentPointer string    `json:"ipfsCid"`
	PricePerMinute string    `json:"pricePerMinute"` // wei, decimal string
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// IsOwnedBy reports whether wallet is the recorded owner. Wallets are stored lowercased.
func (m *Model) IsOwnedBy(wallet string) bool {
	return wallet != "" && m.OwnerWallet == wallet
}

// OnChain reports whether the model is mirrored to the ModelRegistry contract.
func (m *Model) OnChain() bool {
	return m.ChainModelID != nil && *m.ChainModelID != ""
}

// ModelFilter narrows catalog listings.
type ModelFilter struct {
	Search string
	Owner  string
	Limit  int
	Offset int
}
