package chain

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// ErrInvalidAmount is returned for non-integer or non-positive wei strings.
var ErrInvalidAmount = errors.New("invalid wei amount")

var weiPerEther = big.NewInt(params.Ether)

// ParseWei parses a positive base-10 wei amount.
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return nil, ErrInvalidAmount
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

// ParseID parses a non-negative base-10 on-chain id.
func ParseID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return nil, ErrInvalidID
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, ErrInvalidID
	}
	return v, nil
}

// FormatEther renders wei as ETH with up to 6 decimals and a unit suffix, e.g. "0.06 ETH".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0 ETH"
	}
	r := new(big.Rat).SetFrac(wei, weiPerEther)
	s := r.FloatString(6)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s + " ETH"
}

// TotalCost is pricePerMinute × minutes.
func TotalCost(pricePerMinute *big.Int, minutes int64) *big.Int {
	return new(big.Int).Mul(pricePerMinute, big.NewInt(minutes))
}

// Split divides total between the model owner and the platform, where
// commissionBps is the platform share in basis points. Rounding favors the owner.
func Split(total *big.Int, commissionBps int64) (owner, platform *big.Int) {
	platform = new(big.Int).Mul(total, big.NewInt(commissionBps))
	platform.Quo(platform, big.NewInt(10000))
	owner = new(big.Int).Sub(total, platform)
	return owner, platform
}
