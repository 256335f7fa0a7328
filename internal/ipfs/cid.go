// Package ipfs pins model artifacts to Pinata and validates content identifiers.
package ipfs

import (
	"errors"
	"regexp"

	"github.com/ipfs/go-cid"
)

// ErrInvalidCID is returned for content pointers that are not CIDs.
var ErrInvalidCID = errors.New("invalid CID")

// Lenient mode accepts any base58/base32-looking pointer so placeholder
// identifiers such as seeded demo models keep working.
var lenientCID = regexp.MustCompile(`^[A-Za-z0-9]{2,128}$`)

// ValidateCID checks a content pointer. In strict mode it must decode as a CID.
func ValidateCID(s string, strict bool) error {
	if strict {
		if _, err := cid.Decode(s); err != nil {
			return ErrInvalidCID
		}
		return nil
	}
	if !lenientCID.MatchString(s) {
		return ErrInvalidCID
	}
	return nil
}
