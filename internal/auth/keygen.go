// Package auth provides credential primitives: rental tokens, password hashing,
// sealed token storage and session JWTs.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Token format: ik_{env}_{prefix}_{secret}
// Example: ik_live_7a9x3k1f_4f8d2e1b...(64 hex)
const (
	TokenPrefixLen = 8  // Visible prefix length (hex encoded 4 bytes)
	TokenSecretLen = 64 // Secret length (hex encoded 32 bytes)
)

// Environment indicators for token prefix.
const (
	EnvLive = "live"
	EnvTest = "test"
)

var (
	// ErrInvalidTokenFormat indicates the token format is invalid.
	ErrInvalidTokenFormat = errors.New("invalid API key format")
	tokenFormatRegex      = regexp.MustCompile(`^ik_(live|test)_([a-f0-9]{8})_([a-f0-9]{64})$`)
)

// GeneratedToken contains the parts of a newly minted rental token.
type GeneratedToken struct {
	Plaintext string // Full token, returned to the customer
	Digest    string // SHA-256 hex, unique lookup key
	Prefix    string // 8-char visible prefix
}

// GenerateRentalToken mints a rental token from crypto/rand.
// The digest is the storage lookup key; the plaintext is never stored unsealed.
func GenerateRentalToken(env string) (*GeneratedToken, error) {
	if env != EnvLive && env != EnvTest {
		env = EnvLive
	}

	prefixBytes := make([]byte, TokenPrefixLen/2)
	if _, err := rand.Read(prefixBytes); err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	prefix := hex.EncodeToString(prefixBytes)

	secretBytes := make([]byte, TokenSecretLen/2)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	plaintext := fmt.Sprintf("ik_%s_%s_%s", env, prefix, hex.EncodeToString(secretBytes))

	return &GeneratedToken{
		Plaintext: plaintext,
		Digest:    TokenDigest(plaintext),
		Prefix:    prefix,
	}, nil
}

// TokenDigest returns the hex SHA-256 of a token.
// Tokens carry 256 bits of entropy so a fast hash is sufficient for lookup.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ParsedToken contains the parsed parts of a rental token.
type ParsedToken struct {
	Env    string
	Prefix string
	Secret string
}

// ParseRentalToken extracts the components from a plaintext token.
func ParseRentalToken(token string) (*ParsedToken, error) {
	matches := tokenFormatRegex.FindStringSubmatch(token)
	if matches == nil {
		return nil, ErrInvalidTokenFormat
	}

	return &ParsedToken{
		Env:    matches[1],
		Prefix: matches[2],
		Secret: matches[3],
	}, nil
}

// ValidTokenFormat checks if the token matches the expected format.
func ValidTokenFormat(token string) bool {
	return tokenFormatRegex.MatchString(token)
}

// EnvForAppEnv maps the application environment to a token environment tag.
func EnvForAppEnv(appEnv string) string {
	if appEnv == "production" {
		return EnvLive
	}
	return EnvTest
}
