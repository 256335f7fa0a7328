package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateRentalToken_Format(t *testing.T) {
	t.Parallel()

	token, err := GenerateRentalToken(EnvLive)
	if err != nil {
		t.Fatalf("GenerateRentalToken failed: %v", err)
	}

	if !strings.HasPrefix(token.Plaintext, "ik_live_") {
		t.Errorf("Token should start with ik_live_, got: %s", token.Plaintext)
	}
	if len(token.Prefix) != TokenPrefixLen {
		t.Errorf("Prefix should be %d chars, got: %d", TokenPrefixLen, len(token.Prefix))
	}
	if token.Digest != TokenDigest(token.Plaintext) {
		t.Error("Digest should be the SHA-256 of the plaintext")
	}
	if len(token.Digest) != 64 {
		t.Errorf("Digest should be 64 hex chars, got %d", len(token.Digest))
	}
	if !ValidTokenFormat(token.Plaintext) {
		t.Errorf("generated token does not match format: %s", token.Plaintext)
	}
}

func TestGenerateRentalToken_DefaultsToLive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  string
	}{
		{"invalid env", "invalid"},
		{"empty env", ""},
		{"staging env", "staging"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			token, err := GenerateRentalToken(tt.env)
			if err != nil {
				t.Fatalf("GenerateRentalToken failed: %v", err)
			}
			if !strings.HasPrefix(token.Plaintext, "ik_live_") {
				t.Errorf("Expected ik_live_ prefix for env %q, got: %s", tt.env, token.Plaintext)
			}
		})
	}
}

func TestGenerateRentalToken_Unique(t *testing.T) {
	t.Parallel()

	const numTokens = 200
	seen := make(map[string]bool, numTokens)

	for i := 0; i < numTokens; i++ {
		token, err := GenerateRentalToken(EnvTest)
		if err != nil {
			t.Fatalf("GenerateRentalToken failed: %v", err)
		}
		if seen[token.Digest] {
			t.Fatalf("Duplicate token at iteration %d", i)
		}
		seen[token.Digest] = true
	}
}

func TestParseRentalToken(t *testing.T) {
	t.Parallel()

	secret := strings.Repeat("ab", 32)

	tests := []struct {
		name       string
		token      string
		wantEnv    string
		wantPrefix string
		wantErr    error
	}{
		{name: "valid live token", token: "ik_live_0a1b2c3d_" + secret, wantEnv: "live", wantPrefix: "0a1b2c3d"},
		{name: "valid test token", token: "ik_test_deadbeef_" + secret, wantEnv: "test", wantPrefix: "deadbeef"},
		{name: "wrong scheme", token: "pk_live_0a1b2c3d_" + secret, wantErr: ErrInvalidTokenFormat},
		{name: "short prefix", token: "ik_live_0a1b_" + secret, wantErr: ErrInvalidTokenFormat},
		{name: "short secret", token: "ik_live_0a1b2c3d_abcd", wantErr: ErrInvalidTokenFormat},
		{name: "uppercase hex", token: "ik_live_0A1B2C3D_" + secret, wantErr: ErrInvalidTokenFormat},
		{name: "empty", token: "", wantErr: ErrInvalidTokenFormat},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parsed, err := ParseRentalToken(tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseRentalToken() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if parsed.Env != tt.wantEnv || parsed.Prefix != tt.wantPrefix || parsed.Secret != secret {
				t.Errorf("ParseRentalToken() = %+v", parsed)
			}
		})
	}
}

func TestEnvForAppEnv(t *testing.T) {
	t.Parallel()

	if EnvForAppEnv("production") != EnvLive {
		t.Error("production should mint live tokens")
	}
	if EnvForAppEnv("development") != EnvTest {
		t.Error("development should mint test tokens")
	}
}
