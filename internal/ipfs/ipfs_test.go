package ipfs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const testCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateCID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		strict  bool
		wantErr bool
	}{
		{"v0 strict", testCID, true, false},
		{"v1 strict", "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi", true, false},
		{"placeholder lenient", "QmQAModelBasicQuestions", false, false},
		{"placeholder strict", "QmQAModelBasicQuestions", true, true},
		{"empty", "", false, true},
		{"path chars", "Qm/../etc", false, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateCID(tt.in, tt.strict)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCID(%q, %v) error = %v, wantErr %v", tt.in, tt.strict, err, tt.wantErr)
			}
		})
	}
}

func TestClient_PinFile(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != pinFilePath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("pinata_api_key") != "key" || r.Header.Get("pinata_secret_api_key") != "secret" {
			t.Error("missing pinata credentials")
		}
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected multipart file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "model.bin" || string(data) != "weights" {
			t.Errorf("unexpected upload %s %q", header.Filename, data)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"IpfsHash": testCID, "PinSize": 7, "Timestamp": "2026-01-01T00:00:00Z"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "key", SecretKey: "secret", RetryMax: 2}, discardLogger())
	c.http.RetryWaitMin = 0
	c.http.RetryWaitMax = 0

	res, err := c.PinFile(context.Background(), "model.bin", []byte("weights"))
	if err != nil {
		t.Fatalf("PinFile failed: %v", err)
	}
	if res.Hash != testCID || res.Size != 7 {
		t.Errorf("unexpected result %+v", res)
	}
	if calls.Load() != 2 {
		t.Errorf("expected one retry, got %d calls", calls.Load())
	}
}

func TestClient_RejectsInvalidHash(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"IpfsHash": "not-a-cid"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key", SecretKey: "secret"}, discardLogger())
	if _, err := c.PinFile(context.Background(), "f", []byte("x")); err == nil {
		t.Fatal("expected error for invalid hash")
	}
}

func TestClient_NotConfigured(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, discardLogger())
	if c.Configured() {
		t.Fatal("expected unconfigured client")
	}
	if _, err := c.PinFile(context.Background(), "f", []byte("x")); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
