package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ipfs/go-cid"
)

// ErrNotConfigured is returned when pinning credentials are absent.
var ErrNotConfigured = errors.New("IPFS pinning not configured")

const pinFilePath = "/pinning/pinFileToIPFS"

// Config configures the Pinata client.
type Config struct {
	BaseURL   string
	APIKey    string
	SecretKey string
	Timeout   time.Duration
	RetryMax  int
}

// PinResult is a pinned file.
type PinResult struct {
	Hash      string
	Size      int64
	Timestamp string
}

// Client uploads files to Pinata, retrying transient failures.
type Client struct {
	http *retryablehttp.Client
	cfg  Config
}

// NewClient builds a Pinata client. The logger receives retry diagnostics.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = logger.With("component", "ipfs")

	return &Client{http: rc, cfg: cfg}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.SecretKey != ""
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// PinFile uploads content under fileName and returns the validated CID.
func (c *Client) PinFile(ctx context.Context, fileName string, content []byte) (*PinResult, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	// A byte slice body is replayed on every retry.
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+pinFilePath, body.Bytes())
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("pinata_api_key", c.cfg.APIKey)
	req.Header.Set("pinata_secret_api_key", c.cfg.SecretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pin file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pin file: pinata returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode pin response: %w", err)
	}
	if _, err := cid.Decode(out.IpfsHash); err != nil {
		return nil, fmt.Errorf("pinata returned %q: %w", out.IpfsHash, ErrInvalidCID)
	}

	size := out.PinSize
	if size == 0 {
		size = int64(len(content))
	}
	return &PinResult{Hash: out.IpfsHash, Size: size, Timestamp: out.Timestamp}, nil
}
