// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gateway implements the HTTP client for the decryption authority
// and its input-proof relayer endpoint.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/log"

	"github.com/luxfi/fhevm/cache"
)

const (
	defaultTimeout      = 60 * time.Second
	publicKeyCacheTTL   = 10 * time.Minute
	requestIDHeader     = "X-Request-Id"
	inputProofPath      = "/v1/input-proof"
	decryptPath         = "/v1/decrypt"
	publicKeyPath       = "/v1/public-key"
	contentTypeJSON     = "application/json"
	publicKeyCacheEntry = "fhe-public-key"
)

// Client talks JSON over HTTP to a gateway. It performs no retries; callers
// wanting retry behavior wrap calls explicitly.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        log.Logger

	publicKeys *cache.TTLCache[string, []byte]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for gateway round trips.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

// NewClient creates a gateway client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log.NewLogger("gateway"),
		publicKeys: cache.NewTTLCache[string, []byte](publicKeyCacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CiphertextItem is one plaintext value to be encrypted by the relayer.
type CiphertextItem struct {
	Type  uint8  `json:"type"`
	Value string `json:"value"`
}

// InputProofRequest asks the relayer to encrypt a batch of values and attest
// them to the (contract, user) pair.
type InputProofRequest struct {
	ContractAddress string           `json:"contractAddress"`
	UserAddress     string           `json:"userAddress"`
	Items           []CiphertextItem `json:"items"`
}

// InputProofResponse carries the ordered ciphertext handles and the proof.
type InputProofResponse struct {
	RequestID  string   `json:"request_id"`
	Handles    []string `json:"handles"`
	InputProof string   `json:"inputProof"`
}

// DecryptRequest submits an authorized decryption to the gateway. The
// gateway verifies the signature and the ACL permission for the
// user/handle/contract triple before returning plaintext.
type DecryptRequest struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
	UserAddress     string `json:"userAddress"`
	Signature       string `json:"signature"`
}

// DecryptResponse carries the hex-encoded plaintext.
type DecryptResponse struct {
	RequestID string `json:"request_id"`
	Value     string `json:"value"`
}

type publicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// InputProof requests ciphertext handles and an attestation proof for the
// items, bound to the (contract, user) pair in the request.
func (c *Client) InputProof(ctx context.Context, req InputProofRequest) (*InputProofResponse, error) {
	var resp InputProofResponse
	if err := c.post(ctx, inputProofPath, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Handles) != len(req.Items) {
		return nil, fmt.Errorf("gateway returned %d handles for %d items", len(resp.Handles), len(req.Items))
	}
	return &resp, nil
}

// Decrypt submits an authorized decryption request.
func (c *Client) Decrypt(ctx context.Context, req DecryptRequest) (*DecryptResponse, error) {
	var resp DecryptResponse
	if err := c.post(ctx, decryptPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PublicKey fetches the network's FHE public key. Responses are cached;
// concurrent fetches for a cold cache are deduplicated.
func (c *Client) PublicKey(ctx context.Context) ([]byte, error) {
	return c.publicKeys.Get(publicKeyCacheEntry, func(string) ([]byte, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+publicKeyPath, nil)
		if err != nil {
			return nil, err
		}
		body, err := c.do(httpReq)
		if err != nil {
			return nil, err
		}
		var resp publicKeyResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal public key response: %w", err)
		}
		key, err := hexutil.Decode(resp.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decode public key: %w", err)
		}
		return key, nil
	}, false)
}

func (c *Client) post(ctx context.Context, path string, req any, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)

	body, err := c.do(httpReq)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	c.log.Debug(
		"gateway round trip",
		log.String("path", req.URL.Path),
		log.String("requestID", requestID),
		log.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
