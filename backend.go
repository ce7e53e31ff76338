// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"

	"github.com/luxfi/fhevm/gateway"
)

// BackendConfig carries the resolved settings a backend is derived from.
type BackendConfig struct {
	ChainID    uint64
	NetworkURL string
	GatewayURL string
	ACLAddress common.Address
}

// Backend is the narrow capability surface of the FHE cryptographic backend.
// The core never depends on a concrete backend shape beyond this interface.
type Backend interface {
	// CreateEncryptedInput opens a ciphertext session bound to the
	// (contract, user) pair. Sessions are independent objects; issuing
	// several from one backend is safe to interleave.
	CreateEncryptedInput(contractAddress, userAddress common.Address) (BackendSession, error)

	// PublicKey returns the backend's FHE public key, or nil if unknown.
	PublicKey() []byte

	// Close releases the backend handle. Safe to call more than once.
	Close() error
}

// BackendSession accumulates plaintext values and seals them into a single
// proof. Add order determines handle order. Encrypt is terminal.
type BackendSession interface {
	Add(t FheType, value uint64) error
	Encrypt(ctx context.Context) (*EncryptedInput, error)
}

// BackendFactory constructs a backend from resolved network settings.
type BackendFactory func(ctx context.Context, cfg BackendConfig) (Backend, error)

// NewGatewayBackend is the default BackendFactory. It delegates ciphertext
// and proof generation to the relayer endpoint of the configured gateway and
// fetches the FHE public key during construction.
func NewGatewayBackend(httpOpts ...gateway.Option) BackendFactory {
	return func(ctx context.Context, cfg BackendConfig) (Backend, error) {
		client := gateway.NewClient(cfg.GatewayURL, httpOpts...)
		publicKey, err := client.PublicKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch FHE public key: %w", err)
		}
		return &gatewayBackend{
			cfg:       cfg,
			client:    client,
			publicKey: publicKey,
		}, nil
	}
}

type gatewayBackend struct {
	cfg       BackendConfig
	client    *gateway.Client
	publicKey []byte
}

func (b *gatewayBackend) CreateEncryptedInput(contractAddress, userAddress common.Address) (BackendSession, error) {
	return &gatewaySession{
		backend:  b,
		contract: contractAddress,
		user:     userAddress,
	}, nil
}

func (b *gatewayBackend) PublicKey() []byte {
	return b.publicKey
}

func (b *gatewayBackend) Close() error {
	return nil
}

type gatewaySession struct {
	backend  *gatewayBackend
	contract common.Address
	user     common.Address
	items    []gateway.CiphertextItem
}

func (s *gatewaySession) Add(t FheType, value uint64) error {
	if !SupportedTypes.Contains(t) {
		return fmt.Errorf("unsupported FHE type %s", t)
	}
	s.items = append(s.items, gateway.CiphertextItem{
		Type:  uint8(t),
		Value: hexutil.EncodeUint64(value),
	})
	return nil
}

func (s *gatewaySession) Encrypt(ctx context.Context) (*EncryptedInput, error) {
	resp, err := s.backend.client.InputProof(ctx, gateway.InputProofRequest{
		ContractAddress: s.contract.Hex(),
		UserAddress:     s.user.Hex(),
		Items:           s.items,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build input proof: %w", err)
	}

	handles := make([]hexutil.Bytes, len(resp.Handles))
	for i, h := range resp.Handles {
		raw, err := hexutil.Decode(h)
		if err != nil {
			return nil, fmt.Errorf("failed to decode handle %d: %w", i, err)
		}
		handles[i] = raw
	}

	proof, err := hexutil.Decode(resp.InputProof)
	if err != nil {
		return nil, fmt.Errorf("failed to decode input proof: %w", err)
	}

	return &EncryptedInput{
		Handles:    handles,
		InputProof: proof,
	}, nil
}
