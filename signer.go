// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/accounts/abi/bind"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/signer/core/apitypes"
)

// Signer is the wallet capability the client depends on. Typed-data
// signatures are the sole authorization artifact for decryption; transaction
// signing is used by the contract helper. Implementations that prompt a user
// may block until the prompt resolves, so signing takes a context.
type Signer interface {
	// Address returns the account the signer signs for.
	Address() common.Address

	// SignTypedData produces an EIP-712 signature over the typed data.
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)

	// TransactOpts returns transaction signing options for the chain.
	TransactOpts(chainID *big.Int) (*bind.TransactOpts, error)
}

// LocalSigner signs with an in-memory ECDSA private key.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner creates a signer from a private key.
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: common.Address(crypto.PubkeyToAddress(key.PublicKey)),
	}
}

// NewLocalSignerFromHex creates a signer from a hex-encoded private key,
// with or without the 0x prefix.
func NewLocalSignerFromHex(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewLocalSigner(key), nil
}

// Address returns the account the signer signs for.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignTypedData hashes the typed data per EIP-712 and signs the digest.
// The returned signature is 65 bytes with v in {27, 28}.
func (s *LocalSigner) SignTypedData(_ context.Context, typedData apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}

	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}

	// Transform yellow-paper V (0/1) to the 27/28 form verifiers expect.
	sig[64] += 27
	return sig, nil
}

// TransactOpts returns keyed transaction options bound to the chain ID.
func (s *LocalSigner) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transact opts: %w", err)
	}
	return opts, nil
}
