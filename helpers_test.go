// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/accounts/abi/bind"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/signer/core/apitypes"
)

// fakeBackend is a test implementation of Backend that fabricates handles
// deterministically and counts constructions.
type fakeBackend struct {
	publicKey []byte
	closed    atomic.Bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{publicKey: []byte{0xfe, 0xed}}
}

func (b *fakeBackend) CreateEncryptedInput(contractAddress, userAddress common.Address) (BackendSession, error) {
	return &fakeSession{contract: contractAddress, user: userAddress}, nil
}

func (b *fakeBackend) PublicKey() []byte {
	return b.publicKey
}

func (b *fakeBackend) Close() error {
	b.closed.Store(true)
	return nil
}

type fakeSession struct {
	contract common.Address
	user     common.Address
	values   []uint64
}

func (s *fakeSession) Add(_ FheType, value uint64) error {
	s.values = append(s.values, value)
	return nil
}

func (s *fakeSession) Encrypt(context.Context) (*EncryptedInput, error) {
	input := &EncryptedInput{
		InputProof: crypto.Keccak256(s.contract.Bytes(), s.user.Bytes()),
	}
	for i, v := range s.values {
		input.Handles = append(input.Handles, crypto.Keccak256([]byte(fmt.Sprintf("%d:%d", i, v))))
	}
	return input, nil
}

// countingFactory returns a BackendFactory that counts constructions and can
// optionally gate them until released, to widen initialization races.
func countingFactory(backend Backend, constructions *atomic.Int32, gate chan struct{}) BackendFactory {
	return func(ctx context.Context, cfg BackendConfig) (Backend, error) {
		constructions.Add(1)
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return backend, nil
	}
}

func failingFactory(err error) BackendFactory {
	return func(context.Context, BackendConfig) (Backend, error) {
		return nil, err
	}
}

// fakeSigner records typed-data signing without real key material.
type fakeSigner struct {
	address   common.Address
	signCount atomic.Int32
	signErr   error

	mu       sync.Mutex
	lastData apitypes.TypedData
}

func (s *fakeSigner) Address() common.Address {
	return s.address
}

func (s *fakeSigner) SignTypedData(_ context.Context, typedData apitypes.TypedData) ([]byte, error) {
	s.signCount.Add(1)
	s.mu.Lock()
	s.lastData = typedData
	s.mu.Unlock()
	if s.signErr != nil {
		return nil, s.signErr
	}
	sig := make([]byte, 65)
	sig[64] = 27
	return sig, nil
}

func (s *fakeSigner) signedData() apitypes.TypedData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastData
}

func (s *fakeSigner) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	return nil, errors.New("fake signer cannot transact")
}
