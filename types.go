// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

// FheType identifies the plaintext width of an encrypted value.
type FheType uint8

const (
	TypeBool FheType = iota
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
)

// SupportedTypes is the set of FHE types this client can encrypt.
var SupportedTypes = set.Of(TypeBool, TypeUint8, TypeUint16, TypeUint32, TypeUint64)

// Bits returns the plaintext bit width of the type.
func (t FheType) Bits() int {
	switch t {
	case TypeBool:
		return 1
	case TypeUint8:
		return 8
	case TypeUint16:
		return 16
	case TypeUint32:
		return 32
	case TypeUint64:
		return 64
	default:
		return 0
	}
}

// MaxValue returns the largest plaintext the type can carry.
func (t FheType) MaxValue() uint64 {
	bits := t.Bits()
	if bits == 0 {
		return 0
	}
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}

func (t FheType) String() string {
	switch t {
	case TypeBool:
		return "ebool"
	case TypeUint8:
		return "euint8"
	case TypeUint16:
		return "euint16"
	case TypeUint32:
		return "euint32"
	case TypeUint64:
		return "euint64"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ClientState is the lifecycle state of a Client.
type ClientState uint8

const (
	StateUninitialized ClientState = iota
	StateInitializing
	StateReady
	StateDisposed
)

func (s ClientState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// EncryptedInput is the sealed output of an input session: one handle per
// added value, in insertion order, plus the attestation proof covering the
// exact (contract, user, handles) tuple it was generated against. It is a
// single-use value and is not mutated after Encrypt returns.
type EncryptedInput struct {
	Handles    []hexutil.Bytes `json:"handles"`
	InputProof hexutil.Bytes   `json:"inputProof"`
}

// DecryptionRequest asks the decryption authority for the plaintext of one
// chain-side ciphertext handle on behalf of a user.
type DecryptionRequest struct {
	ContractAddress common.Address `json:"contractAddress"`
	UserAddress     common.Address `json:"userAddress"`
	Handle          *uint256.Int   `json:"handle"`
}

// ID returns a stable identifier for the request, derived from the handle
// and the (contract, user) pair it is bound to.
func (r DecryptionRequest) ID() ids.ID {
	handle := r.Handle
	if handle == nil {
		handle = uint256.NewInt(0)
	}
	h := handle.Bytes32()
	return ids.ID(crypto.Keccak256Hash(
		h[:],
		r.ContractAddress.Bytes(),
		r.UserAddress.Bytes(),
	))
}

// DecryptionResult carries a decrypted plaintext and the local time at which
// decryption completed. The timestamp is not a blockchain timestamp.
type DecryptionResult[T any] struct {
	Value     T         `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// BatchItem is one entry of a partial-results batch decryption. Exactly one
// of Result and Err is set.
type BatchItem[T any] struct {
	Result *DecryptionResult[T]
	Err    error
}
