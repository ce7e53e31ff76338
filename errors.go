// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import "errors"

var (
	// ErrInitialization indicates that backend or service setup failed.
	ErrInitialization = errors.New("initialization failed")

	// ErrNotInitialized indicates an operation was attempted before the
	// owning service reached Ready.
	ErrNotInitialized = errors.New("service not initialized")

	// ErrClientDisposed indicates the client was disposed and must be
	// recreated before further use.
	ErrClientDisposed = errors.New("client disposed")

	// ErrSignerRequired indicates a decrypt or transaction was attempted
	// without a configured signer.
	ErrSignerRequired = errors.New("signer required")

	// ErrEncryption indicates value encoding or sealing failed, including
	// out-of-range numeric input.
	ErrEncryption = errors.New("encryption failed")

	// ErrDecryption indicates the signature or gateway round trip failed.
	ErrDecryption = errors.New("decryption failed")

	// ErrContractCall indicates a view or transaction call failed.
	ErrContractCall = errors.New("contract call failed")

	// ErrSessionSealed indicates an encrypted-input session was used after
	// its terminal Encrypt call.
	ErrSessionSealed = errors.New("input session already sealed")
)
