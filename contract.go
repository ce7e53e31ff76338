// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/accounts/abi/bind"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/log"

	"github.com/luxfi/fhevm/cache"
)

const abiCacheSize = 64

// Provider is the opaque blockchain handle the client is constructed with.
// *ethclient.Client satisfies it.
type Provider interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Contract binds an on-chain contract to its ABI and an optional signer.
type Contract struct {
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	signer  Signer
}

// Address returns the contract's on-chain address.
func (c *Contract) Address() common.Address {
	return c.address
}

// Call performs a view call and unpacks the outputs into out.
func (c *Contract) Call(ctx context.Context, out *[]interface{}, method string, args ...interface{}) error {
	return c.bound.Call(&bind.CallOpts{Context: ctx}, out, method, args...)
}

// ContractHelper dispatches encrypted payloads into contract calls and reads
// view state. It depends on encryption only through the EncryptedInput shape.
type ContractHelper struct {
	provider Provider
	chainID  *big.Int
	signer   Signer
	log      log.Logger

	// abiCache memoizes parsed ABIs by content hash so rebinding the same
	// contract shape does not re-parse the JSON.
	abiCache *cache.LRUCache[common.Hash, abi.ABI]
}

func newContractHelper(provider Provider, chainID *big.Int, signer Signer, logger log.Logger) *ContractHelper {
	return &ContractHelper{
		provider: provider,
		chainID:  chainID,
		signer:   signer,
		log:      logger,
		abiCache: cache.NewLRUCache[common.Hash, abi.ABI](abiCacheSize),
	}
}

// CreateContract binds the contract at address to the given ABI JSON. The
// explicit signer takes precedence over the client's configured signer;
// without either the helper cannot transact and the call fails.
func (h *ContractHelper) CreateContract(address common.Address, abiJSON string, signer Signer) (*Contract, error) {
	if signer == nil {
		signer = h.signer
	}
	if signer == nil {
		return nil, fmt.Errorf("%w: contract %s needs a transaction signer", ErrSignerRequired, address.Hex())
	}

	parsed, err := h.abiCache.Get(common.Hash(crypto.Keccak256Hash([]byte(abiJSON))), func(common.Hash) (abi.ABI, error) {
		return abi.JSON(strings.NewReader(abiJSON))
	}, false)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ABI for %s: %w", ErrContractCall, address.Hex(), err)
	}

	return &Contract{
		address: address,
		abi:     parsed,
		bound:   bind.NewBoundContract(address, parsed, h.provider, h.provider, h.provider),
		signer:  signer,
	}, nil
}

// SendEncryptedTransaction invokes method with the input's first handle and
// its proof as the two leading arguments, followed by any additional plain
// arguments, then waits for the transaction to be mined. Contracts expecting
// several handles from a multi-value session must be called directly.
func (h *ContractHelper) SendEncryptedTransaction(
	ctx context.Context,
	contract *Contract,
	method string,
	input *EncryptedInput,
	args ...interface{},
) (*types.Receipt, error) {
	if input == nil || len(input.Handles) == 0 {
		return nil, fmt.Errorf("%w: encrypted input has no handles", ErrContractCall)
	}

	opts, err := contract.signer.TransactOpts(h.chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContractCall, err)
	}
	opts.Context = ctx

	callArgs := make([]interface{}, 0, len(args)+2)
	callArgs = append(callArgs, common.BytesToHash(input.Handles[0]), []byte(input.InputProof))
	callArgs = append(callArgs, args...)

	tx, err := contract.bound.Transact(opts, method, callArgs...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrContractCall, method, contract.address.Hex(), err)
	}

	h.log.Debug(
		"sent encrypted transaction",
		log.Stringer("contract", contract.address),
		log.String("method", method),
		log.Stringer("tx", tx.Hash()),
	)

	receipt, err := bind.WaitMined(ctx, h.provider, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for %s: %w", ErrContractCall, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: transaction %s reverted", ErrContractCall, tx.Hash().Hex())
	}
	return receipt, nil
}

// CallView performs a plain view call. It exists to give the read path the
// same error-wrapping contract as the encrypted path.
func (h *ContractHelper) CallView(ctx context.Context, contract *Contract, method string, out *[]interface{}, args ...interface{}) error {
	if err := contract.Call(ctx, out, method, args...); err != nil {
		return fmt.Errorf("%w: %s on %s: %w", ErrContractCall, method, contract.address.Hex(), err)
	}
	return nil
}
