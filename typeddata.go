// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/math"
	"github.com/luxfi/geth/signer/core/apitypes"
)

// Domain constants for the decryption authorization handshake. The gateway
// re-derives this exact structure to verify the signer, so any drift here
// invalidates every authorization.
const (
	authDomainName    = "Authorization token"
	authDomainVersion = "1"
	reencryptType     = "Reencrypt"
)

// ReencryptTypedData builds the EIP-712 payload a user signs to authorize
// decryption of handles under a (contract, user) pair. The signature binds
// both addresses, so it cannot be replayed against a different contract or
// another user's handle.
func ReencryptTypedData(
	chainID uint64,
	aclAddress common.Address,
	contractAddress common.Address,
	userAddress common.Address,
) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			reencryptType: []apitypes.Type{
				{Name: "contractAddress", Type: "address"},
				{Name: "userAddress", Type: "address"},
			},
		},
		PrimaryType: reencryptType,
		Domain: apitypes.TypedDataDomain{
			Name:              authDomainName,
			Version:           authDomainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(chainID)),
			VerifyingContract: aclAddress.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"contractAddress": contractAddress.Hex(),
			"userAddress":     userAddress.Hex(),
		},
	}
}
