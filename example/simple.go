// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/network"
)

func main() {
	ctx := context.Background()

	signer, err := fhevm.NewLocalSignerFromHex("59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")
	if err != nil {
		log.Fatal(err)
	}

	client := fhevm.NewClient(fhevm.ClientConfig{
		Network: network.Localhost,
		Signer:  signer,
	})
	if err := client.Initialize(ctx); err != nil {
		log.Fatal(err)
	}
	defer client.Dispose()

	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")

	// Encrypt a value for the contract. The returned handle and proof are
	// passed as calldata to the confidential contract method.
	input, err := client.Encryption().EncryptUint32(ctx, 500, fhevm.EncryptOptions{
		ContractAddress: contract,
		UserAddress:     signer.Address(),
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Handle: %s\n", input.Handles[0])
	fmt.Printf("Proof:  %s\n", input.InputProof)

	// Decrypt a handle the contract granted this user access to.
	result, err := client.Decryption().UserDecrypt(ctx, fhevm.DecryptionRequest{
		ContractAddress: contract,
		UserAddress:     signer.Address(),
		Handle:          uint256.MustFromHex("0x01"),
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Plaintext: %s\n", result.Value.Dec())
}
