// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/network"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const envPrefix = "FHEVM"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fhevmcli",
	Short: "Client tooling for FHE-enabled EVM networks",
	Long: `fhevmcli builds encrypted inputs and requests authorized decryptions
against an FHE gateway, using the same client library applications embed.`,
	Version: fmt.Sprintf("%s (built %s)", version, buildDate),
}

func init() {
	rootCmd.PersistentFlags().String("network", network.Localhost, "named network (localhost, sepolia, mainnet)")
	rootCmd.PersistentFlags().String("gateway", "", "gateway URL override")
	rootCmd.PersistentFlags().String("acl", "", "ACL contract address override")

	rootCmd.AddCommand(networksCmd)
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(decryptCmd)
}

// buildViper layers flags over environment variables (FHEVM_NETWORK etc).
func buildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	return v, nil
}

func clientFromFlags(cmd *cobra.Command, signer fhevm.Signer) (*fhevm.Client, error) {
	v, err := buildViper(cmd.Flags())
	if err != nil {
		return nil, err
	}
	return fhevm.NewClient(fhevm.ClientConfig{
		Signer:     signer,
		Network:    v.GetString("network"),
		GatewayURL: v.GetString("gateway"),
		ACLAddress: v.GetString("acl"),
	}), nil
}

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List known networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range network.Names() {
			cfg := network.ForName(name)
			fmt.Printf("%-10s chainID=%-10d rpc=%s gateway=%s\n", cfg.Name, cfg.ChainID, cfg.RPCURL, cfg.GatewayURL)
		}
		return nil
	},
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt a value for a (contract, user) pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := buildViper(cmd.Flags())
		if err != nil {
			return err
		}

		client, err := clientFromFlags(cmd, nil)
		if err != nil {
			return err
		}
		defer client.Dispose()

		ctx := context.Background()
		if err := client.Initialize(ctx); err != nil {
			return err
		}

		opts := fhevm.EncryptOptions{
			ContractAddress: common.HexToAddress(v.GetString("contract")),
			UserAddress:     common.HexToAddress(v.GetString("user")),
		}

		var input *fhevm.EncryptedInput
		value := v.GetUint64("value")
		switch v.GetString("type") {
		case "bool":
			input, err = client.Encryption().EncryptBool(ctx, value != 0, opts)
		case "uint8":
			input, err = client.Encryption().EncryptUint8(ctx, value, opts)
		case "uint16":
			input, err = client.Encryption().EncryptUint16(ctx, value, opts)
		case "uint32":
			input, err = client.Encryption().EncryptUint32(ctx, value, opts)
		case "uint64":
			input, err = client.Encryption().EncryptUint64(ctx, value, opts)
		default:
			return fmt.Errorf("unsupported type %q", v.GetString("type"))
		}
		if err != nil {
			return err
		}

		for i, handle := range input.Handles {
			fmt.Printf("handle[%d]: %s\n", i, hexutil.Encode(handle))
		}
		fmt.Printf("inputProof: %s\n", hexutil.Encode(input.InputProof))
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Request an authorized decryption of a handle",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := buildViper(cmd.Flags())
		if err != nil {
			return err
		}

		signer, err := fhevm.NewLocalSignerFromHex(v.GetString("key"))
		if err != nil {
			return err
		}

		handle, err := uint256.FromHex(v.GetString("handle"))
		if err != nil {
			return fmt.Errorf("invalid handle: %w", err)
		}

		client, err := clientFromFlags(cmd, signer)
		if err != nil {
			return err
		}
		defer client.Dispose()

		ctx := context.Background()
		if err := client.Initialize(ctx); err != nil {
			return err
		}

		result, err := client.Decryption().UserDecrypt(ctx, fhevm.DecryptionRequest{
			ContractAddress: common.HexToAddress(v.GetString("contract")),
			UserAddress:     signer.Address(),
			Handle:          handle,
		})
		if err != nil {
			return err
		}

		fmt.Printf("value: %s\n", result.Value.Dec())
		fmt.Printf("decrypted at: %s\n", result.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
		return nil
	},
}

func init() {
	encryptCmd.Flags().String("contract", "", "contract address the input is bound to")
	encryptCmd.Flags().String("user", "", "user address the input is bound to")
	encryptCmd.Flags().String("type", "uint32", "FHE type (bool, uint8, uint16, uint32, uint64)")
	encryptCmd.Flags().Uint64("value", 0, "plaintext value")

	decryptCmd.Flags().String("contract", "", "contract address the handle belongs to")
	decryptCmd.Flags().String("handle", "", "chain-side ciphertext handle (0x hex)")
	decryptCmd.Flags().String("key", "", "hex private key used to sign the authorization")
}
