// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package network maps named networks to chain identifiers and endpoints.
package network

import "sort"

// Config describes how to reach a single FHE-enabled network.
type Config struct {
	Name       string `json:"name"`
	ChainID    uint64 `json:"chain_id"`
	RPCURL     string `json:"rpc_url"`
	GatewayURL string `json:"gateway_url"`
	ACLAddress string `json:"acl_address"`
}

// Named networks understood by this package.
const (
	Localhost = "localhost"
	Sepolia   = "sepolia"
	Mainnet   = "mainnet"
)

var registry = map[string]Config{
	Localhost: {
		Name:       Localhost,
		ChainID:    31337,
		RPCURL:     "http://127.0.0.1:8545",
		GatewayURL: "http://127.0.0.1:7077",
		ACLAddress: "0x2Fb4341027eb1d2aD8B5D9708187df8633cAFA92",
	},
	Sepolia: {
		Name:       Sepolia,
		ChainID:    11155111,
		RPCURL:     "https://sepolia.infura.io/v3/",
		GatewayURL: "https://gateway.sepolia.zama.ai",
		ACLAddress: "0xFee8407e2f5e3Ee68ad77cAE98c434e637f516e5",
	},
	Mainnet: {
		Name:       Mainnet,
		ChainID:    1,
		RPCURL:     "https://mainnet.infura.io/v3/",
		GatewayURL: "https://gateway.zama.ai",
		ACLAddress: "0x687820221192C5B662b25367F70076A37bc79b6c",
	},
}

// ForName returns the configuration for a named network. Unknown names fall
// back to the localhost entry; callers that need to distinguish a miss from
// the fallback should use Lookup instead.
func ForName(name string) Config {
	if cfg, ok := registry[name]; ok {
		return cfg
	}
	return registry[Localhost]
}

// Lookup returns the configuration for a named network and whether the name
// is known.
func Lookup(name string) (Config, bool) {
	cfg, ok := registry[name]
	return cfg, ok
}

// Names returns the known network names in stable order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
