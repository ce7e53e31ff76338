// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhevm coordinates client-side construction of homomorphically
// encrypted values and authorized retrieval of their plaintexts for
// confidential smart-contract applications. The FHE backend and the wallet
// are external collaborators reached through narrow capability interfaces.
package fhevm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/luxfi/fhevm/gateway"
	"github.com/luxfi/fhevm/network"
)

// ClientConfig configures a Client. It is immutable once passed to
// NewClient. Network selects chain ID and RPC URL from the network registry;
// an absent network defaults to localhost. GatewayURL and ACLAddress
// override the registry defaults for the selected network.
type ClientConfig struct {
	Provider   Provider
	Signer     Signer
	Network    string
	GatewayURL string
	ACLAddress string
}

// State is the read-only projection returned by GetState.
type State struct {
	IsInitialized bool
	Network       string
	HasKeys       bool
}

// Client is the top-level state machine applications instantiate. Lifecycle:
// Uninitialized -> Initializing -> Ready, with a terminal Disposed state. A
// disposed client must be recreated, never reused.
type Client struct {
	cfg     ClientConfig
	netCfg  network.Config
	log     log.Logger
	metrics *Metrics

	encryption *EncryptionService
	decryption *DecryptionService
	contracts  *ContractHelper

	initGroup singleflight.Group

	mu    sync.RWMutex
	state ClientState
}

type clientOptions struct {
	logger      log.Logger
	metrics     *Metrics
	factory     BackendFactory
	gatewayOpts []gateway.Option
	resultTTL   time.Duration
}

// Option customizes a Client at construction.
type Option func(*clientOptions)

// WithLogger sets the client logger.
func WithLogger(logger log.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithMetrics registers client metrics on the registerer.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(o *clientOptions) {
		o.metrics = NewMetrics(registerer)
	}
}

// WithBackendFactory overrides how the FHE backend is constructed.
func WithBackendFactory(factory BackendFactory) Option {
	return func(o *clientOptions) {
		o.factory = factory
	}
}

// WithGatewayOptions customizes gateway round trips, e.g. the HTTP client.
func WithGatewayOptions(opts ...gateway.Option) Option {
	return func(o *clientOptions) {
		o.gatewayOpts = append(o.gatewayOpts, opts...)
	}
}

// WithDecryptionResultCache caches decrypted plaintexts for ttl, letting
// repeated decrypts of the same handle skip the signature prompt. Off by
// default.
func WithDecryptionResultCache(ttl time.Duration) Option {
	return func(o *clientOptions) {
		o.resultTTL = ttl
	}
}

// NewClient creates a client in the Uninitialized state.
func NewClient(cfg ClientConfig, opts ...Option) *Client {
	options := &clientOptions{
		logger: log.NewLogger("fhevm"),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.factory == nil {
		options.factory = NewGatewayBackend(options.gatewayOpts...)
	}

	netCfg := network.ForName(cfg.Network)
	if cfg.GatewayURL != "" {
		netCfg.GatewayURL = cfg.GatewayURL
	}
	if cfg.ACLAddress != "" {
		netCfg.ACLAddress = cfg.ACLAddress
	}

	backendCfg := BackendConfig{
		ChainID:    netCfg.ChainID,
		NetworkURL: netCfg.RPCURL,
		GatewayURL: netCfg.GatewayURL,
		ACLAddress: common.HexToAddress(netCfg.ACLAddress),
	}

	chainID := new(big.Int).SetUint64(netCfg.ChainID)
	return &Client{
		cfg:        cfg,
		netCfg:     netCfg,
		log:        options.logger,
		metrics:    options.metrics,
		encryption: newEncryptionService(backendCfg, options.factory, options.logger, options.metrics),
		decryption: newDecryptionService(backendCfg, cfg.Signer, options.logger, options.metrics, options.gatewayOpts, options.resultTTL),
		contracts:  newContractHelper(cfg.Provider, chainID, cfg.Signer, options.logger),
		state:      StateUninitialized,
	}
}

// Initialize brings the client to Ready. It is idempotent: a Ready client
// returns immediately, and concurrent callers share one in-flight
// initialization instead of racing backend construction. On failure the
// client returns to Uninitialized so a retry is safe. A Dispose that lands
// mid-initialization wins: Initialize releases whatever it built and
// returns ErrClientDisposed.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()

	switch state {
	case StateReady:
		return nil
	case StateDisposed:
		return ErrClientDisposed
	}

	// The check above and the work below are not atomic; the singleflight
	// group is what guarantees a single backend construction.
	_, err, _ := c.initGroup.Do("initialize", func() (interface{}, error) {
		c.mu.Lock()
		if c.state == StateReady {
			c.mu.Unlock()
			return nil, nil
		}
		if c.state == StateDisposed {
			c.mu.Unlock()
			return nil, ErrClientDisposed
		}
		c.state = StateInitializing
		c.mu.Unlock()

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			return c.encryption.Initialize(groupCtx)
		})
		group.Go(func() error {
			return c.decryption.Initialize(groupCtx)
		})
		if err := group.Wait(); err != nil {
			c.mu.Lock()
			// Disposed is terminal; only roll back our own transition.
			if c.state == StateInitializing {
				c.state = StateUninitialized
			}
			c.mu.Unlock()
			return nil, err
		}

		c.mu.Lock()
		if c.state == StateDisposed {
			// Dispose won the race while the services were coming up; the
			// freshly built backends must not outlive the client.
			c.mu.Unlock()
			if err := c.encryption.Dispose(); err != nil {
				c.log.Warn("failed to release encryption backend", log.Err(err))
			}
			if err := c.decryption.Dispose(); err != nil {
				c.log.Warn("failed to release decryption backend", log.Err(err))
			}
			return nil, ErrClientDisposed
		}
		c.state = StateReady
		c.mu.Unlock()

		c.log.Info(
			"client initialized",
			log.String("network", c.netCfg.Name),
			log.Uint64("chainID", c.netCfg.ChainID),
		)
		return nil, nil
	})
	if err != nil {
		c.metrics.observeInitFailure()
		if err == ErrClientDisposed {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	return nil
}

// GetState reports the client's current state. It never fails.
func (c *Client) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{
		IsInitialized: c.state == StateReady,
		Network:       c.netCfg.Name,
		HasKeys:       c.encryption.HasKeys(),
	}
}

// Dispose releases both services' backend handles and moves the client to
// the terminal Disposed state. Safe to call from any state and safe to call
// repeatedly.
func (c *Client) Dispose() error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateDisposed
	c.mu.Unlock()

	encErr := c.encryption.Dispose()
	decErr := c.decryption.Dispose()
	if encErr != nil {
		return encErr
	}
	return decErr
}

// Encryption returns the encryption service.
func (c *Client) Encryption() *EncryptionService {
	return c.encryption
}

// Decryption returns the decryption service.
func (c *Client) Decryption() *DecryptionService {
	return c.decryption
}

// Contracts returns the contract helper.
func (c *Client) Contracts() *ContractHelper {
	return c.contracts
}

// Provider returns the configured provider handle.
func (c *Client) Provider() Provider {
	return c.cfg.Provider
}

// Signer returns the configured signer, which may be nil.
func (c *Client) Signer() Signer {
	return c.cfg.Signer
}

// Network returns the resolved network name.
func (c *Client) Network() string {
	return c.netCfg.Name
}

// ChainID returns the resolved chain identifier.
func (c *Client) ChainID() uint64 {
	return c.netCfg.ChainID
}

// GatewayURL returns the resolved gateway endpoint.
func (c *Client) GatewayURL() string {
	return c.netCfg.GatewayURL
}

// ACLAddress returns the resolved access-control contract address.
func (c *Client) ACLAddress() string {
	return c.netCfg.ACLAddress
}
