// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/luxfi/fhevm/cache"
	"github.com/luxfi/fhevm/gateway"
)

// DecryptionService produces authorized plaintexts for encrypted handles.
// It owns its own lazily-constructed gateway connection, deliberately not
// shared with the encryption service's backend instance.
type DecryptionService struct {
	cfg         BackendConfig
	signer      Signer
	log         log.Logger
	metrics     *Metrics
	gatewayOpts []gateway.Option

	initGroup singleflight.Group

	mu          sync.RWMutex
	initialized bool
	gw          *gateway.Client

	// resultCache, when non-nil, holds plaintexts by request identity so
	// repeated decrypts of the same (handle, contract, user) skip the
	// signature prompt and the gateway round trip.
	resultCache *cache.TTLCache[ids.ID, *uint256.Int]
}

func newDecryptionService(cfg BackendConfig, signer Signer, logger log.Logger, metrics *Metrics, gatewayOpts []gateway.Option, resultTTL time.Duration) *DecryptionService {
	s := &DecryptionService{
		cfg:         cfg,
		signer:      signer,
		log:         logger,
		metrics:     metrics,
		gatewayOpts: gatewayOpts,
	}
	if resultTTL > 0 {
		s.resultCache = cache.NewTTLCache[ids.ID, *uint256.Int](resultTTL)
	}
	return s
}

// Initialize marks the service ready. No gateway connection is made eagerly;
// the connection is constructed on first use. Idempotent.
func (s *DecryptionService) Initialize(context.Context) error {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// gatewayClient returns the shared gateway connection, constructing it once
// even under concurrent callers.
func (s *DecryptionService) gatewayClient() (*gateway.Client, error) {
	s.mu.RLock()
	initialized, gw := s.initialized, s.gw
	s.mu.RUnlock()

	if !initialized {
		return nil, fmt.Errorf("%w: decryption service", ErrNotInitialized)
	}
	if gw != nil {
		return gw, nil
	}

	v, err, _ := s.initGroup.Do("gateway", func() (interface{}, error) {
		s.mu.RLock()
		existing := s.gw
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		client := gateway.NewClient(s.cfg.GatewayURL, s.gatewayOpts...)
		s.mu.Lock()
		s.gw = client
		s.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*gateway.Client), nil
}

// UserDecrypt recovers the plaintext behind a chain-side handle. It derives
// a typed-data authorization bound to the request's (contract, user) pair,
// asks the signer for a signature over it, and submits the signed request to
// the gateway, which independently verifies the signature and the ACL
// permission before returning plaintext. A missing signer fails before any
// network activity. No partial state survives a failed call.
func (s *DecryptionService) UserDecrypt(ctx context.Context, req DecryptionRequest) (*DecryptionResult[*uint256.Int], error) {
	if s.signer == nil {
		return nil, fmt.Errorf("%w: user decryption needs a typed-data signature", ErrSignerRequired)
	}

	if s.resultCache != nil {
		if value, ok := s.resultCache.GetCached(req.ID()); ok {
			// uint256 arithmetic mutates in place; hand out a copy so a
			// caller cannot rewrite the cached plaintext.
			return &DecryptionResult[*uint256.Int]{Value: new(uint256.Int).Set(value), Timestamp: time.Now()}, nil
		}
	}

	start := time.Now()
	value, err := s.decryptRoundTrip(ctx, req)
	if err != nil {
		s.metrics.observeDecryption("failure", time.Since(start))
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	s.metrics.observeDecryption("success", time.Since(start))

	if s.resultCache != nil {
		s.resultCache.Put(req.ID(), new(uint256.Int).Set(value))
	}

	return &DecryptionResult[*uint256.Int]{
		Value:     value,
		Timestamp: time.Now(),
	}, nil
}

func (s *DecryptionService) decryptRoundTrip(ctx context.Context, req DecryptionRequest) (*uint256.Int, error) {
	gw, err := s.gatewayClient()
	if err != nil {
		return nil, err
	}

	if req.Handle == nil {
		return nil, fmt.Errorf("request has no handle")
	}

	typedData := ReencryptTypedData(s.cfg.ChainID, s.cfg.ACLAddress, req.ContractAddress, req.UserAddress)
	signature, err := s.signer.SignTypedData(ctx, typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}

	handle := req.Handle.Bytes32()
	resp, err := gw.Decrypt(ctx, gateway.DecryptRequest{
		Handle:          hexutil.Encode(handle[:]),
		ContractAddress: req.ContractAddress.Hex(),
		UserAddress:     req.UserAddress.Hex(),
		Signature:       hexutil.Encode(signature),
	})
	if err != nil {
		return nil, err
	}

	value, err := uint256.FromHex(resp.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode plaintext %q: %w", resp.Value, err)
	}
	return value, nil
}

// BatchUserDecrypt fans out independent decryptions and assembles results
// positionally: result i always corresponds to request i regardless of
// completion order. The batch is all-or-nothing; if any request fails the
// whole call fails and no partial list is returned.
func (s *DecryptionService) BatchUserDecrypt(ctx context.Context, reqs []DecryptionRequest) ([]*DecryptionResult[*uint256.Int], error) {
	if s.signer == nil {
		return nil, fmt.Errorf("%w: user decryption needs a typed-data signature", ErrSignerRequired)
	}
	s.metrics.observeBatchSize(len(reqs))

	results := make([]*DecryptionResult[*uint256.Int], len(reqs))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		group.Go(func() error {
			result, err := s.UserDecrypt(groupCtx, req)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// BatchUserDecryptPartial is the per-item alternative to BatchUserDecrypt:
// every request runs to completion and reports its own result or error, so
// partial success is observable. Ordering is positional.
func (s *DecryptionService) BatchUserDecryptPartial(ctx context.Context, reqs []DecryptionRequest) []BatchItem[*uint256.Int] {
	s.metrics.observeBatchSize(len(reqs))

	items := make([]BatchItem[*uint256.Int], len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.UserDecrypt(ctx, req)
			items[i] = BatchItem[*uint256.Int]{Result: result, Err: err}
		}()
	}
	wg.Wait()
	return items
}

// PublicDecrypt reads an already-cleartext value through a plain view call,
// bypassing the authorization handshake. Callers are responsible for only
// using it on values the contract exposes as non-confidential.
func (s *DecryptionService) PublicDecrypt(ctx context.Context, contract *Contract, method string, args ...interface{}) (*DecryptionResult[interface{}], error) {
	s.mu.RLock()
	initialized := s.initialized
	s.mu.RUnlock()
	if !initialized {
		return nil, fmt.Errorf("%w: decryption service", ErrNotInitialized)
	}

	var out []interface{}
	if err := contract.Call(ctx, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%w: view call %s: %w", ErrDecryption, method, err)
	}

	var value interface{}
	if len(out) > 0 {
		value = out[0]
	}
	return &DecryptionResult[interface{}]{
		Value:     value,
		Timestamp: time.Now(),
	}, nil
}

// Dispose resets the service. Idempotent.
func (s *DecryptionService) Dispose() error {
	s.mu.Lock()
	s.initialized = false
	s.gw = nil
	s.mu.Unlock()
	return nil
}
