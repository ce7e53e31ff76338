// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"golang.org/x/sync/singleflight"
)

// EncryptOptions scope a convenience encrypt call to the (contract, user)
// pair the resulting proof is valid for.
type EncryptOptions struct {
	ContractAddress common.Address
	UserAddress     common.Address
}

// EncryptionService converts plaintext values plus a (contract, user)
// context into encrypted inputs. It owns exactly one backend capability
// instance for the lifetime of its client.
type EncryptionService struct {
	cfg     BackendConfig
	factory BackendFactory
	log     log.Logger
	metrics *Metrics

	initGroup singleflight.Group

	mu      sync.RWMutex
	backend Backend
}

func newEncryptionService(cfg BackendConfig, factory BackendFactory, logger log.Logger, metrics *Metrics) *EncryptionService {
	return &EncryptionService{
		cfg:     cfg,
		factory: factory,
		log:     logger,
		metrics: metrics,
	}
}

// Initialize constructs the backend capability instance. It is idempotent,
// and concurrent calls share a single construction. Failure leaves the
// service uninitialized so a retry is safe; there is no automatic retry.
func (s *EncryptionService) Initialize(ctx context.Context) error {
	s.mu.RLock()
	ready := s.backend != nil
	s.mu.RUnlock()
	if ready {
		return nil
	}

	_, err, _ := s.initGroup.Do("init", func() (interface{}, error) {
		s.mu.RLock()
		existing := s.backend
		s.mu.RUnlock()
		if existing != nil {
			return nil, nil
		}

		backend, err := s.factory(ctx, s.cfg)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.backend = backend
		s.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: encryption backend construction: %w", ErrInitialization, err)
	}
	return nil
}

// HasKeys reports whether the service is initialized with a live backend.
func (s *EncryptionService) HasKeys() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend != nil
}

// PublicKey returns the backend's FHE public key once initialized, nil
// otherwise. It never fails.
func (s *EncryptionService) PublicKey() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backend == nil {
		return nil
	}
	return s.backend.PublicKey()
}

// CreateEncryptedInput opens a session scoped to the (contract, user) pair.
// Multiple values may be added to one session; they seal into a single proof
// with one handle per value, in insertion order.
func (s *EncryptionService) CreateEncryptedInput(contractAddress, userAddress common.Address) (*InputBuilder, error) {
	s.mu.RLock()
	backend := s.backend
	s.mu.RUnlock()
	if backend == nil {
		return nil, fmt.Errorf("%w: encryption service", ErrNotInitialized)
	}

	session, err := backend.CreateEncryptedInput(contractAddress, userAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open input session: %w", ErrEncryption, err)
	}

	return &InputBuilder{
		session: session,
		service: s,
	}, nil
}

// EncryptBool encrypts a single boolean in a fresh session.
func (s *EncryptionService) EncryptBool(ctx context.Context, value bool, opts EncryptOptions) (*EncryptedInput, error) {
	v := uint64(0)
	if value {
		v = 1
	}
	return s.encryptOne(ctx, TypeBool, v, opts)
}

// EncryptUint8 encrypts a single uint8 in a fresh session.
func (s *EncryptionService) EncryptUint8(ctx context.Context, value uint64, opts EncryptOptions) (*EncryptedInput, error) {
	return s.encryptOne(ctx, TypeUint8, value, opts)
}

// EncryptUint16 encrypts a single uint16 in a fresh session.
func (s *EncryptionService) EncryptUint16(ctx context.Context, value uint64, opts EncryptOptions) (*EncryptedInput, error) {
	return s.encryptOne(ctx, TypeUint16, value, opts)
}

// EncryptUint32 encrypts a single uint32 in a fresh session.
func (s *EncryptionService) EncryptUint32(ctx context.Context, value uint64, opts EncryptOptions) (*EncryptedInput, error) {
	return s.encryptOne(ctx, TypeUint32, value, opts)
}

// EncryptUint64 encrypts a single uint64 in a fresh session.
func (s *EncryptionService) EncryptUint64(ctx context.Context, value uint64, opts EncryptOptions) (*EncryptedInput, error) {
	return s.encryptOne(ctx, TypeUint64, value, opts)
}

// encryptOne opens a single-value session, appends the value, and seals it.
func (s *EncryptionService) encryptOne(ctx context.Context, t FheType, value uint64, opts EncryptOptions) (*EncryptedInput, error) {
	builder, err := s.CreateEncryptedInput(opts.ContractAddress, opts.UserAddress)
	if err != nil {
		return nil, err
	}
	if err := builder.add(t, value); err != nil {
		return nil, err
	}
	return builder.Encrypt(ctx)
}

// Dispose drops the backend handle. Idempotent; the service can be
// re-initialized afterwards by its owning client, never by callers.
func (s *EncryptionService) Dispose() error {
	s.mu.Lock()
	backend := s.backend
	s.backend = nil
	s.mu.Unlock()

	if backend == nil {
		return nil
	}
	if err := backend.Close(); err != nil {
		return fmt.Errorf("failed to close encryption backend: %w", err)
	}
	return nil
}

// InputBuilder is a single-use encrypted-input session. It validates values
// against their declared bit width before the backend ever sees them, and it
// is not safe for concurrent mutation.
type InputBuilder struct {
	session BackendSession
	service *EncryptionService
	count   int
	sealed  bool
}

// AddBool appends a boolean to the session.
func (b *InputBuilder) AddBool(value bool) error {
	v := uint64(0)
	if value {
		v = 1
	}
	return b.add(TypeBool, v)
}

// AddUint8 appends a uint8 to the session.
func (b *InputBuilder) AddUint8(value uint64) error {
	return b.add(TypeUint8, value)
}

// AddUint16 appends a uint16 to the session.
func (b *InputBuilder) AddUint16(value uint64) error {
	return b.add(TypeUint16, value)
}

// AddUint32 appends a uint32 to the session.
func (b *InputBuilder) AddUint32(value uint64) error {
	return b.add(TypeUint32, value)
}

// AddUint64 appends a uint64 to the session.
func (b *InputBuilder) AddUint64(value uint64) error {
	return b.add(TypeUint64, value)
}

func (b *InputBuilder) add(t FheType, value uint64) error {
	if b.sealed {
		return fmt.Errorf("%w: cannot add %s", ErrSessionSealed, t)
	}
	if value > t.MaxValue() {
		return fmt.Errorf("%w: value %d out of range for %s", ErrEncryption, value, t)
	}
	if err := b.session.Add(t, value); err != nil {
		return fmt.Errorf("%w: %w", ErrEncryption, err)
	}
	b.count++
	b.service.metrics.observeEncryption(t)
	return nil
}

// Encrypt seals the session, producing the ciphertext handles and proof.
// This is the only point ciphertext and proof are produced. The session
// cannot be reused afterwards.
func (b *InputBuilder) Encrypt(ctx context.Context) (*EncryptedInput, error) {
	if b.sealed {
		return nil, ErrSessionSealed
	}
	if b.count == 0 {
		return nil, fmt.Errorf("%w: session has no values", ErrEncryption)
	}
	b.sealed = true

	input, err := b.session.Encrypt(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncryption, err)
	}
	if len(input.Handles) != b.count {
		return nil, fmt.Errorf("%w: backend returned %d handles for %d values", ErrEncryption, len(input.Handles), b.count)
	}
	return input, nil
}

// Len returns the number of values added so far.
func (b *InputBuilder) Len() int {
	return b.count
}
