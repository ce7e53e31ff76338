// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhevm/network"
)

// decryptBehavior scripts the fake gateway's response for one handle.
type decryptBehavior struct {
	value  string
	status int
	delay  time.Duration
}

// newFakeGateway serves the decrypt and public key endpoints, scripted per
// handle. Unscripted handles decrypt to 0x2a.
func newFakeGateway(t *testing.T, behaviors map[string]decryptBehavior, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/public-key", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"publicKey": "0xfeed"})
	})
	mux.HandleFunc("/v1/decrypt", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		var req struct {
			Handle string `json:"handle"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		behavior, ok := behaviors[req.Handle]
		if !ok {
			behavior = decryptBehavior{value: "0x2a"}
		}
		if behavior.delay > 0 {
			time.Sleep(behavior.delay)
		}
		if behavior.status != 0 && behavior.status != http.StatusOK {
			http.Error(w, "permission denied", behavior.status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"value": behavior.value})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func handleHex(n uint64) string {
	h := uint256.NewInt(n).Bytes32()
	return hexutil.Encode(h[:])
}

func newDecryptClient(t *testing.T, gatewayURL string, signer Signer, opts ...Option) *Client {
	t.Helper()
	var constructions atomic.Int32
	opts = append([]Option{
		WithBackendFactory(countingFactory(newFakeBackend(), &constructions, nil)),
	}, opts...)
	client := NewClient(ClientConfig{
		Signer:     signer,
		Network:    network.Localhost,
		GatewayURL: gatewayURL,
	}, opts...)
	require.NoError(t, client.Initialize(context.Background()))
	return client
}

func decryptReq(handle uint64) DecryptionRequest {
	return DecryptionRequest{
		ContractAddress: testContract,
		UserAddress:     testUser,
		Handle:          uint256.NewInt(handle),
	}
}

func TestUserDecryptRequiresSigner(t *testing.T) {
	// Unreachable gateway: a signer check that happens after any network
	// activity would surface a connection error instead.
	client := newDecryptClient(t, "http://127.0.0.1:1", nil)

	_, err := client.Decryption().UserDecrypt(context.Background(), decryptReq(1))
	require.ErrorIs(t, err, ErrSignerRequired)

	_, err = client.Decryption().BatchUserDecrypt(context.Background(), []DecryptionRequest{decryptReq(1)})
	require.ErrorIs(t, err, ErrSignerRequired)
}

func TestUserDecryptBeforeInitialize(t *testing.T) {
	signer := &fakeSigner{address: testUser}
	client := NewClient(ClientConfig{Network: network.Localhost, Signer: signer})

	_, err := client.Decryption().UserDecrypt(context.Background(), decryptReq(1))
	require.ErrorIs(t, err, ErrDecryption)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestUserDecryptRoundTrip(t *testing.T) {
	server := newFakeGateway(t, map[string]decryptBehavior{
		handleHex(7): {value: "0x01f4"},
	}, nil)
	signer := &fakeSigner{address: testUser}
	client := newDecryptClient(t, server.URL, signer)

	before := time.Now()
	result, err := client.Decryption().UserDecrypt(context.Background(), decryptReq(7))
	require.NoError(t, err)
	require.Equal(t, uint64(500), result.Value.Uint64())
	require.False(t, result.Timestamp.Before(before))

	// The authorization must bind the (contract, user) pair.
	require.Equal(t, int32(1), signer.signCount.Load())
	signed := signer.signedData()
	require.Equal(t, "Reencrypt", signed.PrimaryType)
	require.Equal(t, testContract.Hex(), signed.Message["contractAddress"])
	require.Equal(t, testUser.Hex(), signed.Message["userAddress"])
}

func TestUserDecryptGatewayFailure(t *testing.T) {
	server := newFakeGateway(t, map[string]decryptBehavior{
		handleHex(9): {status: http.StatusForbidden},
	}, nil)
	signer := &fakeSigner{address: testUser}
	client := newDecryptClient(t, server.URL, signer)

	_, err := client.Decryption().UserDecrypt(context.Background(), decryptReq(9))
	require.ErrorIs(t, err, ErrDecryption)
	require.ErrorContains(t, err, "403")
}

func TestUserDecryptSignerFailure(t *testing.T) {
	hits := new(atomic.Int32)
	server := newFakeGateway(t, nil, hits)
	signer := &fakeSigner{address: testUser, signErr: context.Canceled}
	client := newDecryptClient(t, server.URL, signer)

	_, err := client.Decryption().UserDecrypt(context.Background(), decryptReq(1))
	require.ErrorIs(t, err, ErrDecryption)
	require.Zero(t, hits.Load(), "a failed signature must not reach the gateway")
}

func TestBatchUserDecryptAllOrNothing(t *testing.T) {
	server := newFakeGateway(t, map[string]decryptBehavior{
		handleHex(1): {value: "0x01"},
		handleHex(2): {status: http.StatusForbidden},
		handleHex(3): {value: "0x03"},
	}, nil)
	signer := &fakeSigner{address: testUser}
	client := newDecryptClient(t, server.URL, signer)

	results, err := client.Decryption().BatchUserDecrypt(context.Background(), []DecryptionRequest{
		decryptReq(1), decryptReq(2), decryptReq(3),
	})
	require.ErrorIs(t, err, ErrDecryption)
	require.Nil(t, results, "a failed batch must not return partial results")
}

func TestBatchUserDecryptPreservesOrder(t *testing.T) {
	// The first request completes last; results must still be positional.
	server := newFakeGateway(t, map[string]decryptBehavior{
		handleHex(1): {value: "0x0a", delay: 80 * time.Millisecond},
		handleHex(2): {value: "0x0b"},
	}, nil)
	signer := &fakeSigner{address: testUser}
	client := newDecryptClient(t, server.URL, signer)

	results, err := client.Decryption().BatchUserDecrypt(context.Background(), []DecryptionRequest{
		decryptReq(1), decryptReq(2),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, uint64(10), results[0].Value.Uint64())
	require.Equal(t, uint64(11), results[1].Value.Uint64())
}

func TestBatchUserDecryptPartial(t *testing.T) {
	server := newFakeGateway(t, map[string]decryptBehavior{
		handleHex(1): {value: "0x0a"},
		handleHex(2): {status: http.StatusForbidden},
	}, nil)
	signer := &fakeSigner{address: testUser}
	client := newDecryptClient(t, server.URL, signer)

	items := client.Decryption().BatchUserDecryptPartial(context.Background(), []DecryptionRequest{
		decryptReq(1), decryptReq(2),
	})
	require.Len(t, items, 2)
	require.NoError(t, items[0].Err)
	require.Equal(t, uint64(10), items[0].Result.Value.Uint64())
	require.ErrorIs(t, items[1].Err, ErrDecryption)
	require.Nil(t, items[1].Result)
}

func TestDecryptionResultCache(t *testing.T) {
	hits := new(atomic.Int32)
	server := newFakeGateway(t, nil, hits)
	signer := &fakeSigner{address: testUser}
	client := newDecryptClient(t, server.URL, signer, WithDecryptionResultCache(time.Minute))

	for i := 0; i < 3; i++ {
		result, err := client.Decryption().UserDecrypt(context.Background(), decryptReq(5))
		require.NoError(t, err)
		require.Equal(t, uint64(42), result.Value.Uint64())
	}
	require.Equal(t, int32(1), hits.Load())
	require.Equal(t, int32(1), signer.signCount.Load(), "cached results must not re-prompt the signer")

	// A different (contract, user, handle) identity misses the cache.
	other := decryptReq(6)
	_, err := client.Decryption().UserDecrypt(context.Background(), other)
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load())
}

func TestDecryptionResultCacheIsolatedFromCallers(t *testing.T) {
	hits := new(atomic.Int32)
	server := newFakeGateway(t, nil, hits)
	signer := &fakeSigner{address: testUser}
	client := newDecryptClient(t, server.URL, signer, WithDecryptionResultCache(time.Minute))

	first, err := client.Decryption().UserDecrypt(context.Background(), decryptReq(5))
	require.NoError(t, err)
	// In-place arithmetic on a returned result must not rewrite the cache.
	first.Value.Add(first.Value, uint256.NewInt(1000))

	second, err := client.Decryption().UserDecrypt(context.Background(), decryptReq(5))
	require.NoError(t, err)
	require.Equal(t, uint64(42), second.Value.Uint64())
	second.Value.Clear()

	third, err := client.Decryption().UserDecrypt(context.Background(), decryptReq(5))
	require.NoError(t, err)
	require.Equal(t, uint64(42), third.Value.Uint64())
	require.Equal(t, int32(1), hits.Load())
}

func TestConcurrentUserDecryptSharesGateway(t *testing.T) {
	hits := new(atomic.Int32)
	server := newFakeGateway(t, nil, hits)
	signer := &fakeSigner{address: testUser}
	client := newDecryptClient(t, server.URL, signer)

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = client.Decryption().UserDecrypt(context.Background(), decryptReq(uint64(i+1)))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(callers), hits.Load())
}

func TestDecryptionDisposeIdempotent(t *testing.T) {
	client := newDecryptClient(t, "http://127.0.0.1:1", &fakeSigner{address: testUser})
	dec := client.Decryption()

	require.NoError(t, dec.Dispose())
	require.NoError(t, dec.Dispose())

	_, err := dec.UserDecrypt(context.Background(), decryptReq(1))
	require.ErrorIs(t, err, ErrNotInitialized)
}
