// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestFheTypeWidths(t *testing.T) {
	tests := []struct {
		typ  FheType
		bits int
		max  uint64
		str  string
	}{
		{TypeBool, 1, 1, "ebool"},
		{TypeUint8, 8, 255, "euint8"},
		{TypeUint16, 16, 65535, "euint16"},
		{TypeUint32, 32, 1<<32 - 1, "euint32"},
		{TypeUint64, 64, ^uint64(0), "euint64"},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			require.Equal(t, tt.bits, tt.typ.Bits())
			require.Equal(t, tt.max, tt.typ.MaxValue())
			require.Equal(t, tt.str, tt.typ.String())
			require.True(t, SupportedTypes.Contains(tt.typ))
		})
	}
}

func TestFheTypeUnknown(t *testing.T) {
	unknown := FheType(200)
	require.Zero(t, unknown.Bits())
	require.Zero(t, unknown.MaxValue())
	require.Contains(t, unknown.String(), "unknown")
	require.False(t, SupportedTypes.Contains(unknown))
}

func TestDecryptionRequestID(t *testing.T) {
	base := DecryptionRequest{
		ContractAddress: testContract,
		UserAddress:     testUser,
		Handle:          uint256.NewInt(7),
	}
	require.Equal(t, base.ID(), base.ID())

	differentHandle := base
	differentHandle.Handle = uint256.NewInt(8)
	require.NotEqual(t, base.ID(), differentHandle.ID())

	differentContract := base
	differentContract.ContractAddress = testUser
	require.NotEqual(t, base.ID(), differentContract.ID())

	differentUser := base
	differentUser.UserAddress = testContract
	require.NotEqual(t, base.ID(), differentUser.ID())
}

func TestDecryptionRequestIDNilHandle(t *testing.T) {
	req := DecryptionRequest{ContractAddress: testContract, UserAddress: testUser}
	withZero := req
	withZero.Handle = uint256.NewInt(0)
	require.Equal(t, withZero.ID(), req.ID())
}
