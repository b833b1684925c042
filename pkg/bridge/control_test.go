package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chainsafe/rwa-bridge/pkg/app/errors"
)

func TestControl(t *testing.T) {
	_, err := NewControl(common.Address{})
	assert.ErrorIs(t, err, ErrZeroAddress)

	c, err := NewControl(owner)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Authorize(user1), ErrUnauthorized)
	assert.NoError(t, c.Authorize(owner))

	require.NoError(t, c.SetPaused(owner, true))
	require.NoError(t, c.SetPaused(owner, true))
	assert.ErrorIs(t, c.whenNotPaused(), ErrPaused)

	assert.ErrorIs(t, c.TransferOwnership(owner, common.Address{}), ErrZeroAddress)
	require.NoError(t, c.TransferOwnership(owner, user1))
	assert.ErrorIs(t, c.Authorize(owner), ErrUnauthorized)
}

func TestAdminOperationsRequireOwner(t *testing.T) {
	h := newGatewayHarness(t)
	ctx := context.Background()

	ops := map[string]func() error{
		"source pause":          func() error { return h.srcA.Pause(stranger) },
		"source unpause":        func() error { return h.srcA.Unpause(stranger) },
		"source add token":      func() error { return h.srcA.AddSupportedToken(stranger, tokenB, ether(1), ether(1)) },
		"source remove token":   func() error { return h.srcA.RemoveSupportedToken(stranger, tokenA) },
		"source max transfer":   func() error { return h.srcA.UpdateMaxTransferSize(stranger, tokenA, ether(1)) },
		"source daily limit":    func() error { return h.srcA.UpdateDailyLimit(stranger, tokenA, ether(1)) },
		"source add route":      func() error { return h.srcA.AddDestinationChain(stranger, "Polygon", "0xCAFE") },
		"source remove route":   func() error { return h.srcA.RemoveDestinationChain(stranger, "arbitrum") },
		"source ownership":      func() error { return h.srcA.TransferOwnership(stranger, stranger) },
		"source rescue":         func() error { _, err := h.srcA.RescueTokens(ctx, stranger, tokenA); return err },
		"destination pause":     func() error { return h.dstB.Pause(stranger) },
		"destination add token": func() error { return h.dstB.AddSupportedToken(stranger, tokenB) },
		"destination remove":    func() error { return h.dstB.RemoveSupportedToken(stranger, tokenA) },
		"destination add route": func() error { return h.dstB.AddChainSupport(stranger, "Polygon", "0xCAFE") },
		"destination rm route":  func() error { return h.dstB.RemoveChainSupport(stranger, "binance") },
		"destination rescue":    func() error { _, err := h.dstB.RescueTokens(ctx, stranger, tokenA); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), ErrUnauthorized)
		})
	}

	assert.False(t, h.srcA.Paused())
	assert.Equal(t, counterpartB, h.srcA.DestinationChain("arbitrum"))
	assert.Equal(t, bridgeA.Hex(), h.dstB.SourceChain("binance"))
	assert.Equal(t, owner, h.srcA.Owner())
}

func TestPauseGatesOnlyValueMovingCalls(t *testing.T) {
	h := newGatewayHarness(t)
	h.approveA(ether(2000))

	require.NoError(t, h.srcA.Pause(owner))
	assert.True(t, h.srcA.Paused())

	_, err := h.srcA.Bridge(context.Background(), owner, h.request(ether(1000)))
	assert.ErrorIs(t, err, ErrPaused)

	// admin operations keep working while paused
	require.NoError(t, h.srcA.UpdateMaxTransferSize(owner, tokenA, ether(50_000)))
	require.NoError(t, h.srcA.AddDestinationChain(owner, "Polygon", "0xCAFE"))

	require.NoError(t, h.srcA.Unpause(owner))
	require.NoError(t, h.srcA.Unpause(owner))
	_, err = h.srcA.Bridge(context.Background(), owner, h.request(ether(1000)))
	require.NoError(t, err)

	var types []EventType
	for _, e := range h.srcA.Events() {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, EventPaused)
	assert.Contains(t, types, EventUnpaused)
}

func TestTransferOwnership(t *testing.T) {
	h := newGatewayHarness(t)
	require.NoError(t, h.srcA.TransferOwnership(owner, user1))
	assert.Equal(t, user1, h.srcA.Owner())

	assert.ErrorIs(t, h.srcA.Pause(owner), ErrUnauthorized)
	require.NoError(t, h.srcA.Pause(user1))
	assert.ErrorIs(t, h.srcA.TransferOwnership(user1, common.Address{}), ErrZeroAddress)
}

func TestEventRetention(t *testing.T) {
	s, err := NewSourceBridge(Identity{ID: "src", Address: bridgeA, Owner: owner},
		failingSender{}, StaticTokens{}, WithEventRetention(3))
	require.NoError(t, err)

	for _, chain := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.AddDestinationChain(owner, chain, "0x01"))
	}
	events := s.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "c", events[0].Chain)
	assert.Equal(t, "e", events[2].Chain)
}

func TestSeedTokens(t *testing.T) {
	seeded, err := SeedTokens(
		[]common.Address{tokenA, tokenB},
		[]*uint256.Int{ether(1), ether(2)},
		[]*uint256.Int{ether(10), ether(20)},
	)
	require.NoError(t, err)
	require.Len(t, seeded, 2)
	assert.Equal(t, tokenB, seeded[1].Token)
	assert.Equal(t, ether(20), seeded[1].DailyLimit)

	_, err = SeedTokens([]common.Address{tokenA}, nil, []*uint256.Int{ether(1)})
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestParseModeAndPolicy(t *testing.T) {
	m, err := ParseMode("burn")
	require.NoError(t, err)
	assert.Equal(t, ModeBurn, m)
	_, err = ParseMode("teleport")
	assert.ErrorIs(t, err, ErrInvalidMode)

	p, err := ParseInboundPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyRevert, p)
	_, err = ParseInboundPolicy("drop")
	assert.Error(t, err)
}

func TestToServiceError(t *testing.T) {
	tests := []struct {
		err  error
		want apperrors.Category
	}{
		{ErrUnauthorized, apperrors.CategoryUnauthorized},
		{ErrUntrustedSource, apperrors.CategoryForbidden},
		{ErrPaused, apperrors.CategoryLocked},
		{ErrTokenAlreadySupported, apperrors.CategoryDataConflict},
		{ErrUnsupportedToken, apperrors.CategoryNotSupported},
		{ErrUnknownChainRoute, apperrors.CategoryNotSupported},
		{ErrDailyLimitExceeded, apperrors.CategoryDataError},
		{ErrInsufficientFee, apperrors.CategoryDataError},
		{errors.New("boom"), apperrors.CategoryGeneralError},
	}
	for _, tt := range tests {
		err := ToServiceError(tt.err)
		assert.True(t, apperrors.Is(err, tt.want), "%v -> %v", tt.err, tt.want)
		assert.ErrorIs(t, err, tt.err)
	}
	assert.NoError(t, ToServiceError(nil))
}
