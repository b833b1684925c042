package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/rwa-bridge/pkg/registry"
	"github.com/chainsafe/rwa-bridge/pkg/routes"
	"github.com/chainsafe/rwa-bridge/pkg/token"
)

func TestSourceBridge_BridgeEndToEnd(t *testing.T) {
	h := newGatewayHarness(t)
	h.approveA(ether(1000))

	receipt, err := h.srcA.Bridge(context.Background(), owner, h.request(ether(1000)))
	require.NoError(t, err)
	assert.Equal(t, "arbitrum", receipt.Chain)
	assert.Equal(t, counterpartB, receipt.Counterpart)

	assert.Equal(t, ether(999_000), h.ledgerA.BalanceOf(owner))
	assert.Equal(t, ether(1000), h.ledgerA.BalanceOf(bridgeA))
	assert.Equal(t, ether(1000), dailyUsed(t, h.srcA, tokenA))
	assert.True(t, h.ledgerB.BalanceOf(user1).IsZero(), "delivery is asynchronous")

	require.NoError(t, h.relayAB())
	assert.Equal(t, ether(1000), h.ledgerB.BalanceOf(user1))

	events := h.srcA.Events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventTokensBridged, last.Type)
	assert.Equal(t, receipt.MessageID, last.MessageID)
	assert.Equal(t, owner, last.Sender)
	assert.Equal(t, user1, last.Recipient)
	assert.Equal(t, ether(1000), last.Amount)

	received := h.dstB.Events()
	assert.Equal(t, EventTokensReceived, received[len(received)-1].Type)
	assert.Equal(t, "binance", received[len(received)-1].Chain)
}

func TestSourceBridge_ExceedsMaxTransfer(t *testing.T) {
	h := newGatewayHarness(t)
	h.approveA(ether(200_000))

	_, err := h.srcA.Bridge(context.Background(), owner, h.request(ether(100_001)))
	assert.ErrorIs(t, err, ErrExceedsMaxTransfer)

	assert.Equal(t, ether(1_000_000), h.ledgerA.BalanceOf(owner))
	assert.True(t, dailyUsed(t, h.srcA, tokenA).IsZero())
	assert.Empty(t, h.gwA.GasService().Payments())
}

func TestSourceBridge_Rejections(t *testing.T) {
	other := common.HexToAddress("0x0000000000000000000000000000000000007777")

	tests := []struct {
		name    string
		setup   func(h *gatewayHarness)
		mutate  func(r *BridgeRequest)
		caller  common.Address
		wantErr error
	}{
		{
			name:    "paused",
			setup:   func(h *gatewayHarness) { require.NoError(t, h.srcA.Pause(owner)) },
			wantErr: ErrPaused,
		},
		{
			name:    "zero recipient",
			mutate:  func(r *BridgeRequest) { r.Recipient = common.Address{} },
			wantErr: ErrZeroAddress,
		},
		{
			name:    "route is case sensitive",
			mutate:  func(r *BridgeRequest) { r.DestinationChain = "Arbitrum" },
			wantErr: ErrUnknownChainRoute,
		},
		{
			name:    "unsupported token",
			mutate:  func(r *BridgeRequest) { r.Token = other },
			wantErr: ErrUnsupportedToken,
		},
		{
			name:    "zero amount",
			mutate:  func(r *BridgeRequest) { r.Amount = new(uint256.Int) },
			wantErr: ErrZeroAmount,
		},
		{
			name:    "zero fee",
			mutate:  func(r *BridgeRequest) { r.Fee = new(uint256.Int) },
			wantErr: ErrInsufficientFee,
		},
		{
			name:    "missing fee",
			mutate:  func(r *BridgeRequest) { r.Fee = nil },
			wantErr: ErrInsufficientFee,
		},
		{
			name: "route to unconnected chain",
			setup: func(h *gatewayHarness) {
				require.NoError(t, h.srcA.AddDestinationChain(owner, "Polygon", "0xCAFE"))
			},
			mutate:  func(r *BridgeRequest) { r.DestinationChain = "Polygon" },
			wantErr: ErrUnknownChainRoute,
		},
		{
			name:    "no allowance",
			caller:  user1,
			wantErr: ErrInsufficientAllowance,
		},
		{
			name: "no balance",
			setup: func(h *gatewayHarness) {
				require.NoError(t, h.ledgerA.Approve(user1, bridgeA, ether(1000)))
			},
			caller:  user1,
			wantErr: ErrInsufficientBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newGatewayHarness(t)
			h.approveA(ether(1000))
			if tt.setup != nil {
				tt.setup(h)
			}
			req := h.request(ether(1000))
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			caller := owner
			if tt.caller != (common.Address{}) {
				caller = tt.caller
			}

			_, err := h.srcA.Bridge(context.Background(), caller, req)
			require.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, ether(1_000_000), h.ledgerA.BalanceOf(owner))
			assert.True(t, h.ledgerA.BalanceOf(bridgeA).IsZero())
			assert.True(t, dailyUsed(t, h.srcA, tokenA).IsZero())
			assert.Empty(t, h.gwA.GasService().Payments())
		})
	}
}

func TestSourceBridge_DailyLimit(t *testing.T) {
	h := newGatewayHarness(t)
	require.NoError(t, h.srcA.UpdateDailyLimit(owner, tokenA, ether(1500)))
	h.approveA(ether(3000))

	_, err := h.srcA.Bridge(context.Background(), owner, h.request(ether(1000)))
	require.NoError(t, err)

	_, err = h.srcA.Bridge(context.Background(), owner, h.request(ether(1000)))
	assert.ErrorIs(t, err, ErrDailyLimitExceeded)
	assert.Equal(t, ether(1000), dailyUsed(t, h.srcA, tokenA))
	assert.Equal(t, ether(999_000), h.ledgerA.BalanceOf(owner))

	remaining, err := h.srcA.Remaining(tokenA)
	require.NoError(t, err)
	assert.Equal(t, ether(500), remaining)

	h.clock.now = h.clock.now.Add(registry.DefaultWindow)
	_, err = h.srcA.Bridge(context.Background(), owner, h.request(ether(1000)))
	require.NoError(t, err)
	assert.Equal(t, ether(1000), dailyUsed(t, h.srcA, tokenA))
}

type failingSender struct{ err error }

func (f failingSender) CheckMessage(string, *uint256.Int) error { return nil }

func (f failingSender) SendMessage(context.Context, common.Address, string, string, []byte, *uint256.Int) (common.Hash, error) {
	return common.Hash{}, f.err
}

func TestSourceBridge_DispatchFailureRefunds(t *testing.T) {
	ledger, err := token.NewLedger("Real World Asset", "RWA", 18, owner)
	require.NoError(t, err)
	require.NoError(t, ledger.Mint(owner, owner, ether(10)))
	require.NoError(t, ledger.Approve(owner, bridgeA, ether(10)))

	s, err := NewSourceBridge(Identity{ID: "src", Address: bridgeA, Owner: owner},
		failingSender{err: errors.New("transport down")}, StaticTokens{tokenA: ledger},
		WithSupportedTokens(InitialToken{Token: tokenA, MaxTransferSize: ether(10), DailyLimit: ether(10)}))
	require.NoError(t, err)
	require.NoError(t, s.AddDestinationChain(owner, "arbitrum", counterpartB))

	_, err = s.Bridge(context.Background(), owner, BridgeRequest{
		Token: tokenA, Recipient: user1, DestinationChain: "arbitrum", Amount: ether(5), Fee: uint256.NewInt(1),
	})
	require.Error(t, err)

	assert.Equal(t, ether(10), ledger.BalanceOf(owner))
	assert.True(t, ledger.BalanceOf(bridgeA).IsZero())
	assert.Equal(t, ether(10), ledger.Allowance(owner, bridgeA), "spent allowance is restored")
	assert.True(t, dailyUsed(t, s, tokenA).IsZero())
	for _, e := range s.Events() {
		assert.NotEqual(t, EventTokensBridged, e.Type)
	}
}

func TestSourceBridge_BurnMode(t *testing.T) {
	h := newGatewayHarness(t)
	h.approveA(ether(500))
	_, err := h.srcA.Bridge(context.Background(), owner, h.request(ether(500)))
	require.NoError(t, err)
	require.NoError(t, h.relayAB())

	require.NoError(t, h.ledgerB.Approve(user1, bridgeB, ether(200)))
	_, err = h.srcB.Bridge(context.Background(), user1, BridgeRequest{
		Token: tokenA, Recipient: user1, DestinationChain: "binance", Amount: ether(200), Fee: uint256.NewInt(1),
	})
	require.NoError(t, err)

	assert.Equal(t, ether(300), h.ledgerB.BalanceOf(user1))
	assert.True(t, h.ledgerB.BalanceOf(bridgeB).IsZero())
	assert.Equal(t, ether(300), h.ledgerB.TotalSupply())
	assert.True(t, h.ledgerB.Allowance(user1, bridgeB).IsZero())
}

func TestSourceBridge_ConcurrentTransfersRespectDailyLimit(t *testing.T) {
	h := newGatewayHarness(t)
	require.NoError(t, h.srcA.UpdateDailyLimit(owner, tokenA, ether(1000)))
	h.approveA(ether(5000))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.srcA.Bridge(context.Background(), owner, h.request(ether(100)))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrDailyLimitExceeded)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, ether(1000), dailyUsed(t, h.srcA, tokenA))
	assert.Equal(t, ether(1000), h.ledgerA.BalanceOf(bridgeA))
	assert.Equal(t, ether(999_000), h.ledgerA.BalanceOf(owner))
	assert.Len(t, h.gwA.GasService().Payments(), 10)
}

func TestSourceBridge_RouteLifecycle(t *testing.T) {
	h := newGatewayHarness(t)
	assert.Equal(t, counterpartB, h.srcA.DestinationChain("arbitrum"))

	require.NoError(t, h.srcA.AddDestinationChain(owner, "Polygon", "0xCAFE"))
	require.NoError(t, h.srcA.AddDestinationChain(owner, "Polygon", "0xF00D"))
	assert.Equal(t, "0xF00D", h.srcA.DestinationChain("Polygon"))
	assert.Empty(t, h.srcA.DestinationChain("polygon"))

	require.NoError(t, h.srcA.RemoveDestinationChain(owner, "arbitrum"))
	assert.Empty(t, h.srcA.DestinationChain("arbitrum"))
	require.NoError(t, h.srcA.RemoveDestinationChain(owner, "arbitrum"))

	assert.ErrorIs(t, h.srcA.AddDestinationChain(owner, "arbitrum", ""), routes.ErrEmptyCounterpart)
}

func TestSourceBridge_TokenLifecycle(t *testing.T) {
	h := newGatewayHarness(t)
	other := common.HexToAddress("0x0000000000000000000000000000000000007777")

	assert.False(t, h.srcA.IsSupported(other))
	assert.ErrorIs(t, h.srcA.AddSupportedToken(owner, common.Address{}, ether(1), ether(1)), ErrZeroAddress)
	assert.ErrorIs(t, h.srcA.AddSupportedToken(owner, tokenA, ether(1), ether(1)), ErrTokenAlreadySupported)
	assert.ErrorIs(t, h.srcA.AddSupportedToken(owner, other, new(uint256.Int), ether(1)), ErrInvalidLimit)
	assert.ErrorIs(t, h.srcA.RemoveSupportedToken(owner, other), ErrUnsupportedToken)
	assert.ErrorIs(t, h.srcA.UpdateMaxTransferSize(owner, other, ether(1)), ErrUnsupportedToken)
	assert.ErrorIs(t, h.srcA.UpdateMaxTransferSize(owner, tokenA, new(uint256.Int)), ErrInvalidLimit)
	assert.ErrorIs(t, h.srcA.UpdateDailyLimit(owner, tokenA, nil), ErrInvalidLimit)

	h.approveA(ether(1000))
	_, err := h.srcA.Bridge(context.Background(), owner, h.request(ether(1000)))
	require.NoError(t, err)

	require.NoError(t, h.srcA.RemoveSupportedToken(owner, tokenA))
	assert.False(t, h.srcA.IsSupported(tokenA))
	_, err = h.srcA.Bridge(context.Background(), owner, h.request(ether(1)))
	assert.ErrorIs(t, err, ErrUnsupportedToken)

	require.NoError(t, h.srcA.AddSupportedToken(owner, tokenA, ether(100_000), ether(1_000_000)))
	assert.True(t, dailyUsed(t, h.srcA, tokenA).IsZero(), "re-adding a token starts a fresh window")
}

func TestSourceBridge_Rescue(t *testing.T) {
	h := newGatewayHarness(t)
	require.NoError(t, h.ledgerA.Transfer(owner, user1, ether(50)))
	require.NoError(t, h.ledgerA.Transfer(user1, bridgeA, ether(50)))

	_, err := h.srcA.RescueTokens(context.Background(), user1, tokenA)
	assert.ErrorIs(t, err, ErrUnauthorized)

	swept, err := h.srcA.RescueTokens(context.Background(), owner, tokenA)
	require.NoError(t, err)
	assert.Equal(t, ether(50), swept)
	assert.True(t, h.ledgerA.BalanceOf(bridgeA).IsZero())
	assert.Equal(t, ether(1_000_000), h.ledgerA.BalanceOf(owner))

	swept, err = h.srcA.RescueTokens(context.Background(), owner, tokenA)
	require.NoError(t, err)
	assert.True(t, swept.IsZero())

	_, err = h.srcA.RescueTokens(context.Background(), owner, tokenB)
	assert.ErrorIs(t, err, ErrUnsupportedToken)
}

func TestSourceBridge_InvalidMode(t *testing.T) {
	_, err := NewSourceBridge(Identity{ID: "src", Address: bridgeA, Owner: owner},
		failingSender{}, StaticTokens{}, WithMode(ModeMint))
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = NewSourceBridge(Identity{ID: "src", Address: bridgeA}, failingSender{}, StaticTokens{})
	assert.ErrorIs(t, err, ErrZeroAddress)
}
