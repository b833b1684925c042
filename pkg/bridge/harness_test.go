package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/rwa-bridge/pkg/token"
	"github.com/chainsafe/rwa-bridge/pkg/transport/gateway"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000A0")
	user1    = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000A2")

	// bridgeA serves binance, bridgeB (0xBEEF) serves arbitrum. Each address
	// hosts both halves of its chain's bridge.
	bridgeA = common.HexToAddress("0x000000000000000000000000000000000000A000")
	bridgeB = common.HexToAddress("0x000000000000000000000000000000000000bEEF")

	tokenA = common.HexToAddress("0x0000000000000000000000000000000000007001")
	tokenB = common.HexToAddress("0x0000000000000000000000000000000000007002")
)

const counterpartB = "0xBEEF"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

// gatewayHarness wires a binance <-> arbitrum deployment: srcA locks on
// binance and dstB mints on arbitrum; srcB burns on arbitrum and dstA unlocks
// on binance.
type gatewayHarness struct {
	t     *testing.T
	clock *clock

	ledgerA, ledgerB *token.Ledger
	gwA, gwB         *gateway.Gateway

	srcA *SourceBridge
	dstB *DestinationBridge
	srcB *SourceBridge
	dstA *DestinationBridge

	callsA, callsB <-chan *gateway.ContractCall
}

func newGatewayHarness(t *testing.T, dstOpts ...Option) *gatewayHarness {
	t.Helper()
	h := &gatewayHarness{t: t, clock: &clock{now: testNow}}

	var err error
	h.ledgerA, err = token.NewLedger("Real World Asset", "RWA", 18, owner)
	require.NoError(t, err)
	h.ledgerB, err = token.NewLedger("Real World Asset", "RWA", 18, owner)
	require.NoError(t, err)
	require.NoError(t, h.ledgerB.SetBridge(owner, bridgeB))
	require.NoError(t, h.ledgerA.Mint(owner, owner, ether(1_000_000)))

	net := gateway.NewNetwork()
	h.gwA, err = net.NewGateway("binance")
	require.NoError(t, err)
	h.gwB, err = net.NewGateway("arbitrum")
	require.NoError(t, err)

	limits := WithSupportedTokens(InitialToken{Token: tokenA, MaxTransferSize: ether(100_000), DailyLimit: ether(1_000_000)})
	clockOpt := WithClock(h.clock.Now)

	h.srcA, err = NewSourceBridge(Identity{ID: "binance-source", Address: bridgeA, Owner: owner},
		h.gwA, StaticTokens{tokenA: h.ledgerA}, limits, clockOpt)
	require.NoError(t, err)
	h.dstA, err = NewDestinationBridge(Identity{ID: "binance-destination", Address: bridgeA, Owner: owner},
		StaticTokens{tokenA: h.ledgerA}, append([]Option{WithMode(ModeUnlock), clockOpt}, dstOpts...)...)
	require.NoError(t, err)

	h.srcB, err = NewSourceBridge(Identity{ID: "arbitrum-source", Address: bridgeB, Owner: owner},
		h.gwB, StaticTokens{tokenA: h.ledgerB}, limits, clockOpt, WithMode(ModeBurn))
	require.NoError(t, err)
	h.dstB, err = NewDestinationBridge(Identity{ID: "arbitrum-destination", Address: bridgeB, Owner: owner},
		StaticTokens{tokenA: h.ledgerB}, append([]Option{clockOpt}, dstOpts...)...)
	require.NoError(t, err)

	require.NoError(t, h.srcA.AddDestinationChain(owner, "arbitrum", counterpartB))
	require.NoError(t, h.dstB.AddChainSupport(owner, "binance", bridgeA.Hex()))
	require.NoError(t, h.dstB.AddSupportedToken(owner, tokenA))

	require.NoError(t, h.srcB.AddDestinationChain(owner, "binance", bridgeA.Hex()))
	require.NoError(t, h.dstA.AddChainSupport(owner, "arbitrum", bridgeB.Hex()))
	require.NoError(t, h.dstA.AddSupportedToken(owner, tokenA))

	h.gwB.RegisterExecutable(counterpartB, h.dstB)
	h.gwA.RegisterExecutable(bridgeA.Hex(), h.dstA)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.callsA = h.gwA.StreamContractCalls(ctx, 0)
	h.callsB = h.gwB.StreamContractCalls(ctx, 0)
	return h
}

// relayAB delivers the next call queued on binance to arbitrum.
func (h *gatewayHarness) relayAB() error {
	return h.gwB.Deliver(context.Background(), h.next(h.callsA))
}

// relayBA delivers the next call queued on arbitrum to binance.
func (h *gatewayHarness) relayBA() error {
	return h.gwA.Deliver(context.Background(), h.next(h.callsB))
}

func (h *gatewayHarness) next(ch <-chan *gateway.ContractCall) *gateway.ContractCall {
	h.t.Helper()
	select {
	case call := <-ch:
		return call
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for contract call")
		return nil
	}
}

func (h *gatewayHarness) approveA(amount *uint256.Int) {
	h.t.Helper()
	require.NoError(h.t, h.ledgerA.Approve(owner, bridgeA, amount))
}

func (h *gatewayHarness) request(amount *uint256.Int) BridgeRequest {
	return BridgeRequest{
		Token:            tokenA,
		Recipient:        user1,
		DestinationChain: "arbitrum",
		Amount:           amount,
		Fee:              uint256.NewInt(1_000_000),
	}
}

func dailyUsed(t *testing.T, s *SourceBridge, tok common.Address) *uint256.Int {
	t.Helper()
	limits, ok := s.Limits(tok)
	require.True(t, ok)
	return limits.DailyUsed
}
