package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutable struct {
	calls []common.Hash
	err   error
}

func (r *recordingExecutable) Execute(_ context.Context, commandID common.Hash, _, _ string, _ []byte) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, commandID)
	return nil
}

func newPair(t *testing.T) (*Gateway, *Gateway) {
	t.Helper()
	n := NewNetwork()
	src, err := n.NewGateway("binance")
	require.NoError(t, err)
	dst, err := n.NewGateway("arbitrum")
	require.NoError(t, err)
	return src, dst
}

func TestNetwork_DuplicateChain(t *testing.T) {
	n := NewNetwork()
	_, err := n.NewGateway("arbitrum")
	require.NoError(t, err)
	_, err = n.NewGateway("arbitrum")
	assert.ErrorIs(t, err, ErrChainExists)
	assert.Equal(t, []string{"arbitrum"}, n.Chains())
}

func TestGateway_SendMessageValidatesBeforeRecording(t *testing.T) {
	src, _ := newPair(t)
	sender := common.HexToAddress("0x01")

	_, err := src.SendMessage(context.Background(), sender, "Polygon", "0xBEEF", []byte{1}, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrUnknownChain)

	_, err = src.SendMessage(context.Background(), sender, "arbitrum", "0xBEEF", []byte{1}, uint256.NewInt(0))
	assert.ErrorIs(t, err, ErrInsufficientFee)

	assert.Empty(t, src.GasService().Payments())
	assert.Equal(t, uint64(0), src.outbound.Len())
}

func TestGateway_DeliverExactlyOnce(t *testing.T) {
	src, dst := newPair(t)
	exe := &recordingExecutable{}
	dst.RegisterExecutable("0xBEEF", exe)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := src.SendMessage(ctx, common.HexToAddress("0x01"), "arbitrum", "0xBEEF", []byte("hello"), uint256.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(5), src.GasService().Collected("arbitrum"))

	call := <-src.StreamContractCalls(ctx, 0)
	require.Equal(t, id, call.ID)
	assert.Equal(t, common.HexToAddress("0x01").Hex(), call.SourceAddress)

	require.NoError(t, dst.Deliver(ctx, call))
	require.NoError(t, dst.Deliver(ctx, call))
	assert.Len(t, exe.calls, 1)
	assert.True(t, dst.IsExecuted(id))
}

func TestGateway_DeliverRejectsForgedCall(t *testing.T) {
	src, dst := newPair(t)
	dst.RegisterExecutable("0xBEEF", &recordingExecutable{})

	id, err := src.CallContract(context.Background(), common.HexToAddress("0x01"), "arbitrum", "0xBEEF", []byte("real"))
	require.NoError(t, err)
	call, ok := src.outbound.Get(0)
	require.True(t, ok)

	forged := *call
	forged.Payload = []byte("forged")
	assert.ErrorIs(t, dst.Deliver(context.Background(), &forged), ErrNotApproved)

	redirected := *call
	redirected.DestinationAddress = "0xdead"
	assert.ErrorIs(t, dst.Deliver(context.Background(), &redirected), ErrNotApproved)

	unknown := *call
	unknown.ID = common.HexToHash("0x1234")
	assert.ErrorIs(t, dst.Deliver(context.Background(), &unknown), ErrNotApproved)

	assert.ErrorIs(t, src.Deliver(context.Background(), call), ErrWrongDestination)
	assert.False(t, dst.IsExecuted(id))
}

func TestGateway_FailedExecuteCanBeRetried(t *testing.T) {
	src, dst := newPair(t)
	exe := &recordingExecutable{err: errors.New("boom")}
	dst.RegisterExecutable("0xBEEF", exe)

	_, err := src.CallContract(context.Background(), common.HexToAddress("0x01"), "arbitrum", "0xBEEF", []byte("x"))
	require.NoError(t, err)
	call, _ := src.outbound.Get(0)

	require.Error(t, dst.Deliver(context.Background(), call))
	assert.False(t, dst.IsExecuted(call.ID))

	exe.err = nil
	require.NoError(t, dst.Deliver(context.Background(), call))
	assert.Len(t, exe.calls, 1)
}

func TestGateway_NoExecutable(t *testing.T) {
	src, dst := newPair(t)
	_, err := src.CallContract(context.Background(), common.HexToAddress("0x01"), "arbitrum", "0xdead", nil)
	require.NoError(t, err)
	call, _ := src.outbound.Get(0)
	assert.ErrorIs(t, dst.Deliver(context.Background(), call), ErrNoExecutable)
}

func TestGateway_IDsDifferAcrossNetworks(t *testing.T) {
	first, _ := newPair(t)
	second, _ := newPair(t)
	sender := common.HexToAddress("0x01")

	// same sender, nonce and payload on two network lifetimes
	a, err := first.CallContract(context.Background(), sender, "arbitrum", "0xBEEF", []byte{1})
	require.NoError(t, err)
	b, err := second.CallContract(context.Background(), sender, "arbitrum", "0xBEEF", []byte{1})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, first.Epoch(), second.Epoch())
	assert.NotEmpty(t, first.Epoch())
}
