package relayer

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/rwa-bridge/pkg/payload"
	"github.com/chainsafe/rwa-bridge/pkg/transport/gateway"
	"github.com/chainsafe/rwa-bridge/pkg/transport/layerzero"
)

var (
	sender    = common.HexToAddress("0x000000000000000000000000000000000000A000")
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	tokenAddr = common.HexToAddress("0x0000000000000000000000000000000000007001")
)

type executed struct {
	commandID     common.Hash
	sourceChain   string
	sourceAddress string
	payload       []byte
}

type recordingExecutable struct {
	calls []executed
}

func (r *recordingExecutable) Execute(_ context.Context, commandID common.Hash, sourceChain, sourceAddress string, data []byte) error {
	r.calls = append(r.calls, executed{commandID, sourceChain, sourceAddress, data})
	return nil
}

type recordingReceiver struct {
	srcChainID uint16
	nonces     []uint64
}

func (r *recordingReceiver) LzReceive(_ context.Context, _ common.Address, srcChainID uint16, _ common.Address, nonce uint64, _ []byte) error {
	r.srcChainID = srcChainID
	r.nonces = append(r.nonces, nonce)
	return nil
}

func nextMessage(t *testing.T, ch <-chan *Message) *Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "stream closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestGatewayHandlers_RoundTrip(t *testing.T) {
	net := gateway.NewNetwork()
	gwA, err := net.NewGateway("binance")
	require.NoError(t, err)
	gwB, err := net.NewGateway("arbitrum")
	require.NoError(t, err)

	exe := &recordingExecutable{}
	gwB.RegisterExecutable("0xBEEF", exe)

	data, err := payload.EncodeTransfer(payload.Transfer{Token: tokenAddr, Recipient: recipient, Amount: uint256.NewInt(1000)})
	require.NoError(t, err)
	id, err := gwA.SendMessage(context.Background(), sender, "arbitrum", "0xBEEF", data, uint256.NewInt(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := NewGatewaySource(gwA)
	assert.Equal(t, "binance", source.GetChainID())
	msg := nextMessage(t, source.StreamMessages(ctx, 0))

	assert.Equal(t, id.Hex(), msg.ID)
	assert.Equal(t, "arbitrum", msg.DestinationChain)
	assert.Equal(t, sender.Hex(), msg.SourceAddress)
	assert.Equal(t, tokenAddr.Hex(), msg.TokenAddress)
	assert.Equal(t, recipient.Hex(), msg.Recipient)
	assert.Equal(t, "1000", msg.Amount)

	dest := NewGatewayDestination(gwB)
	assert.Equal(t, "arbitrum", dest.GetChainID())
	require.NoError(t, dest.SubmitMessage(ctx, msg))
	require.Len(t, exe.calls, 1)
	assert.Equal(t, id, exe.calls[0].commandID)
	assert.Equal(t, "binance", exe.calls[0].sourceChain)
	assert.Equal(t, sender.Hex(), exe.calls[0].sourceAddress)

	// redelivery is absorbed by the gateway
	require.NoError(t, dest.SubmitMessage(ctx, msg))
	assert.Len(t, exe.calls, 1)

	tampered := *msg
	tampered.Payload = append([]byte(nil), msg.Payload...)
	tampered.Payload[len(tampered.Payload)-1] ^= 0xff
	assert.ErrorIs(t, dest.SubmitMessage(ctx, &tampered), gateway.ErrNotApproved)
}

func TestGatewaySource_UndecodablePayload(t *testing.T) {
	net := gateway.NewNetwork()
	gwA, err := net.NewGateway("binance")
	require.NoError(t, err)
	_, err = net.NewGateway("arbitrum")
	require.NoError(t, err)

	_, err = gwA.CallContract(context.Background(), sender, "arbitrum", "0xBEEF", []byte{0x01})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msg := nextMessage(t, NewGatewaySource(gwA).StreamMessages(ctx, 0))
	assert.Equal(t, []byte{0x01}, msg.Payload)
	assert.Empty(t, msg.Amount)
	assert.Empty(t, msg.Recipient)
}

func TestEndpointHandlers_RoundTrip(t *testing.T) {
	net := layerzero.NewNetwork()
	epA, err := net.NewEndpoint(10102, common.HexToAddress("0xE1"))
	require.NoError(t, err)
	epB, err := net.NewEndpoint(10143, common.HexToAddress("0xE2"))
	require.NoError(t, err)

	dstApp := common.HexToAddress("0xB2")
	recv := &recordingReceiver{}
	epB.RegisterReceiver(dstApp, recv)

	data, err := payload.EncodeOFTSend(payload.OFTSend{To: recipient, Amount: uint256.NewInt(500)})
	require.NoError(t, err)
	fee, _, err := epA.EstimateFees(10143, sender, data, false, nil)
	require.NoError(t, err)
	_, err = epA.Send(context.Background(), sender, 10143, dstApp, data, fee)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := NewEndpointSource(epA)
	assert.Equal(t, "10102", source.GetChainID())
	msg := nextMessage(t, source.StreamMessages(ctx, 0))
	assert.Equal(t, "10102", msg.SourceChain)
	assert.Equal(t, "10143", msg.DestinationChain)
	assert.Equal(t, uint64(1), msg.Nonce)
	assert.Equal(t, recipient.Hex(), msg.Recipient)
	assert.Equal(t, "500", msg.Amount)

	dest := NewEndpointDestination(epB)
	assert.Equal(t, "10143", dest.GetChainID())
	require.NoError(t, dest.SubmitMessage(ctx, msg))
	assert.Equal(t, []uint64{1}, recv.nonces)
	assert.Equal(t, uint16(10102), recv.srcChainID)

	bad := *msg
	bad.SourceChain = "binance"
	assert.Error(t, dest.SubmitMessage(ctx, &bad))
}
