package relayer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/rwa-bridge/pkg/payload"
	"github.com/chainsafe/rwa-bridge/pkg/transport/gateway"
	"github.com/chainsafe/rwa-bridge/pkg/transport/layerzero"
)

// GatewayClient is the part of a gateway the relayer uses
type GatewayClient interface {
	Chain() string
	Epoch() string
	StreamContractCalls(ctx context.Context, offset uint64) <-chan *gateway.ContractCall
	Deliver(ctx context.Context, call *gateway.ContractCall) error
}

// EndpointClient is the part of a layerzero endpoint the relayer uses
type EndpointClient interface {
	ChainID() uint16
	Epoch() string
	StreamPackets(ctx context.Context, offset uint64) <-chan *layerzero.Packet
	Deliver(ctx context.Context, p *layerzero.Packet) error
}

// GatewaySource implements Source for a gateway chain
type GatewaySource struct {
	client GatewayClient
}

func NewGatewaySource(client GatewayClient) *GatewaySource {
	return &GatewaySource{client: client}
}

func (s *GatewaySource) GetChainID() string {
	return s.client.Chain()
}

func (s *GatewaySource) Epoch() string {
	return s.client.Epoch()
}

func (s *GatewaySource) StreamMessages(ctx context.Context, offset uint64) <-chan *Message {
	outCh := make(chan *Message)
	callCh := s.client.StreamContractCalls(ctx, offset)

	go func() {
		defer close(outCh)
		for {
			select {
			case call, ok := <-callCh:
				if !ok {
					return
				}
				select {
				case outCh <- messageFromCall(call):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return outCh
}

func messageFromCall(call *gateway.ContractCall) *Message {
	msg := &Message{
		ID:                 call.ID.Hex(),
		Offset:             call.Offset,
		SourceChain:        call.SourceChain,
		DestinationChain:   call.DestinationChain,
		SourceAddress:      call.SourceAddress,
		DestinationAddress: call.DestinationAddress,
		Payload:            call.Payload,
		CreatedAt:          call.CreatedAt,
	}
	// an undecodable payload is still relayed; the destination rejects it
	if t, err := payload.DecodeTransfer(call.Payload); err == nil {
		msg.TokenAddress = t.Token.Hex()
		msg.Recipient = t.Recipient.Hex()
		msg.Amount = t.Amount.Dec()
	}
	return msg
}

// GatewayDestination implements Destination for a gateway chain
type GatewayDestination struct {
	client GatewayClient
}

func NewGatewayDestination(client GatewayClient) *GatewayDestination {
	return &GatewayDestination{client: client}
}

func (d *GatewayDestination) GetChainID() string {
	return d.client.Chain()
}

// SubmitMessage rebuilds the contract call from msg and delivers it. The
// gateway checks it against the call the source gateway recorded.
func (d *GatewayDestination) SubmitMessage(ctx context.Context, msg *Message) error {
	call := &gateway.ContractCall{
		ID:                 common.HexToHash(msg.ID),
		Offset:             msg.Offset,
		SourceChain:        msg.SourceChain,
		SourceAddress:      msg.SourceAddress,
		DestinationChain:   msg.DestinationChain,
		DestinationAddress: msg.DestinationAddress,
		Payload:            msg.Payload,
		PayloadHash:        crypto.Keccak256Hash(msg.Payload),
		CreatedAt:          msg.CreatedAt,
	}
	return d.client.Deliver(ctx, call)
}

// EndpointSource implements Source for a layerzero chain
type EndpointSource struct {
	client EndpointClient
}

func NewEndpointSource(client EndpointClient) *EndpointSource {
	return &EndpointSource{client: client}
}

func (s *EndpointSource) GetChainID() string {
	return formatChainID(s.client.ChainID())
}

func (s *EndpointSource) Epoch() string {
	return s.client.Epoch()
}

func (s *EndpointSource) StreamMessages(ctx context.Context, offset uint64) <-chan *Message {
	outCh := make(chan *Message)
	packetCh := s.client.StreamPackets(ctx, offset)

	go func() {
		defer close(outCh)
		for {
			select {
			case p, ok := <-packetCh:
				if !ok {
					return
				}
				select {
				case outCh <- messageFromPacket(p):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return outCh
}

func messageFromPacket(p *layerzero.Packet) *Message {
	msg := &Message{
		ID:                 p.ID.Hex(),
		Offset:             p.Offset,
		SourceChain:        formatChainID(p.SrcChainID),
		DestinationChain:   formatChainID(p.DstChainID),
		SourceAddress:      p.SrcAddress.Hex(),
		DestinationAddress: p.DstAddress.Hex(),
		Nonce:              p.Nonce,
		Payload:            p.Payload,
		TokenAddress:       p.SrcAddress.Hex(),
		CreatedAt:          p.CreatedAt,
	}
	if send, err := payload.DecodeOFTSend(p.Payload); err == nil {
		msg.Recipient = send.To.Hex()
		msg.Amount = send.Amount.Dec()
	}
	return msg
}

// EndpointDestination implements Destination for a layerzero chain
type EndpointDestination struct {
	client EndpointClient
}

func NewEndpointDestination(client EndpointClient) *EndpointDestination {
	return &EndpointDestination{client: client}
}

func (d *EndpointDestination) GetChainID() string {
	return formatChainID(d.client.ChainID())
}

// SubmitMessage rebuilds the packet from msg and delivers it. Packets on a
// path must arrive in nonce order.
func (d *EndpointDestination) SubmitMessage(ctx context.Context, msg *Message) error {
	src, err := parseChainID(msg.SourceChain)
	if err != nil {
		return err
	}
	dst, err := parseChainID(msg.DestinationChain)
	if err != nil {
		return err
	}
	p := &layerzero.Packet{
		ID:         common.HexToHash(msg.ID),
		Offset:     msg.Offset,
		SrcChainID: src,
		SrcAddress: common.HexToAddress(msg.SourceAddress),
		DstChainID: dst,
		DstAddress: common.HexToAddress(msg.DestinationAddress),
		Nonce:      msg.Nonce,
		Payload:    msg.Payload,
		CreatedAt:  msg.CreatedAt,
	}
	return d.client.Deliver(ctx, p)
}

func formatChainID(id uint16) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseChainID(s string) (uint16, error) {
	id, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid layerzero chain id %q: %w", s, err)
	}
	return uint16(id), nil
}
