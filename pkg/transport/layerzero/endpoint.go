// Package layerzero is an in-process point-to-point transport modelled on the
// LayerZero v1 endpoint: per-path nonces, a native fee quote and delivery to
// a registered receiver through LzReceive.
package layerzero

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/pkg/transport/outbox"
)

var (
	ErrUnknownChain     = errors.New("chain not connected")
	ErrChainExists      = errors.New("chain already connected")
	ErrInsufficientFee  = errors.New("insufficient native fee")
	ErrNotApproved      = errors.New("packet not approved")
	ErrWrongDestination = errors.New("packet addressed to another chain")
	ErrNoReceiver       = errors.New("no receiver registered at destination address")
	ErrNonceGap         = errors.New("inbound nonce out of order")
	ErrEndpointMismatch = errors.New("destination endpoint mismatch")
)

// Receiver is implemented by applications that accept packets.
type Receiver interface {
	LzReceive(ctx context.Context, caller common.Address, srcChainID uint16, srcAddress common.Address, nonce uint64, payload []byte) error
}

// Packet is one outbound message.
type Packet struct {
	ID         common.Hash
	Offset     uint64
	SrcChainID uint16
	SrcAddress common.Address
	DstChainID uint16
	DstAddress common.Address
	Nonce      uint64
	Payload    []byte
	Fee        *uint256.Int
	CreatedAt  time.Time
}

// FeeConfig prices a send as BaseFee + PerByteFee * (len(payload) + len(adapterParams)).
type FeeConfig struct {
	BaseFee    *uint256.Int
	PerByteFee *uint256.Int
	ZroFee     *uint256.Int
}

// DefaultFeeConfig charges 0.0001 native units plus 1 gwei per byte.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		BaseFee:    uint256.NewInt(100_000_000_000_000),
		PerByteFee: uint256.NewInt(1_000_000_000),
		ZroFee:     new(uint256.Int),
	}
}

// Network connects endpoints by chain id. Its epoch is fresh for every
// network, so packet ids never repeat across process lifetimes.
type Network struct {
	epoch     string
	mu        sync.RWMutex
	endpoints map[uint16]*Endpoint
}

func NewNetwork() *Network {
	return &Network{epoch: uuid.NewString(), endpoints: make(map[uint16]*Endpoint)}
}

func (n *Network) Epoch() string { return n.epoch }

func (n *Network) Endpoint(chainID uint16) (*Endpoint, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	e, ok := n.endpoints[chainID]
	return e, ok
}

// Option configures an Endpoint.
type Option func(*Endpoint)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Endpoint) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithFees(fees FeeConfig) Option {
	return func(e *Endpoint) { e.fees = fees }
}

func WithClock(now func() time.Time) Option {
	return func(e *Endpoint) {
		if now != nil {
			e.now = now
		}
	}
}

type pathKey struct {
	chainID uint16
	app     common.Address
}

// NewEndpoint creates and connects the endpoint for chainID at address.
func (n *Network) NewEndpoint(chainID uint16, address common.Address, opts ...Option) (*Endpoint, error) {
	if chainID == 0 {
		return nil, fmt.Errorf("%w: chain id 0", ErrUnknownChain)
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.endpoints[chainID]; ok {
		return nil, fmt.Errorf("%w: %d", ErrChainExists, chainID)
	}
	e := &Endpoint{
		chainID:       chainID,
		address:       address,
		network:       n,
		fees:          DefaultFeeConfig(),
		logger:        zap.NewNop(),
		now:           time.Now,
		outbound:      outbox.New[*Packet](),
		outNonce:      make(map[pathKey]uint64),
		sent:          make(map[common.Hash]*Packet),
		destEndpoints: make(map[common.Address]common.Address),
		receivers:     make(map[common.Address]Receiver),
		inNonce:       make(map[pathKey]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	n.endpoints[chainID] = e
	return e, nil
}

// Endpoint is the transport endpoint of one chain.
type Endpoint struct {
	chainID uint16
	address common.Address
	network *Network
	fees    FeeConfig
	logger  *zap.Logger
	now     func() time.Time

	mu            sync.Mutex
	outbound      *outbox.Log[*Packet]
	outNonce      map[pathKey]uint64
	sent          map[common.Hash]*Packet
	destEndpoints map[common.Address]common.Address
	receivers     map[common.Address]Receiver

	inMu    sync.Mutex
	inNonce map[pathKey]uint64
}

func (e *Endpoint) Address() common.Address { return e.address }

func (e *Endpoint) ChainID() uint16 { return e.chainID }

// Epoch names the lifetime of this endpoint's outbound stream
func (e *Endpoint) Epoch() string { return e.network.epoch }

// RegisterReceiver makes r reachable at app on this chain.
func (e *Endpoint) RegisterReceiver(app common.Address, r Receiver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.receivers[app] = r
}

// SetDestLzEndpoint pins the endpoint expected to serve dstApp. Sends to
// dstApp fail if the connected endpoint for the destination chain differs.
func (e *Endpoint) SetDestLzEndpoint(dstApp, endpoint common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destEndpoints[dstApp] = endpoint
}

// EstimateFees quotes a send. The zro fee is zero unless useZro is set.
func (e *Endpoint) EstimateFees(dstChainID uint16, _ common.Address, data []byte, useZro bool, adapterParams []byte) (*uint256.Int, *uint256.Int, error) {
	if _, ok := e.network.Endpoint(dstChainID); !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownChain, dstChainID)
	}
	size := uint256.NewInt(uint64(len(data) + len(adapterParams)))
	native := new(uint256.Int).Mul(orZero(e.fees.PerByteFee), size)
	native.Add(native, orZero(e.fees.BaseFee))

	zro := new(uint256.Int)
	if useZro {
		zro = orZero(e.fees.ZroFee).Clone()
	}
	return native, zro, nil
}

// Send queues a packet for dstApp on dstChainID. fee must cover the quote.
func (e *Endpoint) Send(_ context.Context, srcApp common.Address, dstChainID uint16, dstApp common.Address, data []byte, fee *uint256.Int) (common.Hash, error) {
	dst, ok := e.network.Endpoint(dstChainID)
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrUnknownChain, dstChainID)
	}
	quote, _, err := e.EstimateFees(dstChainID, srcApp, data, false, nil)
	if err != nil {
		return common.Hash{}, err
	}
	if fee == nil || fee.Lt(quote) {
		return common.Hash{}, fmt.Errorf("%w: quote %s", ErrInsufficientFee, quote.Dec())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if pinned, ok := e.destEndpoints[dstApp]; ok && pinned != dst.Address() {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrEndpointMismatch, dstApp.Hex())
	}

	key := pathKey{chainID: dstChainID, app: srcApp}
	e.outNonce[key]++
	nonce := e.outNonce[key]

	var chains [12]byte
	binary.BigEndian.PutUint16(chains[0:2], e.chainID)
	binary.BigEndian.PutUint16(chains[2:4], dstChainID)
	binary.BigEndian.PutUint64(chains[4:12], nonce)
	payloadHash := crypto.Keccak256Hash(data)
	id := crypto.Keccak256Hash([]byte(e.network.epoch), chains[:], srcApp.Bytes(), dstApp.Bytes(), payloadHash.Bytes())

	p := &Packet{
		ID:         id,
		SrcChainID: e.chainID,
		SrcAddress: srcApp,
		DstChainID: dstChainID,
		DstAddress: dstApp,
		Nonce:      nonce,
		Payload:    append([]byte(nil), data...),
		Fee:        fee.Clone(),
		CreatedAt:  e.now(),
	}
	e.sent[id] = p
	p.Offset = e.outbound.Append(p)

	e.logger.Debug("Packet queued",
		zap.String("id", id.Hex()),
		zap.Uint16("dst_chain_id", dstChainID),
		zap.Uint64("nonce", nonce))
	return id, nil
}

// StreamPackets streams outbound packets from offset on.
func (e *Endpoint) StreamPackets(ctx context.Context, offset uint64) <-chan *Packet {
	return e.outbound.Stream(ctx, offset)
}

// isApproved reports whether p matches a packet this endpoint sent.
func (e *Endpoint) isApproved(p *Packet) bool {
	e.mu.Lock()
	sent, ok := e.sent[p.ID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	return sent.SrcAddress == p.SrcAddress &&
		sent.DstChainID == p.DstChainID &&
		sent.DstAddress == p.DstAddress &&
		sent.Nonce == p.Nonce &&
		crypto.Keccak256Hash(sent.Payload) == crypto.Keccak256Hash(p.Payload)
}

// InboundNonce returns the last nonce delivered on the path from srcAddress on srcChainID.
func (e *Endpoint) InboundNonce(srcChainID uint16, srcAddress common.Address) uint64 {
	e.inMu.Lock()
	defer e.inMu.Unlock()
	return e.inNonce[pathKey{chainID: srcChainID, app: srcAddress}]
}

// Deliver hands p to its receiver. Packets on a path are delivered in nonce
// order; an already delivered nonce is skipped.
func (e *Endpoint) Deliver(ctx context.Context, p *Packet) error {
	if p.DstChainID != e.chainID {
		return fmt.Errorf("%w: %d", ErrWrongDestination, p.DstChainID)
	}
	src, ok := e.network.Endpoint(p.SrcChainID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChain, p.SrcChainID)
	}
	if !src.isApproved(p) {
		return fmt.Errorf("%w: %s", ErrNotApproved, p.ID.Hex())
	}

	e.mu.Lock()
	r, ok := e.receivers[p.DstAddress]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoReceiver, p.DstAddress.Hex())
	}

	e.inMu.Lock()
	defer e.inMu.Unlock()

	key := pathKey{chainID: p.SrcChainID, app: p.SrcAddress}
	last := e.inNonce[key]
	if p.Nonce <= last {
		e.logger.Debug("Packet already delivered", zap.String("id", p.ID.Hex()), zap.Uint64("nonce", p.Nonce))
		return nil
	}
	if p.Nonce != last+1 {
		return fmt.Errorf("%w: got %d, expected %d", ErrNonceGap, p.Nonce, last+1)
	}
	if err := r.LzReceive(ctx, e.address, p.SrcChainID, p.SrcAddress, p.Nonce, p.Payload); err != nil {
		return err
	}
	e.inNonce[key] = p.Nonce
	return nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
