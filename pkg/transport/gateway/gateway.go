// Package gateway is an in-process general message passing transport. Each
// chain has a Gateway; a Network connects them by chain name. Outbound calls
// are appended to the source gateway's log and delivered later, by a relayer,
// to the Executable registered at the destination address.
package gateway

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
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
	ErrInsufficientFee  = errors.New("insufficient gas payment")
	ErrNotApproved      = errors.New("contract call not approved")
	ErrWrongDestination = errors.New("contract call addressed to another chain")
	ErrNoExecutable     = errors.New("no executable registered at destination address")
)

// ContractCall is one outbound message.
type ContractCall struct {
	ID                 common.Hash
	Offset             uint64
	SourceChain        string
	SourceAddress      string
	DestinationChain   string
	DestinationAddress string
	Payload            []byte
	PayloadHash        common.Hash
	CreatedAt          time.Time
}

// Executable is implemented by contracts that receive gateway calls.
type Executable interface {
	Execute(ctx context.Context, commandID common.Hash, sourceChain, sourceAddress string, payload []byte) error
}

// Network connects gateways by chain name. Its epoch is fresh for every
// network, so call ids never repeat across process lifetimes.
type Network struct {
	epoch    string
	mu       sync.RWMutex
	gateways map[string]*Gateway
}

func NewNetwork() *Network {
	return &Network{epoch: uuid.NewString(), gateways: make(map[string]*Gateway)}
}

func (n *Network) Epoch() string { return n.epoch }

// Option configures a Gateway.
type Option func(*Gateway)

func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithGasService(gas *GasService) Option {
	return func(g *Gateway) {
		if gas != nil {
			g.gas = gas
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGateway creates and connects the gateway for chain.
func (n *Network) NewGateway(chain string, opts ...Option) (*Gateway, error) {
	if chain == "" {
		return nil, fmt.Errorf("%w: empty chain name", ErrUnknownChain)
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.gateways[chain]; ok {
		return nil, fmt.Errorf("%w: %s", ErrChainExists, chain)
	}
	g := &Gateway{
		chain:       chain,
		network:     n,
		gas:         NewGasService(),
		logger:      zap.NewNop(),
		now:         time.Now,
		outbound:    outbox.New[*ContractCall](),
		sent:        make(map[common.Hash]*ContractCall),
		executables: make(map[string]Executable),
		executed:    make(map[common.Hash]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	n.gateways[chain] = g
	return g, nil
}

func (n *Network) Gateway(chain string) (*Gateway, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	g, ok := n.gateways[chain]
	return g, ok
}

// Chains returns the connected chain names in order.
func (n *Network) Chains() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.gateways))
	for chain := range n.gateways {
		out = append(out, chain)
	}
	sort.Strings(out)
	return out
}

// Gateway is the transport endpoint of one chain.
type Gateway struct {
	chain   string
	network *Network
	gas     *GasService
	logger  *zap.Logger
	now     func() time.Time

	mu          sync.Mutex
	nonce       uint64
	outbound    *outbox.Log[*ContractCall]
	sent        map[common.Hash]*ContractCall
	executables map[string]Executable

	execMu   sync.Mutex
	executed map[common.Hash]struct{}
}

func (g *Gateway) Chain() string { return g.chain }

// Epoch names the lifetime of this gateway's outbound stream
func (g *Gateway) Epoch() string { return g.network.epoch }

func (g *Gateway) GasService() *GasService { return g.gas }

// RegisterExecutable makes exe reachable at address on this chain.
func (g *Gateway) RegisterExecutable(address string, exe Executable) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.executables[address] = exe
}

// CallContract queues payload for destAddress on destChain.
func (g *Gateway) CallContract(_ context.Context, sender common.Address, destChain, destAddress string, data []byte) (common.Hash, error) {
	if _, ok := g.network.Gateway(destChain); !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownChain, destChain)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	payloadHash := crypto.Keccak256Hash(data)
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], g.nonce)
	g.nonce++

	id := crypto.Keccak256Hash(
		[]byte(g.network.epoch), []byte(g.chain), sender.Bytes(), nonce[:],
		[]byte(destChain), []byte(destAddress), payloadHash.Bytes(),
	)
	call := &ContractCall{
		ID:                 id,
		SourceChain:        g.chain,
		SourceAddress:      sender.Hex(),
		DestinationChain:   destChain,
		DestinationAddress: destAddress,
		Payload:            append([]byte(nil), data...),
		PayloadHash:        payloadHash,
		CreatedAt:          g.now(),
	}
	g.sent[id] = call
	call.Offset = g.outbound.Append(call)

	g.logger.Debug("Contract call queued",
		zap.String("id", id.Hex()),
		zap.String("destination_chain", destChain),
		zap.String("destination_address", destAddress))
	return id, nil
}

// CheckMessage runs the validation of SendMessage without recording anything.
func (g *Gateway) CheckMessage(destChain string, fee *uint256.Int) error {
	if _, ok := g.network.Gateway(destChain); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChain, destChain)
	}
	if fee == nil || fee.IsZero() {
		return ErrInsufficientFee
	}
	return nil
}

// SendMessage prepays gas and queues the call. Both are validated before
// anything is recorded, so a rejected send leaves no trace.
func (g *Gateway) SendMessage(ctx context.Context, sender common.Address, destChain, destAddress string, data []byte, fee *uint256.Int) (common.Hash, error) {
	if err := g.CheckMessage(destChain, fee); err != nil {
		return common.Hash{}, err
	}
	if err := g.gas.PayNativeGasForContractCall(sender, destChain, destAddress, data, sender, fee); err != nil {
		return common.Hash{}, err
	}
	return g.CallContract(ctx, sender, destChain, destAddress, data)
}

// StreamContractCalls streams outbound calls from offset on.
func (g *Gateway) StreamContractCalls(ctx context.Context, offset uint64) <-chan *ContractCall {
	return g.outbound.Stream(ctx, offset)
}

// isApproved reports whether call matches one this gateway queued.
func (g *Gateway) isApproved(call *ContractCall) bool {
	g.mu.Lock()
	sent, ok := g.sent[call.ID]
	g.mu.Unlock()
	return ok &&
		sent.SourceAddress == call.SourceAddress &&
		sent.DestinationAddress == call.DestinationAddress &&
		sent.PayloadHash == call.PayloadHash
}

// IsExecuted reports whether the command was already delivered here.
func (g *Gateway) IsExecuted(id common.Hash) bool {
	g.execMu.Lock()
	defer g.execMu.Unlock()
	_, ok := g.executed[id]
	return ok
}

// Deliver executes call on this chain. The call must have been queued by the
// source gateway with the same payload. A command that already executed is
// skipped, so at-least-once delivery executes exactly once.
func (g *Gateway) Deliver(ctx context.Context, call *ContractCall) error {
	if call.DestinationChain != g.chain {
		return fmt.Errorf("%w: %s", ErrWrongDestination, call.DestinationChain)
	}
	src, ok := g.network.Gateway(call.SourceChain)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChain, call.SourceChain)
	}
	if crypto.Keccak256Hash(call.Payload) != call.PayloadHash || !src.isApproved(call) {
		return fmt.Errorf("%w: %s", ErrNotApproved, call.ID.Hex())
	}

	g.mu.Lock()
	exe, ok := g.executables[call.DestinationAddress]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoExecutable, call.DestinationAddress)
	}

	g.execMu.Lock()
	defer g.execMu.Unlock()

	if _, done := g.executed[call.ID]; done {
		g.logger.Debug("Command already executed", zap.String("id", call.ID.Hex()))
		return nil
	}
	if err := exe.Execute(ctx, call.ID, call.SourceChain, call.SourceAddress, call.Payload); err != nil {
		return err
	}
	g.executed[call.ID] = struct{}{}
	return nil
}
