package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/chainsafe/rwa-bridge/pkg/payload"
)

var (
	ErrUntrustedSource = errors.New("untrusted source")
	ErrUnknownRemote   = errors.New("no trusted remote for chain")
)

// Endpoint is the LayerZero endpoint an OFT sends through.
type Endpoint interface {
	Address() common.Address
	ChainID() uint16
	Send(ctx context.Context, srcApp common.Address, dstChainID uint16, dstApp common.Address, data []byte, fee *uint256.Int) (common.Hash, error)
	EstimateFees(dstChainID uint16, srcApp common.Address, data []byte, useZro bool, adapterParams []byte) (*uint256.Int, *uint256.Int, error)
}

// OFT is an omnichain fungible token: sending burns locally and the remote OFT
// mints on receipt. It only accepts packets delivered by its endpoint from the
// trusted remote registered for the source chain.
type OFT struct {
	*Ledger

	address  common.Address
	endpoint Endpoint

	remotesMu sync.RWMutex
	remotes   map[uint16]common.Address
}

func NewOFT(ledger *Ledger, address common.Address, endpoint Endpoint) (*OFT, error) {
	if ledger == nil || endpoint == nil {
		return nil, errors.New("ledger and endpoint are required")
	}
	if address == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	return &OFT{
		Ledger:   ledger,
		address:  address,
		endpoint: endpoint,
		remotes:  make(map[uint16]common.Address),
	}, nil
}

func (o *OFT) Address() common.Address { return o.address }

// SetTrustedRemote registers the OFT deployed on chainID. Owner only.
func (o *OFT) SetTrustedRemote(caller common.Address, chainID uint16, remote common.Address) error {
	if caller != o.Owner() {
		return fmt.Errorf("%w: %s is not the owner", ErrNotAuthorized, caller.Hex())
	}
	if remote == (common.Address{}) {
		return ErrZeroAddress
	}
	o.remotesMu.Lock()
	defer o.remotesMu.Unlock()
	o.remotes[chainID] = remote
	return nil
}

func (o *OFT) TrustedRemote(chainID uint16) (common.Address, bool) {
	o.remotesMu.RLock()
	defer o.remotesMu.RUnlock()
	remote, ok := o.remotes[chainID]
	return remote, ok
}

// EstimateSendFee quotes the endpoint fee for sending amount to to on dstChainID.
func (o *OFT) EstimateSendFee(dstChainID uint16, to common.Address, amount *uint256.Int, useZro bool, adapterParams []byte) (*uint256.Int, *uint256.Int, error) {
	data, err := payload.EncodeOFTSend(payload.OFTSend{To: to, Amount: amountOrZero(amount)})
	if err != nil {
		return nil, nil, err
	}
	return o.endpoint.EstimateFees(dstChainID, o.address, data, useZro, adapterParams)
}

// SendFrom burns amount from from, spending spender's allowance, and
// dispatches the packet to the trusted remote on dstChainID. Nothing is burned
// if the endpoint rejects the send.
func (o *OFT) SendFrom(ctx context.Context, spender, from common.Address, dstChainID uint16, to common.Address, amount, fee *uint256.Int) (common.Hash, error) {
	if to == (common.Address{}) {
		return common.Hash{}, ErrZeroAddress
	}
	remote, ok := o.TrustedRemote(dstChainID)
	if !ok {
		return common.Hash{}, fmt.Errorf("%w %d", ErrUnknownRemote, dstChainID)
	}
	amount = amountOrZero(amount)
	if amount.IsZero() {
		return common.Hash{}, ErrZeroAmount
	}
	data, err := payload.EncodeOFTSend(payload.OFTSend{To: to, Amount: amount})
	if err != nil {
		return common.Hash{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkAllowance(spender, from, amount); err != nil {
		return common.Hash{}, err
	}
	if bal := o.balanceOf(from); bal.Lt(amount) {
		return common.Hash{}, fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), bal.Dec(), amount.Dec())
	}

	id, err := o.endpoint.Send(ctx, o.address, dstChainID, remote, data, fee)
	if err != nil {
		return common.Hash{}, err
	}
	if err := o.burn(from, amount); err != nil {
		// balance was checked under the same lock
		return common.Hash{}, err
	}
	o.spendAllowance(spender, from, amount)
	return id, nil
}

// LzReceive credits an inbound packet. caller must be the endpoint and
// srcAddress the trusted remote for srcChainID.
func (o *OFT) LzReceive(_ context.Context, caller common.Address, srcChainID uint16, srcAddress common.Address, _ uint64, data []byte) error {
	if caller != o.endpoint.Address() {
		return fmt.Errorf("%w: caller %s is not the endpoint", ErrUntrustedSource, caller.Hex())
	}
	remote, ok := o.TrustedRemote(srcChainID)
	if !ok || remote != srcAddress {
		return fmt.Errorf("%w: %s on chain %d", ErrUntrustedSource, srcAddress.Hex(), srcChainID)
	}
	packet, err := payload.DecodeOFTSend(data)
	if err != nil {
		return err
	}
	if packet.Amount.IsZero() {
		return ErrZeroAmount
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mint(packet.To, packet.Amount)
}
