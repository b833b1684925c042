package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/chainsafe/rwa-bridge/pkg/payload"
	"github.com/chainsafe/rwa-bridge/pkg/transport/layerzero"
)

const (
	chainA uint16 = 10102
	chainB uint16 = 10143
)

var (
	oftA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	oftB = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

type oftPair struct {
	a, b   *OFT
	epA    *layerzero.Endpoint
	epB    *layerzero.Endpoint
	stream <-chan *layerzero.Packet
}

func newOFTPair(t *testing.T) *oftPair {
	t.Helper()
	n := layerzero.NewNetwork()
	epA, err := n.NewEndpoint(chainA, common.HexToAddress("0xE1"))
	if err != nil {
		t.Fatal(err)
	}
	epB, err := n.NewEndpoint(chainB, common.HexToAddress("0xE2"))
	if err != nil {
		t.Fatal(err)
	}

	a, err := NewOFT(newTestLedger(t), oftA, epA)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewOFT(newTestLedger(t), oftB, epB)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.SetTrustedRemote(owner, chainB, oftB); err != nil {
		t.Fatal(err)
	}
	if err := b.SetTrustedRemote(owner, chainA, oftA); err != nil {
		t.Fatal(err)
	}
	epA.RegisterReceiver(oftA, a)
	epB.RegisterReceiver(oftB, b)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &oftPair{a: a, b: b, epA: epA, epB: epB, stream: epA.StreamPackets(ctx, 0)}
}

func (p *oftPair) next(t *testing.T) *layerzero.Packet {
	t.Helper()
	select {
	case pkt := <-p.stream:
		return pkt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
		return nil
	}
}

func TestOFT_SendAndReceive(t *testing.T) {
	p := newOFTPair(t)
	ctx := context.Background()
	if err := p.a.Mint(owner, owner, uint256.NewInt(1000)); err != nil {
		t.Fatal(err)
	}

	fee, _, err := p.a.EstimateSendFee(chainB, user1, uint256.NewInt(400), false, nil)
	if err != nil {
		t.Fatalf("EstimateSendFee() failed: %v", err)
	}
	if _, err := p.a.SendFrom(ctx, owner, owner, chainB, user1, uint256.NewInt(400), fee); err != nil {
		t.Fatalf("SendFrom() failed: %v", err)
	}
	if got := p.a.BalanceOf(owner); !got.Eq(uint256.NewInt(600)) {
		t.Errorf("expected 600 left on A, got %s", got.Dec())
	}
	if got := p.a.TotalSupply(); !got.Eq(uint256.NewInt(600)) {
		t.Errorf("expected supply 600 on A, got %s", got.Dec())
	}

	if err := p.epB.Deliver(ctx, p.next(t)); err != nil {
		t.Fatalf("Deliver() failed: %v", err)
	}
	if got := p.b.BalanceOf(user1); !got.Eq(uint256.NewInt(400)) {
		t.Errorf("expected 400 on B, got %s", got.Dec())
	}
	total := new(uint256.Int).Add(p.a.TotalSupply(), p.b.TotalSupply())
	if !total.Eq(uint256.NewInt(1000)) {
		t.Errorf("expected combined supply 1000, got %s", total.Dec())
	}
}

func TestOFT_SendFromSpendsAllowance(t *testing.T) {
	p := newOFTPair(t)
	ctx := context.Background()
	if err := p.a.Mint(owner, owner, uint256.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	fee := uint256.NewInt(1e18)

	if _, err := p.a.SendFrom(ctx, user1, owner, chainB, user1, uint256.NewInt(10), fee); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	if err := p.a.Approve(owner, user1, uint256.NewInt(10)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.a.SendFrom(ctx, user1, owner, chainB, user1, uint256.NewInt(10), fee); err != nil {
		t.Fatalf("SendFrom() failed: %v", err)
	}
	if got := p.a.Allowance(owner, user1); !got.IsZero() {
		t.Errorf("expected allowance spent, got %s", got.Dec())
	}
}

func TestOFT_SendFailureBurnsNothing(t *testing.T) {
	p := newOFTPair(t)
	ctx := context.Background()
	if err := p.a.Mint(owner, owner, uint256.NewInt(100)); err != nil {
		t.Fatal(err)
	}

	if _, err := p.a.SendFrom(ctx, owner, owner, chainB, user1, uint256.NewInt(10), uint256.NewInt(1)); !errors.Is(err, layerzero.ErrInsufficientFee) {
		t.Fatalf("expected ErrInsufficientFee, got %v", err)
	}
	if _, err := p.a.SendFrom(ctx, owner, owner, 10109, user1, uint256.NewInt(10), uint256.NewInt(1e18)); !errors.Is(err, ErrUnknownRemote) {
		t.Fatalf("expected ErrUnknownRemote, got %v", err)
	}
	if _, err := p.a.SendFrom(ctx, owner, owner, chainB, user1, uint256.NewInt(101), uint256.NewInt(1e18)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := p.a.BalanceOf(owner); !got.Eq(uint256.NewInt(100)) {
		t.Errorf("expected balance untouched, got %s", got.Dec())
	}
}

func TestOFT_RejectsZeroAmount(t *testing.T) {
	p := newOFTPair(t)
	ctx := context.Background()
	if err := p.a.Mint(owner, owner, uint256.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	fee := uint256.NewInt(1e18)

	if _, err := p.a.SendFrom(ctx, owner, owner, chainB, user1, uint256.NewInt(0), fee); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	// the rejected send consumed no nonce
	if _, err := p.a.SendFrom(ctx, owner, owner, chainB, user1, uint256.NewInt(10), fee); err != nil {
		t.Fatalf("SendFrom() failed: %v", err)
	}
	if pkt := p.next(t); pkt.Nonce != 1 {
		t.Errorf("expected first packet to carry nonce 1, got %d", pkt.Nonce)
	}

	data, err := payload.EncodeOFTSend(payload.OFTSend{To: user1, Amount: new(uint256.Int)})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.b.LzReceive(ctx, p.epB.Address(), chainA, oftA, 1, data); !errors.Is(err, ErrZeroAmount) {
		t.Errorf("expected ErrZeroAmount on receive, got %v", err)
	}
	if !p.b.TotalSupply().IsZero() {
		t.Errorf("expected nothing minted on B, got %s", p.b.TotalSupply().Dec())
	}
}

func TestOFT_LzReceiveRejectsUntrusted(t *testing.T) {
	p := newOFTPair(t)
	ctx := context.Background()

	if err := p.b.LzReceive(ctx, user1, chainA, oftA, 1, nil); !errors.Is(err, ErrUntrustedSource) {
		t.Errorf("expected ErrUntrustedSource for non-endpoint caller, got %v", err)
	}
	if err := p.b.LzReceive(ctx, p.epB.Address(), chainA, user1, 1, nil); !errors.Is(err, ErrUntrustedSource) {
		t.Errorf("expected ErrUntrustedSource for unknown remote, got %v", err)
	}
	if err := p.b.LzReceive(ctx, p.epB.Address(), 10109, oftA, 1, nil); !errors.Is(err, ErrUntrustedSource) {
		t.Errorf("expected ErrUntrustedSource for unknown chain, got %v", err)
	}
	if got := p.b.TotalSupply(); !got.IsZero() {
		t.Errorf("expected nothing minted, got %s", got.Dec())
	}
}

func TestOFT_SetTrustedRemoteOwnerOnly(t *testing.T) {
	p := newOFTPair(t)
	if err := p.a.SetTrustedRemote(user1, chainB, user1); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
	if remote, _ := p.a.TrustedRemote(chainB); remote != oftB {
		t.Errorf("remote changed to %s", remote.Hex())
	}
}
