package bridge

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is the token contract a gateway bridge moves. Calls are made with the
// bridge's own address as caller or spender.
type Token interface {
	BalanceOf(account common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	ReverseTransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	Mint(caller, to common.Address, amount *uint256.Int) error
	Burn(caller common.Address, amount *uint256.Int) error
}

// TokenResolver finds the contract behind a token address.
type TokenResolver interface {
	Token(addr common.Address) (Token, bool)
}

// StaticTokens resolves from a fixed map.
type StaticTokens map[common.Address]Token

func (s StaticTokens) Token(addr common.Address) (Token, bool) {
	t, ok := s[addr]
	return t, ok
}

// OFTToken is an omnichain token that burns on send and mints on receipt.
type OFTToken interface {
	BalanceOf(account common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	EstimateSendFee(dstChainID uint16, to common.Address, amount *uint256.Int, useZro bool, adapterParams []byte) (*uint256.Int, *uint256.Int, error)
	SendFrom(ctx context.Context, spender, from common.Address, dstChainID uint16, to common.Address, amount, fee *uint256.Int) (common.Hash, error)
}

type OFTResolver interface {
	OFT(addr common.Address) (OFTToken, bool)
}

// StaticOFTs resolves from a fixed map.
type StaticOFTs map[common.Address]OFTToken

func (s StaticOFTs) OFT(addr common.Address) (OFTToken, bool) {
	t, ok := s[addr]
	return t, ok
}

// decimals reports the token's decimals when it exposes them.
func decimals(tok any) uint8 {
	if d, ok := tok.(interface{ Decimals() uint8 }); ok {
		return d.Decimals()
	}
	return 18
}
