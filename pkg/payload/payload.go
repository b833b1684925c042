// Package payload encodes the cross-chain messages exchanged by paired bridges
// using the Solidity ABI, so a message is byte-identical to what an on-chain
// counterpart would produce with abi.encode.
package payload

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PacketTypeSend is the OFT packet type for a plain token send.
const PacketTypeSend uint16 = 0

var ErrMalformed = errors.New("malformed payload")

var (
	transferArgs abi.Arguments
	oftArgs      abi.Arguments
)

func init() {
	addressT := mustType("address")
	uint256T := mustType("uint256")

	transferArgs = abi.Arguments{
		{Name: "token", Type: addressT},
		{Name: "recipient", Type: addressT},
		{Name: "amount", Type: uint256T},
	}
	oftArgs = abi.Arguments{
		{Name: "packetType", Type: mustType("uint16")},
		{Name: "toAddress", Type: mustType("bytes")},
		{Name: "amount", Type: uint256T},
	}
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", name, err))
	}
	return t
}

// Transfer is the gateway message body: abi.encode(token, recipient, amount).
type Transfer struct {
	Token     common.Address
	Recipient common.Address
	Amount    *uint256.Int
}

func EncodeTransfer(t Transfer) ([]byte, error) {
	if t.Amount == nil {
		return nil, fmt.Errorf("%w: nil amount", ErrMalformed)
	}
	return transferArgs.Pack(t.Token, t.Recipient, t.Amount.ToBig())
}

func DecodeTransfer(data []byte) (Transfer, error) {
	values, err := transferArgs.Unpack(data)
	if err != nil {
		return Transfer{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(values) != 3 {
		return Transfer{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformed, len(values))
	}
	token, ok1 := values[0].(common.Address)
	recipient, ok2 := values[1].(common.Address)
	raw, ok3 := values[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return Transfer{}, fmt.Errorf("%w: unexpected field types", ErrMalformed)
	}
	amount, overflow := uint256.FromBig(raw)
	if overflow {
		return Transfer{}, fmt.Errorf("%w: amount overflows uint256", ErrMalformed)
	}
	return Transfer{Token: token, Recipient: recipient, Amount: amount}, nil
}

// OFTSend is the OFT packet: abi.encode(uint16 packetType, bytes toAddress, uint256 amount).
type OFTSend struct {
	To     common.Address
	Amount *uint256.Int
}

func EncodeOFTSend(s OFTSend) ([]byte, error) {
	if s.Amount == nil {
		return nil, fmt.Errorf("%w: nil amount", ErrMalformed)
	}
	return oftArgs.Pack(PacketTypeSend, s.To.Bytes(), s.Amount.ToBig())
}

func DecodeOFTSend(data []byte) (OFTSend, error) {
	values, err := oftArgs.Unpack(data)
	if err != nil {
		return OFTSend{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(values) != 3 {
		return OFTSend{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformed, len(values))
	}
	packetType, ok1 := values[0].(uint16)
	to, ok2 := values[1].([]byte)
	raw, ok3 := values[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return OFTSend{}, fmt.Errorf("%w: unexpected field types", ErrMalformed)
	}
	if packetType != PacketTypeSend {
		return OFTSend{}, fmt.Errorf("%w: unknown packet type %d", ErrMalformed, packetType)
	}
	if len(to) != common.AddressLength {
		return OFTSend{}, fmt.Errorf("%w: recipient is %d bytes", ErrMalformed, len(to))
	}
	amount, overflow := uint256.FromBig(raw)
	if overflow {
		return OFTSend{}, fmt.Errorf("%w: amount overflows uint256", ErrMalformed)
	}
	return OFTSend{To: common.BytesToAddress(to), Amount: amount}, nil
}
