package payload

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestEncodeTransfer_Layout(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	data, err := EncodeTransfer(Transfer{Token: token, Recipient: recipient, Amount: uint256.NewInt(7)})
	if err != nil {
		t.Fatalf("EncodeTransfer() failed: %v", err)
	}
	if len(data) != 96 {
		t.Fatalf("expected three 32-byte words, got %d bytes", len(data))
	}
	if common.BytesToAddress(data[12:32]) != token {
		t.Errorf("token word mismatch")
	}
	if data[95] != 7 {
		t.Errorf("amount word mismatch: %x", data[64:96])
	}

	decoded, err := DecodeTransfer(data)
	if err != nil {
		t.Fatalf("DecodeTransfer() failed: %v", err)
	}
	if decoded.Token != token || decoded.Recipient != recipient || !decoded.Amount.Eq(uint256.NewInt(7)) {
		t.Errorf("decoded mismatch: %+v", decoded)
	}
}

func TestDecodeTransfer_Malformed(t *testing.T) {
	for _, data := range [][]byte{nil, {0x01, 0x02}, make([]byte, 64)} {
		if _, err := DecodeTransfer(data); !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed for %d bytes, got %v", len(data), err)
		}
	}
}

func TestOFTSend_RoundTripMaxAmount(t *testing.T) {
	maxAmount := new(uint256.Int).SetAllOne()
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")

	data, err := EncodeOFTSend(OFTSend{To: to, Amount: maxAmount})
	if err != nil {
		t.Fatalf("EncodeOFTSend() failed: %v", err)
	}
	got, err := DecodeOFTSend(data)
	if err != nil {
		t.Fatalf("DecodeOFTSend() failed: %v", err)
	}
	if got.To != to || !got.Amount.Eq(maxAmount) {
		t.Errorf("decoded mismatch: %+v", got)
	}

	if _, err := DecodeOFTSend(data[:40]); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for truncated packet, got %v", err)
	}
}
