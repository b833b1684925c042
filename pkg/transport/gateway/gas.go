package gateway

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// GasPayment records native gas prepaid for one contract call.
type GasPayment struct {
	Sender             common.Address
	DestinationChain   string
	DestinationAddress string
	PayloadHash        common.Hash
	RefundAddress      common.Address
	Amount             *uint256.Int
}

// GasService collects the native fee that pays for execution on the
// destination chain.
type GasService struct {
	mu        sync.Mutex
	payments  []GasPayment
	collected map[string]*uint256.Int
}

func NewGasService() *GasService {
	return &GasService{collected: make(map[string]*uint256.Int)}
}

// PayNativeGasForContractCall records a prepayment. A zero or missing fee is rejected.
func (s *GasService) PayNativeGasForContractCall(sender common.Address, destChain, destAddress string, data []byte, refund common.Address, fee *uint256.Int) error {
	if fee == nil || fee.IsZero() {
		return ErrInsufficientFee
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.payments = append(s.payments, GasPayment{
		Sender:             sender,
		DestinationChain:   destChain,
		DestinationAddress: destAddress,
		PayloadHash:        crypto.Keccak256Hash(data),
		RefundAddress:      refund,
		Amount:             fee.Clone(),
	})
	total, ok := s.collected[destChain]
	if !ok {
		total = new(uint256.Int)
	}
	s.collected[destChain] = new(uint256.Int).Add(total, fee)
	return nil
}

// Collected returns the total prepaid for calls to destChain.
func (s *GasService) Collected(destChain string) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if total, ok := s.collected[destChain]; ok {
		return total.Clone()
	}
	return new(uint256.Int)
}

func (s *GasService) Payments() []GasPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]GasPayment, len(s.payments))
	copy(out, s.payments)
	return out
}
