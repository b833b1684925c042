package bridge

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/chainsafe/rwa-bridge/internal/metrics"
	"github.com/chainsafe/rwa-bridge/pkg/registry"
)

// wholeTokens scales a base-unit amount down by decimals for gauges.
func wholeTokens(amount *uint256.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).InexactFloat64()
}

func (b *base) observeTransfer(direction string, token common.Address, amount *uint256.Int, decimals uint8) {
	metrics.TransfersTotal.WithLabelValues(direction, "completed").Inc()
	metrics.TransferAmount.WithLabelValues(direction, token.Hex()).Observe(wholeTokens(amount, decimals))
}

func (b *base) observeDailyUsed(limits registry.TokenLimits, decimals uint8) {
	metrics.DailyUsed.WithLabelValues(b.id, limits.Token.Hex()).Set(wholeTokens(limits.DailyUsed, decimals))
}
