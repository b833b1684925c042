package bridge

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/pkg/registry"
)

// Kind is the bridge variant.
type Kind string

const (
	KindSource      Kind = "source"
	KindDestination Kind = "destination"
	KindOFT         Kind = "oft"
)

// Mode is how a bridge takes custody of tokens. Source bridges lock or burn,
// destination bridges mint or unlock.
type Mode string

const (
	ModeLock   Mode = "lock"
	ModeBurn   Mode = "burn"
	ModeMint   Mode = "mint"
	ModeUnlock Mode = "unlock"
)

// ParseMode maps a config value to a Mode. The empty string selects the
// default of the bridge kind.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "", ModeLock, ModeBurn, ModeMint, ModeUnlock:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// InboundPolicy decides what a destination bridge does with a message that
// fails validation.
type InboundPolicy string

const (
	// PolicyRevert returns the error to the transport, leaving the message
	// undelivered.
	PolicyRevert InboundPolicy = "revert"
	// PolicyIgnore records a TransferRejected event and reports success so the
	// delivery pipeline moves on. Nothing is credited.
	PolicyIgnore InboundPolicy = "ignore"
)

func ParseInboundPolicy(s string) (InboundPolicy, error) {
	switch p := InboundPolicy(s); p {
	case "", PolicyRevert:
		return PolicyRevert, nil
	case PolicyIgnore:
		return p, nil
	default:
		return "", fmt.Errorf("unknown inbound policy %q", s)
	}
}

// Identity names a bridge instance and its accounts.
type Identity struct {
	// ID keys the instance in storage and metrics.
	ID string
	// Address is the bridge's own account on its chain.
	Address common.Address
	Owner   Principal
}

// InitialToken seeds a supported token at construction. Destination bridges
// only use Token.
type InitialToken struct {
	Token           common.Address
	MaxTransferSize *uint256.Int
	DailyLimit      *uint256.Int
}

// SeedTokens zips the parallel deploy lists into InitialTokens.
func SeedTokens(tokens []common.Address, maxTransferSizes, dailyLimits []*uint256.Int) ([]InitialToken, error) {
	if len(tokens) != len(maxTransferSizes) || len(tokens) != len(dailyLimits) {
		return nil, fmt.Errorf("%w: %d tokens, %d max transfer sizes, %d daily limits",
			ErrInvalidLimit, len(tokens), len(maxTransferSizes), len(dailyLimits))
	}
	out := make([]InitialToken, len(tokens))
	for i := range tokens {
		out[i] = InitialToken{Token: tokens[i], MaxTransferSize: maxTransferSizes[i], DailyLimit: dailyLimits[i]}
	}
	return out, nil
}

const defaultEventRetention = 10_000

type options struct {
	logger         *zap.Logger
	now            func() time.Time
	registryOpts   []registry.Option
	mode           Mode
	policy         InboundPolicy
	tokens         []InitialToken
	eventRetention int
}

func defaultOptions() *options {
	return &options{
		logger:         zap.NewNop(),
		now:            time.Now,
		policy:         PolicyRevert,
		eventRetention: defaultEventRetention,
	}
}

// Option configures a bridge.
type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the time source of the daily window and of events.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithRegistryOptions(opts ...registry.Option) Option {
	return func(o *options) { o.registryOpts = append(o.registryOpts, opts...) }
}

func WithMode(m Mode) Option {
	return func(o *options) { o.mode = m }
}

func WithInboundPolicy(p InboundPolicy) Option {
	return func(o *options) {
		if p != "" {
			o.policy = p
		}
	}
}

func WithSupportedTokens(tokens ...InitialToken) Option {
	return func(o *options) { o.tokens = append(o.tokens, tokens...) }
}

// WithEventRetention caps the in-memory event log. Older events are dropped first.
func WithEventRetention(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventRetention = n
		}
	}
}
