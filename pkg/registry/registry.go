// Package registry keeps the per-token eligibility records of a bridge instance:
// which tokens may move, how much per transfer and how much per daily window.
//
// A Registry is not safe for concurrent use. The bridge that owns it serializes
// every call behind its own lock so that a check and the following reservation
// are indivisible.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrUnsupportedToken      = errors.New("token not supported")
	ErrTokenAlreadySupported = errors.New("token already supported")
	ErrZeroAmount            = errors.New("amount must be greater than zero")
	ErrZeroAddress           = errors.New("zero address")
	ErrExceedsMaxTransfer    = errors.New("amount exceeds max transfer size")
	ErrDailyLimitExceeded    = errors.New("daily limit exceeded")
	ErrInvalidLimit          = errors.New("limit must be greater than zero")
)

// DefaultWindow is the length of a rolling daily window.
const DefaultWindow = 24 * time.Hour

// WindowMode selects how the daily window is computed.
type WindowMode int

const (
	// WindowRolling is a fixed-length window anchored at the first reservation
	// made after the previous window expired.
	WindowRolling WindowMode = iota
	// WindowCalendarDay buckets usage by UTC calendar day.
	WindowCalendarDay
)

func (m WindowMode) String() string {
	switch m {
	case WindowCalendarDay:
		return "calendar"
	default:
		return "rolling"
	}
}

// ParseWindowMode maps a config value to a WindowMode. The empty string is rolling.
func ParseWindowMode(s string) (WindowMode, error) {
	switch s {
	case "", "rolling":
		return WindowRolling, nil
	case "calendar":
		return WindowCalendarDay, nil
	default:
		return WindowRolling, fmt.Errorf("unknown window mode %q", s)
	}
}

// TokenLimits is the eligibility record of one token.
type TokenLimits struct {
	Token           common.Address
	MaxTransferSize *uint256.Int
	DailyLimit      *uint256.Int
	DailyUsed       *uint256.Int
	WindowStart     time.Time
}

func (l *TokenLimits) clone() TokenLimits {
	return TokenLimits{
		Token:           l.Token,
		MaxTransferSize: l.MaxTransferSize.Clone(),
		DailyLimit:      l.DailyLimit.Clone(),
		DailyUsed:       l.DailyUsed.Clone(),
		WindowStart:     l.WindowStart,
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithWindowMode sets how the daily window is computed.
func WithWindowMode(m WindowMode) Option {
	return func(r *Registry) { r.mode = m }
}

// WithWindow sets the length of a rolling window. Ignored in calendar mode.
func WithWindow(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.window = d
		}
	}
}

// Registry maps token addresses to their limits and daily usage.
type Registry struct {
	mode   WindowMode
	window time.Duration
	tokens map[common.Address]*TokenLimits
}

// New creates an empty registry. The default window is a 24h rolling window.
func New(opts ...Option) *Registry {
	r := &Registry{
		mode:   WindowRolling,
		window: DefaultWindow,
		tokens: make(map[common.Address]*TokenLimits),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the configured window mode.
func (r *Registry) Mode() WindowMode {
	return r.mode
}

func (r *Registry) IsSupported(token common.Address) bool {
	_, ok := r.tokens[token]
	return ok
}

// Check validates a transfer of amount against the token's limits at now
// without reserving anything.
func (r *Registry) Check(token common.Address, amount *uint256.Int, now time.Time) error {
	_, _, _, err := r.check(token, amount, now)
	return err
}

// CheckAndReserve validates a transfer and, on success, adds amount to the
// token's daily usage. On error nothing changes.
func (r *Registry) CheckAndReserve(token common.Address, amount *uint256.Int, now time.Time) error {
	rec, total, start, err := r.check(token, amount, now)
	if err != nil {
		return err
	}
	rec.DailyUsed = total
	rec.WindowStart = start
	return nil
}

// Release gives back a reservation made in the same window. It is the
// compensation step when a later part of an outbound transfer fails.
func (r *Registry) Release(token common.Address, amount *uint256.Int) {
	rec, ok := r.tokens[token]
	if !ok || amount == nil {
		return
	}
	if rec.DailyUsed.Lt(amount) {
		rec.DailyUsed = new(uint256.Int)
		return
	}
	rec.DailyUsed = new(uint256.Int).Sub(rec.DailyUsed, amount)
}

func (r *Registry) check(token common.Address, amount *uint256.Int, now time.Time) (*TokenLimits, *uint256.Int, time.Time, error) {
	rec, ok := r.tokens[token]
	if !ok {
		return nil, nil, time.Time{}, fmt.Errorf("%w: %s", ErrUnsupportedToken, token.Hex())
	}
	if amount == nil || amount.IsZero() {
		return nil, nil, time.Time{}, ErrZeroAmount
	}
	if amount.Gt(rec.MaxTransferSize) {
		return nil, nil, time.Time{}, fmt.Errorf("%w: %s > %s", ErrExceedsMaxTransfer, amount.Dec(), rec.MaxTransferSize.Dec())
	}

	used, start := r.current(rec, now)
	total, overflow := new(uint256.Int).AddOverflow(used, amount)
	if overflow || total.Gt(rec.DailyLimit) {
		return nil, nil, time.Time{}, fmt.Errorf("%w: used %s, limit %s", ErrDailyLimitExceeded, used.Dec(), rec.DailyLimit.Dec())
	}
	return rec, total, start, nil
}

// current returns the usage and window start that apply at now. A clock that
// moves backwards stays in the recorded window.
func (r *Registry) current(rec *TokenLimits, now time.Time) (*uint256.Int, time.Time) {
	switch r.mode {
	case WindowCalendarDay:
		day := now.UTC().Truncate(24 * time.Hour)
		if rec.WindowStart.IsZero() || day.After(rec.WindowStart) {
			return new(uint256.Int), day
		}
	default:
		if rec.WindowStart.IsZero() || !now.Before(rec.WindowStart.Add(r.window)) {
			return new(uint256.Int), now
		}
	}
	return rec.DailyUsed, rec.WindowStart
}

// Remaining returns how much of the daily limit is still available at now.
func (r *Registry) Remaining(token common.Address, now time.Time) (*uint256.Int, error) {
	rec, ok := r.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, token.Hex())
	}
	used, _ := r.current(rec, now)
	if used.Gt(rec.DailyLimit) {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(rec.DailyLimit, used), nil
}

// Add registers a token with nonzero limits.
func (r *Registry) Add(token common.Address, maxTransferSize, dailyLimit *uint256.Int) error {
	if token == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, ok := r.tokens[token]; ok {
		return fmt.Errorf("%w: %s", ErrTokenAlreadySupported, token.Hex())
	}
	if !positive(maxTransferSize) || !positive(dailyLimit) {
		return ErrInvalidLimit
	}
	r.tokens[token] = &TokenLimits{
		Token:           token,
		MaxTransferSize: maxTransferSize.Clone(),
		DailyLimit:      dailyLimit.Clone(),
		DailyUsed:       new(uint256.Int),
	}
	return nil
}

// Remove deletes the token record. Usage counters go with it, so a token that
// is added again starts a fresh window.
func (r *Registry) Remove(token common.Address) error {
	if _, ok := r.tokens[token]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, token.Hex())
	}
	delete(r.tokens, token)
	return nil
}

func (r *Registry) UpdateMaxTransferSize(token common.Address, size *uint256.Int) error {
	rec, ok := r.tokens[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, token.Hex())
	}
	if !positive(size) {
		return ErrInvalidLimit
	}
	rec.MaxTransferSize = size.Clone()
	return nil
}

// UpdateDailyLimit replaces the daily limit. A limit below current usage is
// accepted; reservations fail until the window resets.
func (r *Registry) UpdateDailyLimit(token common.Address, limit *uint256.Int) error {
	rec, ok := r.tokens[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, token.Hex())
	}
	if !positive(limit) {
		return ErrInvalidLimit
	}
	rec.DailyLimit = limit.Clone()
	return nil
}

// Limits returns a copy of the token's record.
func (r *Registry) Limits(token common.Address) (TokenLimits, bool) {
	rec, ok := r.tokens[token]
	if !ok {
		return TokenLimits{}, false
	}
	return rec.clone(), true
}

// Tokens returns the supported tokens in address order.
func (r *Registry) Tokens() []common.Address {
	out := make([]common.Address, 0, len(r.tokens))
	for token := range r.tokens {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Snapshot copies every record in address order.
func (r *Registry) Snapshot() []TokenLimits {
	out := make([]TokenLimits, 0, len(r.tokens))
	for _, token := range r.Tokens() {
		out = append(out, r.tokens[token].clone())
	}
	return out
}

// Restore replaces the registry contents with records. It validates the same
// invariants as Add and leaves the registry untouched on error.
func (r *Registry) Restore(records []TokenLimits) error {
	tokens := make(map[common.Address]*TokenLimits, len(records))
	for i := range records {
		rec := records[i]
		if rec.Token == (common.Address{}) {
			return ErrZeroAddress
		}
		if _, ok := tokens[rec.Token]; ok {
			return fmt.Errorf("%w: %s", ErrTokenAlreadySupported, rec.Token.Hex())
		}
		if !positive(rec.MaxTransferSize) || !positive(rec.DailyLimit) {
			return fmt.Errorf("%w: %s", ErrInvalidLimit, rec.Token.Hex())
		}
		used := new(uint256.Int)
		if rec.DailyUsed != nil {
			used = rec.DailyUsed.Clone()
		}
		tokens[rec.Token] = &TokenLimits{
			Token:           rec.Token,
			MaxTransferSize: rec.MaxTransferSize.Clone(),
			DailyLimit:      rec.DailyLimit.Clone(),
			DailyUsed:       used,
			WindowStart:     rec.WindowStart,
		}
	}
	r.tokens = tokens
	return nil
}

func positive(v *uint256.Int) bool {
	return v != nil && !v.IsZero()
}
