package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/internal/metrics"
)

// base holds what every bridge variant shares: identity, control and the
// event log. mu is the single lock of the instance; every state read or
// mutation of the embedding bridge happens under it.
type base struct {
	id      string
	kind    Kind
	address common.Address
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	control   *Control
	guard     Authorizer
	events    []Event
	retention int
}

func newBase(kind Kind, ident Identity, o *options) (*base, error) {
	if ident.ID == "" {
		return nil, errors.New("bridge id is required")
	}
	if ident.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: bridge address", ErrZeroAddress)
	}
	control, err := NewControl(ident.Owner)
	if err != nil {
		return nil, err
	}
	metrics.Paused.WithLabelValues(ident.ID).Set(0)
	return &base{
		id:        ident.ID,
		kind:      kind,
		address:   ident.Address,
		logger:    o.logger.With(zap.String("bridge", ident.ID), zap.String("kind", string(kind))),
		now:       o.now,
		control:   control,
		guard:     control,
		retention: o.eventRetention,
	}, nil
}

func (b *base) ID() string { return b.id }

func (b *base) Kind() Kind { return b.kind }

// Address is the bridge's own account.
func (b *base) Address() common.Address { return b.address }

func (b *base) Owner() Principal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.control.Owner()
}

func (b *base) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.control.Paused()
}

func (b *base) Pause(caller Principal) error {
	return b.setPaused(caller, true)
}

func (b *base) Unpause(caller Principal) error {
	return b.setPaused(caller, false)
}

func (b *base) setPaused(caller Principal, paused bool) error {
	op, evt := "unpause", EventUnpaused
	if paused {
		op, evt = "pause", EventPaused
	}
	return b.admin(caller, op, func() error {
		if err := b.control.SetPaused(caller, paused); err != nil {
			return err
		}
		gauge := 0.0
		if paused {
			gauge = 1
		}
		metrics.Paused.WithLabelValues(b.id).Set(gauge)
		b.emit(Event{Type: evt, Sender: caller})
		return nil
	})
}

func (b *base) TransferOwnership(caller, newOwner Principal) error {
	return b.admin(caller, "transfer_ownership", func() error {
		if err := b.control.TransferOwnership(caller, newOwner); err != nil {
			return err
		}
		b.emit(Event{Type: EventOwnershipTransferred, Sender: caller, Recipient: newOwner})
		return nil
	})
}

// Events returns a copy of the retained event log, oldest first.
func (b *base) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// admin runs fn under the instance lock once caller is authorized.
func (b *base) admin(caller Principal, op string, fn func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.guard.Authorize(caller); err != nil {
		b.logger.Warn("Unauthorized admin call", zap.String("op", op), zap.String("caller", caller.Hex()))
		metrics.RejectionsTotal.WithLabelValues(b.id, reason(err)).Inc()
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	metrics.AdminOpsTotal.WithLabelValues(b.id, op).Inc()
	b.logger.Info("Admin operation", zap.String("op", op), zap.String("caller", caller.Hex()))
	return nil
}

// emit appends e to the log. The caller holds mu.
func (b *base) emit(e Event) Event {
	e.ID = uuid.New()
	e.Bridge = b.id
	e.Timestamp = b.now()
	if e.Amount != nil {
		e.Amount = e.Amount.Clone()
	}
	b.events = append(b.events, e)
	if over := len(b.events) - b.retention; over > 0 {
		b.events = append(b.events[:0:0], b.events[over:]...)
	}
	return e
}

// reject counts and logs a refused value-moving call.
func (b *base) reject(op string, err error, fields ...zap.Field) error {
	metrics.RejectionsTotal.WithLabelValues(b.id, reason(err)).Inc()
	b.logger.Debug("Transfer rejected", append(fields, zap.String("op", op), zap.Error(err))...)
	return err
}

// rescue sweeps the bridge's whole balance of tok to the owner. The caller
// holds mu and has authorized the owner.
func (b *base) rescue(tok interface {
	BalanceOf(common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
}, tokenAddr common.Address) (*uint256.Int, error) {
	balance := tok.BalanceOf(b.address)
	if balance.IsZero() {
		return balance, nil
	}
	owner := b.control.Owner()
	if err := tok.Transfer(b.address, owner, balance); err != nil {
		return nil, err
	}
	b.emit(Event{Type: EventTokensRescued, Token: tokenAddr, Recipient: owner, Amount: balance})
	b.logger.Info("Tokens rescued",
		zap.String("token", tokenAddr.Hex()),
		zap.String("amount", balance.Dec()))
	return balance, nil
}
