package bridge

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/rwa-bridge/internal/metrics"
	"github.com/chainsafe/rwa-bridge/pkg/registry"
	"github.com/chainsafe/rwa-bridge/pkg/routes"
)

// Route is a chain route in its persisted string form. OFT bridges store the
// decimal chain id and the hex counterpart address.
type Route struct {
	Chain       string
	Counterpart string
}

// Snapshot is the durable state of one bridge instance.
type Snapshot struct {
	ID     string
	Kind   Kind
	Owner  common.Address
	Paused bool
	// Tokens holds the limit records of source and OFT bridges.
	Tokens []registry.TokenLimits
	// Supported holds the token set of destination bridges.
	Supported []common.Address
	Routes    []Route
}

// Instance is the surface shared by every bridge variant.
type Instance interface {
	Authorizer
	ID() string
	Kind() Kind
	Address() common.Address
	Owner() Principal
	Paused() bool
	Pause(caller Principal) error
	Unpause(caller Principal) error
	TransferOwnership(caller, newOwner Principal) error
	Events() []Event
	Snapshot() Snapshot
	Restore(s Snapshot) error
}

var (
	_ Instance = (*SourceBridge)(nil)
	_ Instance = (*DestinationBridge)(nil)
	_ Instance = (*OFTBridge)(nil)
)

// Authorize checks caller against the current owner.
func (b *base) Authorize(caller Principal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.guard.Authorize(caller)
}

// snapshot fills the shared fields. The caller holds mu.
func (b *base) snapshot() Snapshot {
	return Snapshot{
		ID:     b.id,
		Kind:   b.kind,
		Owner:  b.control.Owner(),
		Paused: b.control.Paused(),
	}
}

// checkSnapshot validates the shared fields before anything is replaced.
func (b *base) checkSnapshot(s Snapshot) (*Control, error) {
	if s.Kind != b.kind {
		return nil, fmt.Errorf("%w: %s into %s", ErrKindMismatch, s.Kind, b.kind)
	}
	if s.ID != b.id {
		return nil, fmt.Errorf("snapshot of %s restored into %s", s.ID, b.id)
	}
	control, err := NewControl(s.Owner)
	if err != nil {
		return nil, err
	}
	control.paused = s.Paused
	return control, nil
}

// install swaps in a restored control. The caller holds mu.
func (b *base) install(control *Control) {
	b.control = control
	b.guard = control
	gauge := 0.0
	if control.paused {
		gauge = 1
	}
	metrics.Paused.WithLabelValues(b.id).Set(gauge)
}

func stringRoutes(entries []routes.Entry[string, string]) []Route {
	out := make([]Route, len(entries))
	for i, e := range entries {
		out[i] = Route{Chain: e.Chain, Counterpart: e.Counterpart}
	}
	return out
}

func stringEntries(rs []Route) []routes.Entry[string, string] {
	out := make([]routes.Entry[string, string], len(rs))
	for i, r := range rs {
		out[i] = routes.Entry[string, string]{Chain: r.Chain, Counterpart: r.Counterpart}
	}
	return out
}

func (s *SourceBridge) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	snap.Tokens = s.registry.Snapshot()
	snap.Routes = stringRoutes(s.routes.Entries())
	return snap
}

// Restore replaces the bridge state with snap. On error nothing changes.
func (s *SourceBridge) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	control, err := s.checkSnapshot(snap)
	if err != nil {
		return err
	}
	table := routes.New[string, string]()
	if err := table.Restore(stringEntries(snap.Routes)); err != nil {
		return err
	}
	if err := s.registry.Restore(snap.Tokens); err != nil {
		return err
	}
	s.routes = table
	s.install(control)
	return nil
}

func (d *DestinationBridge) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := d.snapshot()
	snap.Supported = d.supported.Tokens()
	snap.Routes = stringRoutes(d.routes.Entries())
	return snap
}

func (d *DestinationBridge) Restore(snap Snapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	control, err := d.checkSnapshot(snap)
	if err != nil {
		return err
	}
	set := registry.NewTokenSet()
	if err := set.Restore(snap.Supported); err != nil {
		return err
	}
	table := routes.New[string, string]()
	if err := table.Restore(stringEntries(snap.Routes)); err != nil {
		return err
	}
	d.supported = set
	d.routes = table
	d.install(control)
	return nil
}

func (b *OFTBridge) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := b.snapshot()
	snap.Tokens = b.registry.Snapshot()
	for _, e := range b.routes.Entries() {
		snap.Routes = append(snap.Routes, Route{
			Chain:       strconv.FormatUint(uint64(e.Chain), 10),
			Counterpart: e.Counterpart.Hex(),
		})
	}
	return snap
}

func (b *OFTBridge) Restore(snap Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	control, err := b.checkSnapshot(snap)
	if err != nil {
		return err
	}
	entries := make([]routes.Entry[uint16, common.Address], 0, len(snap.Routes))
	for _, r := range snap.Routes {
		id, err := strconv.ParseUint(r.Chain, 10, 16)
		if err != nil {
			return fmt.Errorf("route chain %q: %w", r.Chain, err)
		}
		if !common.IsHexAddress(r.Counterpart) {
			return fmt.Errorf("route %s: invalid counterpart %q", r.Chain, r.Counterpart)
		}
		entries = append(entries, routes.Entry[uint16, common.Address]{
			Chain:       uint16(id),
			Counterpart: common.HexToAddress(r.Counterpart),
		})
	}
	table := routes.New[uint16, common.Address]()
	if err := table.Restore(entries); err != nil {
		return err
	}
	if err := b.registry.Restore(snap.Tokens); err != nil {
		return err
	}
	b.routes = table
	b.install(control)
	return nil
}
