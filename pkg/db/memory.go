package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chainsafe/rwa-bridge/pkg/bridge"
	"github.com/chainsafe/rwa-bridge/pkg/db/dao"
)

// MemoryStore keeps everything in process. It backs the service when no
// database is configured and is used in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	now       func() time.Time
	transfers map[string]*Transfer
	chains    map[string]*ChainState
	bridges   map[string]bridgeRows
}

type bridgeRows struct {
	state  *dao.BridgeStateDao
	tokens []dao.BridgeTokenDao
	routes []dao.BridgeRouteDao
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       func() time.Time { return time.Now().UTC() },
		transfers: make(map[string]*Transfer),
		chains:    make(map[string]*ChainState),
		bridges:   make(map[string]bridgeRows),
	}
}

func (s *MemoryStore) CreateTransfer(_ context.Context, transfer *Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transfers[transfer.ID]; ok {
		return fmt.Errorf("failed to create transfer: %s already exists", transfer.ID)
	}
	t := *transfer
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Amount = amountOrZero(t.Amount)
	s.transfers[t.ID] = &t
	return nil
}

func (s *MemoryStore) GetTransfer(_ context.Context, id string) (*Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transfers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) UpdateTransferStatus(_ context.Context, id string, status TransferStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok {
		return ErrNotFound
	}
	now := s.now()
	t.Status = status
	t.ErrorMessage = errMsg
	t.UpdatedAt = now
	if status == TransferStatusCompleted {
		t.CompletedAt = &now
	}
	return nil
}

func (s *MemoryStore) GetPendingTransfers(_ context.Context, path string) ([]*Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Transfer
	for _, t := range s.transfers {
		if t.Path == path && t.Status == TransferStatusPending {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListTransfers(_ context.Context, opts ...ListOption) ([]*Transfer, error) {
	options := listOptions(opts)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Transfer, 0, len(s.transfers))
	for _, t := range s.transfers {
		if options.Path != nil && t.Path != *options.Path {
			continue
		}
		if options.Status != nil && t.Status != *options.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SourceOffset > out[j].SourceOffset
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > options.Limit {
		out = out[:options.Limit]
	}
	return out, nil
}

func (s *MemoryStore) GetChainState(_ context.Context, path string) (*ChainState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.chains[path]
	if !ok {
		return nil, nil
	}
	cp := *state
	return &cp, nil
}

func (s *MemoryStore) SetChainState(_ context.Context, path, epoch string, offset uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[path] = &ChainState{Path: path, Epoch: epoch, Offset: offset, UpdatedAt: s.now()}
	return nil
}

// SaveBridgeState stores snap in the same row form the postgres store uses,
// so both round trip identically.
func (s *MemoryStore) SaveBridgeState(_ context.Context, snap bridge.Snapshot) error {
	state, tokens, routes := snapshotRows(snap)
	rows := bridgeRows{state: state}
	for _, t := range tokens {
		rows.tokens = append(rows.tokens, *t)
	}
	for _, r := range routes {
		rows.routes = append(rows.routes, *r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bridges[snap.ID] = rows
	return nil
}

func (s *MemoryStore) LoadBridgeState(_ context.Context, id string) (*bridge.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.bridges[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshotFromRows(rows.state, rows.tokens, rows.routes)
}
