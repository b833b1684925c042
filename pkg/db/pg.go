package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/rwa-bridge/pkg/bridge"
	"github.com/chainsafe/rwa-bridge/pkg/db/dao"
)

// PGStore is the postgres implementation of Store
type PGStore struct {
	db *bun.DB
}

var _ Store = (*PGStore)(nil)

// NewStore creates a new postgres store
func NewStore(db *bun.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateTransfer(ctx context.Context, transfer *Transfer) error {
	_, err := s.db.NewInsert().
		Model(toTransferDao(transfer)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}
	return nil
}

func (s *PGStore) GetTransfer(ctx context.Context, id string) (*Transfer, error) {
	d := new(dao.TransferDao)
	err := s.db.NewSelect().
		Model(d).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return toTransfer(d), nil
}

func (s *PGStore) UpdateTransferStatus(ctx context.Context, id string, status TransferStatus, errMsg *string) error {
	q := s.db.NewUpdate().
		Model((*dao.TransferDao)(nil)).
		Set("status = ?", string(status)).
		Set("error_message = ?", errMsg).
		Set("updated_at = NOW()").
		Where("id = ?", id)
	if status == TransferStatusCompleted {
		q = q.Set("completed_at = NOW()")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update transfer status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) GetPendingTransfers(ctx context.Context, path string) ([]*Transfer, error) {
	var daos []dao.TransferDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("path = ?", path).
		Where("status = ?", string(TransferStatusPending)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transfers: %w", err)
	}
	return toTransfers(daos), nil
}

func (s *PGStore) ListTransfers(ctx context.Context, opts ...ListOption) ([]*Transfer, error) {
	options := listOptions(opts)

	var daos []dao.TransferDao
	q := s.db.NewSelect().Model(&daos)
	if options.Path != nil {
		q = q.Where("path = ?", *options.Path)
	}
	if options.Status != nil {
		q = q.Where("status = ?", string(*options.Status))
	}
	err := q.Order("created_at DESC").
		Limit(options.Limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	return toTransfers(daos), nil
}

func toTransfers(daos []dao.TransferDao) []*Transfer {
	out := make([]*Transfer, len(daos))
	for i := range daos {
		out[i] = toTransfer(&daos[i])
	}
	return out
}

// GetChainState returns nil when the path has no stored offset yet.
func (s *PGStore) GetChainState(ctx context.Context, path string) (*ChainState, error) {
	d := new(dao.ChainStateDao)
	err := s.db.NewSelect().
		Model(d).
		Where("path = ?", path).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get chain state: %w", err)
	}
	return &ChainState{Path: d.Path, Epoch: d.Epoch, Offset: uint64(d.Offset), UpdatedAt: d.UpdatedAt}, nil
}

func (s *PGStore) SetChainState(ctx context.Context, path, epoch string, offset uint64) error {
	_, err := s.db.NewInsert().
		Model(&dao.ChainStateDao{Path: path, Epoch: epoch, Offset: int64(offset), UpdatedAt: time.Now().UTC()}).
		On("CONFLICT (path) DO UPDATE").
		Set("epoch = EXCLUDED.epoch").
		Set("last_offset = EXCLUDED.last_offset").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set chain state: %w", err)
	}
	return nil
}

// SaveBridgeState replaces the stored state of snap.ID in one transaction.
func (s *PGStore) SaveBridgeState(ctx context.Context, snap bridge.Snapshot) error {
	state, tokens, routes := snapshotRows(snap)

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(state).
			On("CONFLICT (id) DO UPDATE").
			Set("kind = EXCLUDED.kind").
			Set("owner = EXCLUDED.owner").
			Set("paused = EXCLUDED.paused").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to save bridge state: %w", err)
		}

		if _, err := tx.NewDelete().
			Model((*dao.BridgeTokenDao)(nil)).
			Where("bridge_id = ?", snap.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear bridge tokens: %w", err)
		}
		if len(tokens) > 0 {
			if _, err := tx.NewInsert().Model(&tokens).Exec(ctx); err != nil {
				return fmt.Errorf("failed to save bridge tokens: %w", err)
			}
		}

		if _, err := tx.NewDelete().
			Model((*dao.BridgeRouteDao)(nil)).
			Where("bridge_id = ?", snap.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear bridge routes: %w", err)
		}
		if len(routes) > 0 {
			if _, err := tx.NewInsert().Model(&routes).Exec(ctx); err != nil {
				return fmt.Errorf("failed to save bridge routes: %w", err)
			}
		}
		return nil
	})
}

func (s *PGStore) LoadBridgeState(ctx context.Context, id string) (*bridge.Snapshot, error) {
	state := new(dao.BridgeStateDao)
	err := s.db.NewSelect().
		Model(state).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load bridge state: %w", err)
	}

	var tokens []dao.BridgeTokenDao
	if err := s.db.NewSelect().
		Model(&tokens).
		Where("bridge_id = ?", id).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load bridge tokens: %w", err)
	}

	var routes []dao.BridgeRouteDao
	if err := s.db.NewSelect().
		Model(&routes).
		Where("bridge_id = ?", id).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load bridge routes: %w", err)
	}

	return snapshotFromRows(state, tokens, routes)
}
