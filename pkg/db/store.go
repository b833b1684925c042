package db

import (
	"context"

	"github.com/chainsafe/rwa-bridge/pkg/bridge"
)

// TransferStore persists relayed messages and the read offset of each path.
type TransferStore interface {
	CreateTransfer(ctx context.Context, transfer *Transfer) error
	GetTransfer(ctx context.Context, id string) (*Transfer, error)
	UpdateTransferStatus(ctx context.Context, id string, status TransferStatus, errMsg *string) error
	GetPendingTransfers(ctx context.Context, path string) ([]*Transfer, error)
	ListTransfers(ctx context.Context, opts ...ListOption) ([]*Transfer, error)
	GetChainState(ctx context.Context, path string) (*ChainState, error)
	SetChainState(ctx context.Context, path, epoch string, offset uint64) error
}

// BridgeStateStore checkpoints bridge snapshots.
type BridgeStateStore interface {
	SaveBridgeState(ctx context.Context, snap bridge.Snapshot) error
	LoadBridgeState(ctx context.Context, id string) (*bridge.Snapshot, error)
}

// Store defines all persistence operations of the bridge service
type Store interface {
	TransferStore
	BridgeStateStore
}

// ListOptions filters ListTransfers
type ListOptions struct {
	Path   *string
	Status *TransferStatus
	Limit  int
}

// ListOption is a functional option for listing transfers
type ListOption func(*ListOptions)

// WithPath only returns transfers relayed on path
func WithPath(path string) ListOption {
	return func(opts *ListOptions) {
		opts.Path = &path
	}
}

// WithStatus only returns transfers in status
func WithStatus(status TransferStatus) ListOption {
	return func(opts *ListOptions) {
		opts.Status = &status
	}
}

// WithLimit caps the number of transfers returned
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

const defaultListLimit = 100

func listOptions(opts []ListOption) *ListOptions {
	options := &ListOptions{Limit: defaultListLimit}
	for _, opt := range opts {
		opt(options)
	}
	if options.Limit <= 0 {
		options.Limit = defaultListLimit
	}
	return options
}
