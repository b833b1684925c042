package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/internal/metrics"
	"github.com/chainsafe/rwa-bridge/pkg/db"
)

var (
	ErrUnknownPath      = errors.New("no relay path for transfer")
	ErrAlreadyCompleted = errors.New("transfer already completed")
)

// Path pairs the source and destination of one relay direction
type Path struct {
	Source      Source
	Destination Destination
}

func (p Path) Name() string {
	return PathName(p.Source.GetChainID(), p.Destination.GetChainID())
}

// Option configures an Engine
type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithDeduper(d Deduper) Option {
	return func(e *Engine) { e.dedup = d }
}

// WithProcessorOptions applies opts to every path processor
func WithProcessorOptions(opts ...ProcessorOption) Option {
	return func(e *Engine) { e.procOpts = append(e.procOpts, opts...) }
}

// WithReconcileInterval sets how often pending and failed transfers are counted
func WithReconcileInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.reconcileInterval = d
		}
	}
}

// Engine runs one processor per relay path
type Engine struct {
	paths             []Path
	store             BridgeStore
	dedup             Deduper
	logger            *zap.Logger
	reconcileInterval time.Duration
	procOpts          []ProcessorOption

	destinations map[string]Path
	ready        atomic.Bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine creates a new relayer engine
func NewEngine(store BridgeStore, paths []Path, opts ...Option) (*Engine, error) {
	e := &Engine{
		paths:             paths,
		store:             store,
		logger:            zap.NewNop(),
		reconcileInterval: 5 * time.Minute,
		destinations:      make(map[string]Path, len(paths)),
		stopCh:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dedup == nil {
		e.dedup = NewStoreDeduper(store)
	}
	for _, p := range paths {
		name := p.Name()
		if _, ok := e.destinations[name]; ok {
			return nil, fmt.Errorf("duplicate relay path %s", name)
		}
		e.destinations[name] = p
	}
	return e, nil
}

// Start starts one processor per path from its stored offset
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("Starting relayer engine", zap.Int("paths", len(e.paths)))

	offsets, err := e.loadOffsets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load offsets: %w", err)
	}

	for i, p := range e.paths {
		processor := NewProcessor(p.Source, p.Destination, e.store, e.dedup, e.logger, e.procOpts...)
		offset := offsets[i]

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := processor.Start(ctx, offset); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error("Processor failed", zap.String("path", processor.Path()), zap.Error(err))
			}
		}()
	}

	e.wg.Add(1)
	go e.reconcile(ctx)

	e.ready.Store(true)
	e.logger.Info("Relayer engine started")
	return nil
}

// IsReady reports whether the processors are running
func (e *Engine) IsReady() bool {
	return e.ready.Load()
}

// Paths returns the names of the relay paths
func (e *Engine) Paths() []string {
	names := make([]string, len(e.paths))
	for i, p := range e.paths {
		names[i] = p.Name()
	}
	return names
}

// Stop stops the periodic reconciliation and waits for every processor.
// Processors stop when the context passed to Start is done.
func (e *Engine) Stop() {
	e.logger.Info("Stopping relayer engine")
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
	e.ready.Store(false)
	e.logger.Info("Relayer engine stopped")
}

// loadOffsets loads last processed offsets from database. An offset stored
// under another epoch belongs to a stream that no longer exists, so that path
// starts from the beginning of the current one.
func (e *Engine) loadOffsets(ctx context.Context) ([]uint64, error) {
	offsets := make([]uint64, len(e.paths))
	for i, p := range e.paths {
		name := p.Name()
		state, err := e.store.GetChainState(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get state of %s: %w", name, err)
		}
		switch {
		case state == nil:
			e.logger.Info("Starting stream from beginning", zap.String("path", name))
		case state.Epoch != p.Source.Epoch():
			e.logger.Warn("Source stream restarted, starting from beginning",
				zap.String("path", name),
				zap.String("stored_epoch", state.Epoch),
				zap.String("epoch", p.Source.Epoch()),
				zap.Uint64("stored_offset", state.Offset))
		default:
			offsets[i] = state.Offset
			e.logger.Info("Loaded offset", zap.String("path", name), zap.Uint64("offset", state.Offset))
		}
	}
	return offsets, nil
}

// reconcile periodically reports pending and failed transfers
func (e *Engine) reconcile(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if err := e.Reconcile(ctx); err != nil {
				e.logger.Error("Reconciliation failed", zap.Error(err))
			}
		}
	}
}

// Reconcile counts pending and failed transfers per path. Failed transfers
// are only retried on request.
func (e *Engine) Reconcile(ctx context.Context) error {
	for _, p := range e.paths {
		name := p.Name()
		pending, err := e.store.GetPendingTransfers(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to get pending transfers of %s: %w", name, err)
		}
		failed, err := e.store.ListTransfers(ctx, db.WithPath(name), db.WithStatus(db.TransferStatusFailed))
		if err != nil {
			return fmt.Errorf("failed to get failed transfers of %s: %w", name, err)
		}

		metrics.PendingTransfers.WithLabelValues(name).Set(float64(len(pending)))
		e.logger.Info("Reconciliation summary",
			zap.String("path", name),
			zap.Int("pending", len(pending)),
			zap.Int("failed", len(failed)))
	}
	return nil
}

// Retry delivers a recorded transfer again from its stored message. The
// destination dedups, so retrying a message that did arrive is harmless.
func (e *Engine) Retry(ctx context.Context, id string) (*db.Transfer, error) {
	transfer, err := e.store.GetTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	if transfer.Status == db.TransferStatusCompleted {
		return transfer, ErrAlreadyCompleted
	}
	p, ok := e.destinations[transfer.Path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPath, transfer.Path)
	}
	msg, err := messageFromTransfer(transfer)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Retrying transfer", zap.String("id", id), zap.String("path", transfer.Path))
	if err := deliver(ctx, p.Destination, e.store, e.logger, transfer.Path, msg); err != nil {
		updated, getErr := e.store.GetTransfer(ctx, id)
		if getErr != nil {
			return nil, err
		}
		return updated, err
	}
	return e.store.GetTransfer(ctx, id)
}

func messageFromTransfer(t *db.Transfer) (*Message, error) {
	data, err := hexutil.Decode(t.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid stored payload of %s: %w", t.ID, err)
	}
	return &Message{
		ID:                 t.ID,
		Offset:             t.SourceOffset,
		SourceChain:        t.SourceChain,
		DestinationChain:   t.DestinationChain,
		SourceAddress:      t.SourceAddress,
		DestinationAddress: t.DestinationAddress,
		Nonce:              t.Nonce,
		Payload:            data,
		TokenAddress:       t.TokenAddress,
		Recipient:          t.Recipient,
		Amount:             t.Amount,
	}, nil
}
