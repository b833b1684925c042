package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/internal/metrics"
	"github.com/chainsafe/rwa-bridge/pkg/db"
)

// Message is one outbound transport message awaiting delivery
type Message struct {
	ID                 string
	Offset             uint64
	SourceChain        string
	DestinationChain   string
	SourceAddress      string
	DestinationAddress string
	Nonce              uint64
	Payload            []byte
	TokenAddress       string
	Recipient          string
	Amount             string
	CreatedAt          time.Time
}

// Source defines the interface for reading outbound messages from a chain
type Source interface {
	// StreamMessages streams messages starting from the given offset
	StreamMessages(ctx context.Context, offset uint64) <-chan *Message
	// GetChainID returns the chain ID
	GetChainID() string
	// Epoch identifies the stream's lifetime. Offsets stored under another
	// epoch do not refer to this stream.
	Epoch() string
}

// Destination defines the interface for delivering messages to a chain
type Destination interface {
	// SubmitMessage delivers the message to the destination chain
	SubmitMessage(ctx context.Context, msg *Message) error
	// GetChainID returns the chain ID
	GetChainID() string
}

// BridgeStore defines the interface for database operations
type BridgeStore interface {
	GetTransfer(ctx context.Context, id string) (*db.Transfer, error)
	CreateTransfer(ctx context.Context, transfer *db.Transfer) error
	UpdateTransferStatus(ctx context.Context, id string, status db.TransferStatus, errMsg *string) error
	GetPendingTransfers(ctx context.Context, path string) ([]*db.Transfer, error)
	ListTransfers(ctx context.Context, opts ...db.ListOption) ([]*db.Transfer, error)
	GetChainState(ctx context.Context, path string) (*db.ChainState, error)
	SetChainState(ctx context.Context, path, epoch string, offset uint64) error
}

// PathName names the relay path from source to destination
func PathName(source, destination string) string {
	return source + "->" + destination
}

// Processor relays messages from one Source to one Destination
type Processor struct {
	source      Source
	destination Destination
	store       BridgeStore
	dedup       Deduper
	logger      *zap.Logger
	path        string
	epoch       string
	minBackoff  time.Duration
	maxBackoff  time.Duration
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithBackoff bounds the wait before a halted stream is reopened
func WithBackoff(minBackoff, maxBackoff time.Duration) ProcessorOption {
	return func(p *Processor) {
		if minBackoff > 0 {
			p.minBackoff = minBackoff
		}
		if maxBackoff >= p.minBackoff {
			p.maxBackoff = maxBackoff
		}
	}
}

// NewProcessor creates a new message processor
func NewProcessor(source Source, destination Destination, store BridgeStore, dedup Deduper, logger *zap.Logger, opts ...ProcessorOption) *Processor {
	if dedup == nil {
		dedup = NewStoreDeduper(store)
	}
	p := &Processor{
		source:      source,
		destination: destination,
		store:       store,
		dedup:       dedup,
		logger:      logger,
		path:        PathName(source.GetChainID(), destination.GetChainID()),
		epoch:       source.Epoch(),
		minBackoff:  time.Second,
		maxBackoff:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) Path() string { return p.path }

// Start relays messages from startOffset until the source stream closes or
// ctx is done. A message that cannot be claimed or recorded halts the stream;
// it is reopened at that message after a backoff, so the stored offset never
// moves past an unrecorded message.
func (p *Processor) Start(ctx context.Context, startOffset uint64) error {
	p.logger.Info("Starting processor",
		zap.String("path", p.path),
		zap.Uint64("offset", startOffset))

	offset := startOffset
	backoff := p.minBackoff
	for {
		next, err := p.relay(ctx, offset)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if next > offset {
			backoff = p.minBackoff
		}
		p.logger.Error("Failed to process message, reopening stream",
			zap.String("path", p.path),
			zap.Uint64("offset", next),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues(p.path, "processing").Inc()

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		backoff = min(backoff*2, p.maxBackoff)
		offset = next
	}
}

// relay consumes one stream from offset. On failure it returns the offset of
// the message to start over from.
func (p *Processor) relay(ctx context.Context, offset uint64) (uint64, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgCh := p.source.StreamMessages(streamCtx, offset)
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return offset, ctx.Err()
			}
			if err := p.processMessage(ctx, msg); err != nil {
				return msg.Offset, err
			}
			offset = msg.Offset + 1
		case <-ctx.Done():
			return offset, ctx.Err()
		}
	}
}

// processMessage handles a single message. The read offset only advances once
// the message is either skipped or recorded. A failed delivery is recorded as
// failed and does not halt the stream.
func (p *Processor) processMessage(ctx context.Context, msg *Message) error {
	if msg.DestinationChain != p.destination.GetChainID() {
		return p.advance(ctx, msg.Offset)
	}
	metrics.MessagesDetected.WithLabelValues(p.path).Inc()

	claimed, err := p.dedup.Claim(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to claim message: %w", err)
	}
	if !claimed {
		_, err := p.store.GetTransfer(ctx, msg.ID)
		switch {
		case err == nil:
			p.logger.Debug("Message already processed", zap.String("message_id", msg.ID))
			return p.advance(ctx, msg.Offset)
		case !errors.Is(err, db.ErrNotFound):
			return fmt.Errorf("failed to look up claimed message: %w", err)
		}
		// a claim whose release failed, or one a replica has yet to record
		p.logger.Warn("Message claimed but not recorded, recording it",
			zap.String("message_id", msg.ID))
	}

	transfer := &db.Transfer{
		ID:                 msg.ID,
		Path:               p.path,
		Status:             db.TransferStatusPending,
		SourceChain:        msg.SourceChain,
		DestinationChain:   msg.DestinationChain,
		SourceAddress:      msg.SourceAddress,
		DestinationAddress: msg.DestinationAddress,
		Nonce:              msg.Nonce,
		SourceOffset:       msg.Offset,
		Payload:            hexutil.Encode(msg.Payload),
		TokenAddress:       msg.TokenAddress,
		Recipient:          msg.Recipient,
		Amount:             msg.Amount,
		CreatedAt:          msg.CreatedAt,
	}
	if err := p.store.CreateTransfer(ctx, transfer); err != nil {
		if relErr := p.dedup.Release(ctx, msg.ID); relErr != nil {
			p.logger.Warn("Failed to release message claim", zap.String("message_id", msg.ID), zap.Error(relErr))
		}
		return fmt.Errorf("failed to create transfer: %w", err)
	}

	p.logger.Info("Processing transfer",
		zap.String("id", msg.ID),
		zap.String("path", p.path),
		zap.String("amount", msg.Amount))

	// failures stay on record for Retry
	_ = deliver(ctx, p.destination, p.store, p.logger, p.path, msg)
	return p.advance(ctx, msg.Offset)
}

func (p *Processor) advance(ctx context.Context, offset uint64) error {
	if err := p.store.SetChainState(ctx, p.path, p.epoch, offset+1); err != nil {
		return fmt.Errorf("failed to save offset: %w", err)
	}
	metrics.LastProcessedOffset.WithLabelValues(p.path).Set(float64(offset))
	return nil
}

// deliver submits msg and records the outcome. A failed delivery stays on
// record as failed until it is retried.
func deliver(ctx context.Context, dest Destination, store BridgeStore, logger *zap.Logger, path string, msg *Message) error {
	if err := dest.SubmitMessage(ctx, msg); err != nil {
		logger.Error("Failed to submit transfer",
			zap.String("id", msg.ID),
			zap.String("path", path),
			zap.Error(err))

		errMsg := err.Error()
		if updErr := store.UpdateTransferStatus(ctx, msg.ID, db.TransferStatusFailed, &errMsg); updErr != nil {
			logger.Error("Failed to record transfer failure", zap.String("id", msg.ID), zap.Error(updErr))
		}
		metrics.TransfersTotal.WithLabelValues(path, "failed").Inc()
		return fmt.Errorf("submission failed: %w", err)
	}

	if err := store.UpdateTransferStatus(ctx, msg.ID, db.TransferStatusCompleted, nil); err != nil && !errors.Is(err, db.ErrNotFound) {
		logger.Error("Failed to record transfer completion", zap.String("id", msg.ID), zap.Error(err))
	}
	metrics.TransfersTotal.WithLabelValues(path, "completed").Inc()
	if !msg.CreatedAt.IsZero() {
		metrics.TransferDuration.WithLabelValues(path).Observe(time.Since(msg.CreatedAt).Seconds())
	}

	logger.Info("Transfer completed",
		zap.String("id", msg.ID),
		zap.String("path", path))
	return nil
}
