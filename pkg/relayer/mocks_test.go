package relayer

import (
	"context"

	"github.com/chainsafe/rwa-bridge/pkg/db"
)

// MockSource is a mock implementation of Source
type MockSource struct {
	ChainID            string
	StreamEpoch        string
	StreamMessagesFunc func(ctx context.Context, offset uint64) <-chan *Message
}

func (m *MockSource) GetChainID() string { return m.ChainID }

func (m *MockSource) Epoch() string { return m.StreamEpoch }

func (m *MockSource) StreamMessages(ctx context.Context, offset uint64) <-chan *Message {
	if m.StreamMessagesFunc != nil {
		return m.StreamMessagesFunc(ctx, offset)
	}
	ch := make(chan *Message)
	close(ch)
	return ch
}

// MockDestination is a mock implementation of Destination
type MockDestination struct {
	ChainID           string
	SubmitMessageFunc func(ctx context.Context, msg *Message) error
}

func (m *MockDestination) GetChainID() string { return m.ChainID }

func (m *MockDestination) SubmitMessage(ctx context.Context, msg *Message) error {
	if m.SubmitMessageFunc != nil {
		return m.SubmitMessageFunc(ctx, msg)
	}
	return nil
}

// MockStore wraps a memory store; any func field set overrides the call.
type MockStore struct {
	*db.MemoryStore

	CreateTransferFunc func(ctx context.Context, transfer *db.Transfer) error
	SetChainStateFunc  func(ctx context.Context, path, epoch string, offset uint64) error
}

func newMockStore() *MockStore {
	return &MockStore{MemoryStore: db.NewMemoryStore()}
}

func (m *MockStore) CreateTransfer(ctx context.Context, transfer *db.Transfer) error {
	if m.CreateTransferFunc != nil {
		return m.CreateTransferFunc(ctx, transfer)
	}
	return m.MemoryStore.CreateTransfer(ctx, transfer)
}

func (m *MockStore) SetChainState(ctx context.Context, path, epoch string, offset uint64) error {
	if m.SetChainStateFunc != nil {
		return m.SetChainStateFunc(ctx, path, epoch, offset)
	}
	return m.MemoryStore.SetChainState(ctx, path, epoch, offset)
}

// feed returns a source stream that yields msgs from offset on, then closes.
func feed(msgs ...*Message) func(ctx context.Context, offset uint64) <-chan *Message {
	return func(ctx context.Context, offset uint64) <-chan *Message {
		ch := make(chan *Message)
		go func() {
			defer close(ch)
			for _, msg := range msgs {
				if msg.Offset < offset {
					continue
				}
				select {
				case ch <- msg:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch
	}
}
