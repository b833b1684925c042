package relayer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/pkg/db"
)

var testCreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testMessage(id string, offset uint64, dest string) *Message {
	return &Message{
		ID:                 id,
		Offset:             offset,
		SourceChain:        "binance",
		DestinationChain:   dest,
		SourceAddress:      "0x000000000000000000000000000000000000A000",
		DestinationAddress: "0xBEEF",
		Payload:            []byte{0xde, 0xad, 0xbe, 0xef},
		TokenAddress:       "0x0000000000000000000000000000000000007001",
		Recipient:          "0x00000000000000000000000000000000000000A1",
		Amount:             "1000",
		CreatedAt:          testCreatedAt,
	}
}

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) submit(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, msg.ID)
	return nil
}

func (r *recorder) submitted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestProcessor_RelaysAndRecords(t *testing.T) {
	store := newMockStore()
	rec := &recorder{}
	source := &MockSource{ChainID: "binance", StreamEpoch: "boot-1", StreamMessagesFunc: feed(
		testMessage("0x01", 0, "arbitrum"),
		testMessage("0x02", 1, "Polygon"),
		testMessage("0x03", 2, "arbitrum"),
	)}
	dest := &MockDestination{ChainID: "arbitrum", SubmitMessageFunc: rec.submit}

	processor := NewProcessor(source, dest, store, NewMemoryDeduper(), zap.NewNop())
	if processor.Path() != "binance->arbitrum" {
		t.Fatalf("unexpected path %s", processor.Path())
	}
	if err := processor.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	got := rec.submitted()
	if len(got) != 2 || got[0] != "0x01" || got[1] != "0x03" {
		t.Fatalf("expected 0x01 and 0x03 to be submitted, got %v", got)
	}

	ctx := context.Background()
	for _, id := range []string{"0x01", "0x03"} {
		transfer, err := store.GetTransfer(ctx, id)
		if err != nil {
			t.Fatalf("GetTransfer(%s) failed: %v", id, err)
		}
		if transfer.Status != db.TransferStatusCompleted {
			t.Errorf("expected %s completed, got %s", id, transfer.Status)
		}
		if transfer.Path != "binance->arbitrum" || transfer.Payload != "0xdeadbeef" {
			t.Errorf("unexpected transfer record %+v", transfer)
		}
	}
	if _, err := store.GetTransfer(ctx, "0x02"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected message for another chain to be skipped, got %v", err)
	}

	state, err := store.GetChainState(ctx, "binance->arbitrum")
	if err != nil || state == nil {
		t.Fatalf("expected chain state, got %v %v", state, err)
	}
	if state.Offset != 3 || state.Epoch != "boot-1" {
		t.Errorf("expected next offset 3 of boot-1, got %+v", state)
	}
}

func TestProcessor_SkipsDuplicates(t *testing.T) {
	store := newMockStore()
	rec := &recorder{}
	dup := testMessage("0x01", 1, "arbitrum")
	source := &MockSource{ChainID: "binance", StreamMessagesFunc: feed(testMessage("0x01", 0, "arbitrum"), dup)}
	dest := &MockDestination{ChainID: "arbitrum", SubmitMessageFunc: rec.submit}

	// the store itself dedups when no deduper is given
	processor := NewProcessor(source, dest, store, nil, zap.NewNop())
	if err := processor.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if got := rec.submitted(); len(got) != 1 {
		t.Fatalf("expected one submission, got %v", got)
	}
	state, _ := store.GetChainState(context.Background(), "binance->arbitrum")
	if state == nil || state.Offset != 2 {
		t.Errorf("expected offset to move past the duplicate, got %+v", state)
	}
}

func TestProcessor_SubmitFailure(t *testing.T) {
	store := newMockStore()
	source := &MockSource{ChainID: "binance", StreamMessagesFunc: feed(testMessage("0x01", 0, "arbitrum"))}
	dest := &MockDestination{
		ChainID: "arbitrum",
		SubmitMessageFunc: func(context.Context, *Message) error {
			return errors.New("bridge is paused")
		},
	}

	processor := NewProcessor(source, dest, store, NewMemoryDeduper(), zap.NewNop())
	if err := processor.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx := context.Background()
	transfer, err := store.GetTransfer(ctx, "0x01")
	if err != nil {
		t.Fatalf("GetTransfer failed: %v", err)
	}
	if transfer.Status != db.TransferStatusFailed {
		t.Errorf("expected failed, got %s", transfer.Status)
	}
	if transfer.ErrorMessage == nil || *transfer.ErrorMessage != "bridge is paused" {
		t.Errorf("expected error message to be recorded, got %v", transfer.ErrorMessage)
	}
	state, _ := store.GetChainState(ctx, "binance->arbitrum")
	if state == nil || state.Offset != 1 {
		t.Errorf("expected the failed message to be passed over, got %+v", state)
	}
}

func TestProcessor_RecordFailureReopensStream(t *testing.T) {
	store := newMockStore()
	var creates atomic.Int32
	store.CreateTransferFunc = func(ctx context.Context, transfer *db.Transfer) error {
		if creates.Add(1) == 1 {
			return errors.New("connection refused")
		}
		return store.MemoryStore.CreateTransfer(ctx, transfer)
	}
	rec := &recorder{}
	source := &MockSource{ChainID: "binance", StreamMessagesFunc: feed(
		testMessage("0x01", 0, "arbitrum"),
		testMessage("0x02", 1, "arbitrum"),
	)}
	dest := &MockDestination{ChainID: "arbitrum", SubmitMessageFunc: rec.submit}

	processor := NewProcessor(source, dest, store, NewMemoryDeduper(), zap.NewNop(),
		WithBackoff(time.Millisecond, time.Millisecond))
	if err := processor.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// 0x02 must not move the offset past the unrecorded 0x01
	got := rec.submitted()
	if len(got) != 2 || got[0] != "0x01" || got[1] != "0x02" {
		t.Fatalf("expected 0x01 then 0x02 to be submitted, got %v", got)
	}
	ctx := context.Background()
	for _, id := range []string{"0x01", "0x02"} {
		transfer, err := store.GetTransfer(ctx, id)
		if err != nil {
			t.Fatalf("GetTransfer(%s) failed: %v", id, err)
		}
		if transfer.Status != db.TransferStatusCompleted {
			t.Errorf("expected %s completed, got %s", id, transfer.Status)
		}
	}
	state, _ := store.GetChainState(ctx, "binance->arbitrum")
	if state == nil || state.Offset != 2 {
		t.Errorf("expected offset 2, got %+v", state)
	}
}

func TestProcessor_OffsetFailureDoesNotResubmit(t *testing.T) {
	store := newMockStore()
	var saves atomic.Int32
	store.SetChainStateFunc = func(ctx context.Context, path, epoch string, offset uint64) error {
		if saves.Add(1) == 1 {
			return errors.New("connection reset")
		}
		return store.MemoryStore.SetChainState(ctx, path, epoch, offset)
	}
	rec := &recorder{}
	source := &MockSource{ChainID: "binance", StreamMessagesFunc: feed(testMessage("0x01", 0, "arbitrum"))}
	dest := &MockDestination{ChainID: "arbitrum", SubmitMessageFunc: rec.submit}

	processor := NewProcessor(source, dest, store, NewMemoryDeduper(), zap.NewNop(),
		WithBackoff(time.Millisecond, time.Millisecond))
	if err := processor.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if got := rec.submitted(); len(got) != 1 {
		t.Fatalf("expected one submission, got %v", got)
	}
	state, _ := store.GetChainState(context.Background(), "binance->arbitrum")
	if state == nil || state.Offset != 1 {
		t.Errorf("expected offset 1, got %+v", state)
	}
}

func TestProcessor_RecordsStaleClaim(t *testing.T) {
	store := newMockStore()
	dedup := NewMemoryDeduper()
	// a claim left behind by a release that failed
	if claimed, _ := dedup.Claim(context.Background(), "0x01"); !claimed {
		t.Fatal("expected first claim to succeed")
	}
	rec := &recorder{}
	source := &MockSource{ChainID: "binance", StreamMessagesFunc: feed(testMessage("0x01", 0, "arbitrum"))}
	dest := &MockDestination{ChainID: "arbitrum", SubmitMessageFunc: rec.submit}

	processor := NewProcessor(source, dest, store, dedup, zap.NewNop())
	if err := processor.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if got := rec.submitted(); len(got) != 1 || got[0] != "0x01" {
		t.Fatalf("expected 0x01 to be submitted, got %v", got)
	}
	if _, err := store.GetTransfer(context.Background(), "0x01"); err != nil {
		t.Errorf("expected 0x01 to be recorded, got %v", err)
	}
}

func TestProcessor_StopsWhileBackingOff(t *testing.T) {
	store := newMockStore()
	failed := make(chan struct{}, 1)
	store.CreateTransferFunc = func(context.Context, *db.Transfer) error {
		select {
		case failed <- struct{}{}:
		default:
		}
		return errors.New("connection refused")
	}
	source := &MockSource{ChainID: "binance", StreamMessagesFunc: feed(testMessage("0x01", 0, "arbitrum"))}
	processor := NewProcessor(source, &MockDestination{ChainID: "arbitrum"}, store, nil, zap.NewNop(),
		WithBackoff(time.Hour, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- processor.Start(ctx, 0) }()

	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("message was never attempted")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}
	if state, _ := store.GetChainState(context.Background(), "binance->arbitrum"); state != nil {
		t.Errorf("expected offset not to advance, got %+v", state)
	}
}

func TestProcessor_ResumesFromOffset(t *testing.T) {
	store := newMockStore()
	rec := &recorder{}
	source := &MockSource{ChainID: "binance", StreamMessagesFunc: feed(
		testMessage("0x01", 0, "arbitrum"),
		testMessage("0x02", 1, "arbitrum"),
		testMessage("0x03", 2, "arbitrum"),
	)}
	dest := &MockDestination{ChainID: "arbitrum", SubmitMessageFunc: rec.submit}

	processor := NewProcessor(source, dest, store, NewMemoryDeduper(), zap.NewNop())
	if err := processor.Start(context.Background(), 2); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := rec.submitted(); len(got) != 1 || got[0] != "0x03" {
		t.Fatalf("expected only 0x03, got %v", got)
	}
}

func TestProcessor_StopsOnCancel(t *testing.T) {
	source := &MockSource{
		ChainID: "binance",
		StreamMessagesFunc: func(context.Context, uint64) <-chan *Message {
			return make(chan *Message)
		},
	}
	processor := NewProcessor(source, &MockDestination{ChainID: "arbitrum"}, newMockStore(), nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- processor.Start(ctx, 0) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}
}
