package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chainsafe/rwa-bridge/pkg/db"
)

// Deduper claims message IDs so a message seen twice is relayed once.
type Deduper interface {
	// Claim reports whether id was unclaimed and is now claimed by the caller
	Claim(ctx context.Context, id string) (bool, error)
	// Release gives up a claim that could not be recorded
	Release(ctx context.Context, id string) error
}

// StoreDeduper treats every recorded transfer as claimed.
type StoreDeduper struct {
	store BridgeStore
}

func NewStoreDeduper(store BridgeStore) *StoreDeduper {
	return &StoreDeduper{store: store}
}

func (d *StoreDeduper) Claim(ctx context.Context, id string) (bool, error) {
	_, err := d.store.GetTransfer(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// Release is a no-op: an unrecorded transfer is not claimed.
func (d *StoreDeduper) Release(context.Context, string) error { return nil }

// MemoryDeduper keeps claims in process.
type MemoryDeduper struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{claimed: make(map[string]struct{})}
}

func (d *MemoryDeduper) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.claimed[id]; ok {
		return false, nil
	}
	d.claimed[id] = struct{}{}
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claimed, id)
	return nil
}

const defaultDedupPrefix = "bridge:relayed:"

// RedisDeduper claims IDs with SETNX, so relayer replicas sharing a redis
// never deliver the same message twice.
type RedisDeduper struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper whose claims expire after ttl. A zero ttl
// keeps claims forever.
func NewRedisDeduper(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisDeduper {
	if prefix == "" {
		prefix = defaultDedupPrefix
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+id, time.Now().UTC().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", id, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, d.prefix+id).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", id, err)
	}
	return nil
}
