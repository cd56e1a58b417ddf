package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers handled message ids for a while. Seen only checks; Mark
// is called once the receiver has handled the message, so a delivery that
// failed is not mistaken for a duplicate when it comes back.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

// MemoryDeduper keeps ids in a map with a TTL.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (d *MemoryDeduper) Seen(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.seen[id]
	return ok && d.now().Before(exp), nil
}

func (d *MemoryDeduper) Mark(_ context.Context, id string) error {
	if id == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	d.seen[id] = now.Add(d.ttl)
	if len(d.seen)%256 == 0 {
		d.sweep(now)
	}
	return nil
}

func (d *MemoryDeduper) sweep(now time.Time) {
	for id, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, id)
		}
	}
}

// RedisDeduper keeps ids as expiring keys so every consumer replica shares
// the same view.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, prefix string, ttl time.Duration) *RedisDeduper {
	if prefix == "" {
		prefix = "robobank:dedup:"
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	n, err := d.client.Exists(ctx, d.prefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("check message %s: %w", id, err)
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := d.client.Set(ctx, d.prefix+id, 1, d.ttl).Err(); err != nil {
		return fmt.Errorf("mark message %s: %w", id, err)
	}
	return nil
}
