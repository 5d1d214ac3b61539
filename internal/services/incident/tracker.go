package incident

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Tracker remembers, per incident id, the eligible-message count at which the
// last summary was published. Counts are monotonic: Advance only succeeds
// when the stored count still equals the caller's snapshot, so two triggers
// over the same batch publish at most once.
type Tracker interface {
	Count(ctx context.Context, incidentID string) (int, error)
	// Advance moves the count from prev to next, compare-and-swap style.
	// Returns false when the stored count no longer equals prev.
	Advance(ctx context.Context, incidentID string, prev, next int) (bool, error)
	// Forget drops the tracking entry for an incident
	Forget(ctx context.Context, incidentID string) error
}

// MemoryTracker is the process-local tracker. State is lost on restart,
// which re-opens the duplicate-summary window; deployments that care use the
// redis tracker instead.
type MemoryTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryTracker creates an in-memory summary tracker
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{counts: make(map[string]int)}
}

func (t *MemoryTracker) Count(ctx context.Context, incidentID string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[incidentID], nil
}

func (t *MemoryTracker) Advance(ctx context.Context, incidentID string, prev, next int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.counts[incidentID] != prev {
		return false, nil
	}
	t.counts[incidentID] = next
	return true, nil
}

func (t *MemoryTracker) Forget(ctx context.Context, incidentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, incidentID)
	return nil
}

// RedisTracker shares the summary counts across bot instances. Advance uses
// WATCH so concurrent instances cannot both claim the same batch.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedisTracker connects the tracker to redis. A zero ttl keeps entries
// forever.
func NewRedisTracker(client *redis.Client, ttl time.Duration, logger *logrus.Logger) (*RedisTracker, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisTracker{client: client, ttl: ttl, logger: logger}, nil
}

func trackerKey(incidentID string) string {
	return fmt.Sprintf("incident_summary_count:%s", incidentID)
}

func (t *RedisTracker) Count(ctx context.Context, incidentID string) (int, error) {
	val, err := t.client.Get(ctx, trackerKey(incidentID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

func (t *RedisTracker) Advance(ctx context.Context, incidentID string, prev, next int) (bool, error) {
	key := trackerKey(incidentID)
	swapped := false

	err := t.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		current := 0
		if err == nil {
			current, err = strconv.Atoi(val)
			if err != nil {
				return err
			}
		} else if err != redis.Nil {
			return err
		}

		if current != prev {
			// Another instance advanced past us; the batch is claimed
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, t.ttl)
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}, key)

	if err == redis.TxFailedErr {
		return false, nil
	}
	return swapped, err
}

func (t *RedisTracker) Forget(ctx context.Context, incidentID string) error {
	return t.client.Del(ctx, trackerKey(incidentID)).Err()
}
