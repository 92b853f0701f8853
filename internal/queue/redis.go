package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"deployctl/internal/model"
)

// RedisBackend stores each environment's ready queue as a sorted set scored
// by (priority_band, enqueued_at) so ZRANGE order is FIFO-within-band to the
// millisecond,
// and its processing set as a second sorted set scored by the visibility
// deadline so Sweep is a single ZRANGEBYSCORE. Grounded on the teacher's
// internal/pubsub/redis.go client idiom (injected *redis.Client,
// context-first calls, JSON-encoded payloads).
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func readyKey(environment string) string      { return "deployctl:queue:ready:" + environment }
func processingKey(environment string) string { return "deployctl:queue:processing:" + environment }

// bandCeiling is a generous upper bound on priority bands (§3 defines 0-3);
// score only needs a ceiling past any real band so inverting it still leaves
// every band's range non-negative.
const bandCeiling = 64

// score puts the inverted priority band in multiples of 1e13 and enqueued_at
// as Unix milliseconds (below 1e13) underneath it, so ZRANGE WithScores —
// which returns the lowest score first — yields the highest band first, then
// FIFO order within the band, in a single key. Every score stays below 2^53,
// so float64 holds it exactly; entries enqueued in the same millisecond are
// ordered by their encoded member.
func score(band int, at time.Time) float64 {
	return float64(bandCeiling-band)*1e13 + float64(at.UnixMilli())
}

func (r *RedisBackend) Enqueue(ctx context.Context, environment string, entry model.QueueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.ZAdd(ctx, readyKey(environment), redis.Z{
		Score:  score(entry.PriorityBand, entry.EnqueuedAt),
		Member: string(data),
	}).Err()
}

func (r *RedisBackend) Dequeue(ctx context.Context, environment, owner string, visibilityTimeout time.Duration) (model.QueueEntry, bool, error) {
	now := time.Now()
	// band 0 has the largest inverted score, so scoring it at now gives the
	// upper edge that still includes every band's visible entries. Higher
	// bands' delayed retries (EnqueuedAt after now) also fall under it and are
	// skipped here.
	members, err := r.client.ZRangeByScore(ctx, readyKey(environment), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", score(0, now)),
	}).Result()
	if err != nil {
		return model.QueueEntry{}, false, err
	}
	raw := ""
	for _, m := range members {
		var e model.QueueEntry
		if json.Unmarshal([]byte(m), &e) == nil && !e.EnqueuedAt.After(now) {
			raw = m
			break
		}
	}
	if raw == "" {
		return model.QueueEntry{}, false, nil
	}

	removed, err := r.client.ZRem(ctx, readyKey(environment), raw).Result()
	if err != nil {
		return model.QueueEntry{}, false, err
	}
	if removed == 0 {
		// another worker already claimed it between ZRangeByScore and ZRem.
		return model.QueueEntry{}, false, nil
	}

	var entry model.QueueEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return model.QueueEntry{}, false, err
	}
	entry.ProcessingOwner = owner
	entry.VisibleAfter = now.Add(visibilityTimeout)

	data, err := json.Marshal(entry)
	if err != nil {
		return model.QueueEntry{}, false, err
	}
	if err := r.client.ZAdd(ctx, processingKey(environment), redis.Z{
		Score:  float64(entry.VisibleAfter.UnixNano()),
		Member: string(data),
	}).Err(); err != nil {
		return model.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func (r *RedisBackend) Ack(ctx context.Context, environment, envelopeID string) error {
	members, err := r.client.ZRange(ctx, processingKey(environment), 0, -1).Result()
	if err != nil {
		return err
	}
	for _, raw := range members {
		var entry model.QueueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if entry.EnvelopeID == envelopeID {
			return r.client.ZRem(ctx, processingKey(environment), raw).Err()
		}
	}
	return nil
}

func (r *RedisBackend) Sweep(ctx context.Context, environment string) (int, error) {
	now := time.Now()
	expired, err := r.client.ZRangeByScore(ctx, processingKey(environment), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixNano()),
	}).Result()
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, raw := range expired {
		var entry model.QueueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		removed, err := r.client.ZRem(ctx, processingKey(environment), raw).Result()
		if err != nil || removed == 0 {
			continue
		}
		entry.ProcessingOwner = ""
		if err := r.Enqueue(ctx, environment, entry); err != nil {
			continue
		}
		recovered++
	}
	return recovered, nil
}
