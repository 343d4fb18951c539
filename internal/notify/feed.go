package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	feedKeyPrefix   = "notifications:feed:"
	unreadKeyPrefix = "notifications:unread:"
	feedTTL         = 14 * 24 * time.Hour
)

// incrIfCached bumps the unread counter only when one is cached. A missing
// counter stays missing so the next read recounts from the store.
const incrIfCached = `
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('INCR', KEYS[1])
	redis.call('EXPIRE', KEYS[1], ARGV[1])
	return 1
end
return 0
`

// RedisFeed caches each user's most recent notifications and an unread
// counter so badge polling does not hit Postgres. The store stays the source
// of truth; a missing counter means "unknown".
type RedisFeed struct {
	redis  *redis.Client
	tracer trace.Tracer
	size   int64
}

func NewRedisFeed(redisClient *redis.Client, size int) *RedisFeed {
	if redisClient == nil {
		return nil
	}
	if size <= 0 {
		size = 100
	}
	return &RedisFeed{
		redis:  redisClient,
		tracer: otel.Tracer("marketplace.internal.notify.feed"),
		size:   int64(size),
	}
}

func feedKey(userID uuid.UUID) string   { return feedKeyPrefix + userID.String() }
func unreadKey(userID uuid.UUID) string { return unreadKeyPrefix + userID.String() }

// Push prepends n to the recipient's feed and bumps a cached unread counter.
func (f *RedisFeed) Push(ctx context.Context, n *Notification) error {
	if f == nil || f.redis == nil {
		return nil
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: marshal feed entry: %w", err)
	}

	ctx, span := f.tracer.Start(ctx, "notify.feed.push")
	defer span.End()

	key := feedKey(n.RecipientID)
	counter := unreadKey(n.RecipientID)
	pipe := f.redis.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, f.size-1)
	pipe.Expire(ctx, key, feedTTL)
	pipe.Eval(ctx, incrIfCached, []string{counter}, int64(feedTTL/time.Second))
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("notify: push feed entry: %w", err)
	}
	return nil
}

// Recent returns up to limit cached notifications, newest first.
func (f *RedisFeed) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]*Notification, error) {
	if f == nil || f.redis == nil {
		return nil, nil
	}
	if limit <= 0 || int64(limit) > f.size {
		limit = int(f.size)
	}
	raw, err := f.redis.LRange(ctx, feedKey(userID), 0, int64(limit)-1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("notify: read feed: %w", err)
	}
	out := make([]*Notification, 0, len(raw))
	for _, item := range raw {
		var n Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			continue
		}
		out = append(out, &n)
	}
	return out, nil
}

// UnreadCount returns the cached counter; ok is false when nothing is cached.
func (f *RedisFeed) UnreadCount(ctx context.Context, userID uuid.UUID) (count int, ok bool, err error) {
	if f == nil || f.redis == nil {
		return 0, false, nil
	}
	val, err := f.redis.Get(ctx, unreadKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("notify: read unread counter: %w", err)
	}
	count, err = strconv.Atoi(val)
	if err != nil {
		return 0, false, nil
	}
	if count < 0 {
		count = 0
	}
	return count, true, nil
}

// SetUnread overwrites the counter, typically after recounting from the store.
func (f *RedisFeed) SetUnread(ctx context.Context, userID uuid.UUID, count int) error {
	if f == nil || f.redis == nil {
		return nil
	}
	if err := f.redis.Set(ctx, unreadKey(userID), count, feedTTL).Err(); err != nil {
		return fmt.Errorf("notify: set unread counter: %w", err)
	}
	return nil
}

// Invalidate drops the counter so the next read recounts from the store.
func (f *RedisFeed) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if f == nil || f.redis == nil {
		return nil
	}
	if err := f.redis.Del(ctx, unreadKey(userID)).Err(); err != nil {
		return fmt.Errorf("notify: drop unread counter: %w", err)
	}
	return nil
}
