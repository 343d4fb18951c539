package notify

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeed(t *testing.T, size int) (*RedisFeed, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisFeed(client, size), mr
}

func TestRedisFeedPushTrimsAndCounts(t *testing.T) {
	feed, mr := newTestFeed(t, 2)
	ctx := context.Background()
	user := uuid.New()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, feed.SetUnread(ctx, user, 0))

	var last *Notification
	for i := 0; i < 3; i++ {
		last = newNotification(Request{RecipientID: user, Message: "update"}, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, feed.Push(ctx, last))
	}

	recent, err := feed.Recent(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, last.ID, recent[0].ID)

	count, ok, err := feed.UnreadCount(ctx, user)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, count)

	assert.True(t, mr.TTL(feedKey(user)) > 0)
}

func TestRedisFeedPushLeavesColdCounterUnset(t *testing.T) {
	feed, mr := newTestFeed(t, 10)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, feed.Push(ctx, newNotification(Request{RecipientID: user, Message: "update"}, time.Now().UTC())))

	_, ok, err := feed.UnreadCount(ctx, user)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(unreadKey(user)))
}

func TestRedisFeedCounterLifecycle(t *testing.T) {
	feed, _ := newTestFeed(t, 10)
	ctx := context.Background()
	user := uuid.New()

	_, ok, err := feed.UnreadCount(ctx, user)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, feed.SetUnread(ctx, user, 4))
	count, ok, err := feed.UnreadCount(ctx, user)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, count)

	require.NoError(t, feed.Invalidate(ctx, user))
	_, ok, err = feed.UnreadCount(ctx, user)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisFeedNilSafe(t *testing.T) {
	var feed *RedisFeed
	ctx := context.Background()
	assert.NoError(t, feed.Push(ctx, &Notification{}))
	_, ok, err := feed.UnreadCount(ctx, uuid.New())
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, NewRedisFeed(nil, 10))
}
