package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/realestate-marketplace/internal/config"
	"github.com/wolfman30/realestate-marketplace/internal/notify"
	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

const redisPingTimeout = 3 * time.Second

// OpenRedis connects to the unread-feed cache. It returns nil when REDIS_ADDR
// is unset or the server does not answer a ping; the inbox then counts unread
// rows in Postgres instead.
func OpenRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if cfg == nil {
		return nil
	}
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	opts := &redis.Options{
		Addr:         addr,
		Password:     cfg.RedisPassword,
		DialTimeout:  redisPingTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: hostOnly(addr)}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("unread feed disabled, redis unreachable", "addr", addr, "error", err)
		_ = client.Close()
		return nil
	}
	logger.Info("unread feed connected", "addr", addr)
	return client
}

// NotificationFeed wraps client in the capped per-user feed. A nil client
// yields a nil feed.
func NotificationFeed(client *redis.Client, cfg *appconfig.Config) *notify.RedisFeed {
	if client == nil {
		return nil
	}
	var size int
	if cfg != nil {
		size = cfg.NotificationFeedSize
	}
	return notify.NewRedisFeed(client, size)
}

func hostOnly(addr string) string {
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return addr[:i]
	}
	return addr
}
