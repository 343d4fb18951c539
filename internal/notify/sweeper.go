package notify

import (
	"context"
	"time"

	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

const (
	defaultSweepInterval = time.Hour
	defaultSweepBatch    = 500
)

type expiredPurger interface {
	PurgeExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Sweeper periodically deletes notifications past their expiry so the inbox
// table does not grow without bound. Reads already hide expired rows.
type Sweeper struct {
	store     expiredPurger
	logger    *logging.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewSweeper(store expiredPurger, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		store:     store,
		logger:    logger,
		interval:  defaultSweepInterval,
		batchSize: defaultSweepBatch,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sweeper) WithInterval(interval time.Duration) *Sweeper {
	if interval > 0 {
		s.interval = interval
	}
	return s
}

func (s *Sweeper) WithBatchSize(size int) *Sweeper {
	if size > 0 {
		s.batchSize = size
	}
	return s
}

// Start blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	if s.store == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep purges in batches until a short batch signals the backlog is gone.
func (s *Sweeper) Sweep(ctx context.Context) int {
	cutoff := s.now()
	total := 0
	for ctx.Err() == nil {
		n, err := s.store.PurgeExpired(ctx, cutoff, s.batchSize)
		if err != nil {
			s.logger.Error("notification sweep failed", "error", err)
			break
		}
		total += n
		if n < s.batchSize {
			break
		}
	}
	if total > 0 {
		s.logger.Info("expired notifications purged", "count", total)
	}
	return total
}
