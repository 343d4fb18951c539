package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

// Publisher pushes a stored notification to live connections.
type Publisher interface {
	Publish(n *Notification) int
}

// Feed caches recent notifications and unread counters.
type Feed interface {
	Push(ctx context.Context, n *Notification) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, bool, error)
	SetUnread(ctx context.Context, userID uuid.UUID, count int) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// Service stores notifications and fans them out. Only the store write can
// fail a Send; feed, push and e-mail are best-effort.
type Service struct {
	store     Store
	feed      Feed
	publisher Publisher
	email     EmailSender
	directory UserDirectory
	logger    *logging.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithFeed(f Feed) Option {
	return func(s *Service) {
		if f != nil {
			s.feed = f
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithEmail relays High priority notifications to the recipient's address.
func WithEmail(sender EmailSender, directory UserDirectory) Option {
	return func(s *Service) {
		s.email = sender
		s.directory = directory
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a notification service.
func NewService(store Store, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Send validates and stores a notification, then fans it out.
func (s *Service) Send(ctx context.Context, req Request) (*Notification, error) {
	if s.store == nil {
		return nil, ErrStoreNotAvailable
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	n := newNotification(req, s.now())
	if err := s.store.Insert(ctx, n); err != nil {
		return nil, err
	}

	if s.feed != nil {
		if err := s.feed.Push(ctx, n); err != nil {
			s.logger.Warn("notify: feed push failed", "error", err, "notification_id", n.ID)
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(n)
	}
	if n.Priority == PriorityHigh {
		s.relayEmail(ctx, n)
	}
	return n, nil
}

func (s *Service) relayEmail(ctx context.Context, n *Notification) {
	if s.email == nil || s.directory == nil {
		return
	}
	contact, err := s.directory.Contact(ctx, n.RecipientID)
	if err != nil {
		s.logger.Warn("notify: no contact for e-mail relay", "error", err, "user_id", n.RecipientID)
		return
	}
	if contact.Email == "" {
		return
	}
	msg, err := composeEmail(n, contact)
	if err != nil {
		s.logger.Warn("notify: compose e-mail failed", "error", err, "notification_id", n.ID)
		return
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Warn("notify: e-mail relay failed", "error", err, "notification_id", n.ID)
	}
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]*Notification, error) {
	if s.store == nil {
		return nil, ErrStoreNotAvailable
	}
	return s.store.ListForRecipient(ctx, userID, opts, s.now())
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) (*Notification, error) {
	if s.store == nil {
		return nil, ErrStoreNotAvailable
	}
	n, err := s.store.MarkRead(ctx, userID, id, s.now())
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	if s.store == nil {
		return 0, ErrStoreNotAvailable
	}
	count, err := s.store.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, err
	}
	if s.feed != nil {
		if err := s.feed.SetUnread(ctx, userID, 0); err != nil {
			s.logger.Warn("notify: reset unread counter failed", "error", err, "user_id", userID)
		}
	}
	return count, nil
}

// UnreadCount serves the cached counter when present and recounts otherwise.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	if s.feed != nil {
		count, ok, err := s.feed.UnreadCount(ctx, userID)
		if err != nil {
			s.logger.Warn("notify: read unread counter failed", "error", err, "user_id", userID)
		} else if ok {
			return count, nil
		}
	}
	if s.store == nil {
		return 0, ErrStoreNotAvailable
	}
	count, err := s.store.CountUnread(ctx, userID, s.now())
	if err != nil {
		return 0, err
	}
	if s.feed != nil {
		if err := s.feed.SetUnread(ctx, userID, count); err != nil {
			s.logger.Warn("notify: cache unread counter failed", "error", err, "user_id", userID)
		}
	}
	return count, nil
}

func (s *Service) invalidate(ctx context.Context, userID uuid.UUID) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("notify: drop unread counter failed", "error", err, "user_id", userID)
	}
}
