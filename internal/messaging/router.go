package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/signalbox/internal/identity"
	"github.com/zulandar/signalbox/internal/metrics"
	"github.com/zulandar/signalbox/internal/models"
	"github.com/zulandar/signalbox/internal/notify"
	"github.com/zulandar/signalbox/internal/presence"
)

// Enqueuer schedules offline notifications without blocking.
type Enqueuer interface {
	Enqueue(n notify.Notification) error
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Store        Store
	Registry     *presence.Registry
	Directory    identity.Directory
	Notifier     Enqueuer
	PreviewLimit int // runes kept in notification previews (default 100)
	Logger       zerolog.Logger
	Now          func() time.Time // for testing
}

// Router persists a message and then delivers it.
type Router struct {
	store        Store
	registry     *presence.Registry
	dir          identity.Directory
	notifier     Enqueuer
	previewLimit int
	log          zerolog.Logger
	now          func() time.Time
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("messaging: store is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("messaging: registry is required")
	}
	if opts.Directory == nil {
		return nil, fmt.Errorf("messaging: directory is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("messaging: notifier is required")
	}
	if opts.PreviewLimit == 0 {
		opts.PreviewLimit = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Router{
		store:        opts.Store,
		registry:     opts.Registry,
		dir:          opts.Directory,
		notifier:     opts.Notifier,
		previewLimit: opts.PreviewLimit,
		log:          opts.Logger,
		now:          opts.Now,
	}, nil
}

// Send stores a message from sender to receiverID and delivers it. The
// sender's connection gets a new_message acknowledgement; the receiver gets
// the same event live when connected, otherwise an offline notification is
// queued. Delivery problems are never returned; only rejection and storage
// errors are.
func (r *Router) Send(ctx context.Context, sender identity.Identity, receiverID uint, content string) (*models.Message, error) {
	if sender.ID == 0 || receiverID == 0 {
		return nil, fmt.Errorf("%w: missing sender or receiver", ErrRejected)
	}
	clean := Sanitize(content)
	if clean == "" {
		return nil, fmt.Errorf("%w: empty content", ErrRejected)
	}
	receiver, err := r.dir.Lookup(ctx, receiverID)
	if err != nil {
		if errors.Is(err, identity.ErrUnknownIdentity) {
			return nil, fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return nil, fmt.Errorf("messaging: send: %w", err)
	}

	msg := &models.Message{
		SenderID:   sender.ID,
		ReceiverID: receiverID,
		Content:    clean,
		CreatedAt:  r.now().UTC(),
	}
	if err := r.store.Append(ctx, msg); err != nil {
		metrics.StorageFailures.WithLabelValues("append").Inc()
		return nil, fmt.Errorf("messaging: send: %w", err)
	}
	metrics.MessagesSent.Inc()

	evt := NewMessageEvent(*msg, sender.Username)
	log := r.log.With().Uint("message_id", msg.ID).Uint("user_id", sender.ID).Logger()

	senderHandle, senderOnline := r.registry.Lookup(sender.ID)
	acked := false
	if senderOnline {
		if err := senderHandle.Push(evt); err != nil {
			log.Debug().Err(err).Msg("sender ack not delivered")
		} else {
			acked = true
		}
	}

	if h, ok := r.registry.Lookup(receiverID); ok {
		if senderOnline && h.Key() == senderHandle.Key() {
			// Self-send on the same connection: the ack is the delivery.
			if acked {
				metrics.Deliveries.WithLabelValues("live").Inc()
				return msg, nil
			}
		} else if err := h.Push(evt); err == nil {
			metrics.Deliveries.WithLabelValues("live").Inc()
			return msg, nil
		} else {
			log.Debug().Err(err).Uint("receiver_id", receiverID).Msg("live delivery missed")
		}
	}

	metrics.Deliveries.WithLabelValues("offline").Inc()
	n := notify.Notification{
		MessageID: msg.ID,
		Sender:    sender,
		Recipient: receiver,
		Preview:   notify.Preview(PlainText(clean), r.previewLimit),
		SentAt:    msg.CreatedAt,
	}
	if err := r.notifier.Enqueue(n); err != nil {
		log.Warn().Err(err).Uint("receiver_id", receiverID).Msg("offline notification not queued")
	}
	return msg, nil
}
