package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/zulandar/signalbox/internal/identity"
	"github.com/zulandar/signalbox/internal/metrics"
	"github.com/zulandar/signalbox/internal/models"
	"github.com/zulandar/signalbox/internal/protocol"
)

// History serves conversations and read receipts.
type History struct {
	store Store
	dir   identity.Directory
	log   zerolog.Logger
}

// NewHistory creates a History.
func NewHistory(store Store, dir identity.Directory, logger zerolog.Logger) *History {
	return &History{store: store, dir: dir, log: logger}
}

// GetHistory returns the conversation between requester and otherID and marks
// what otherID sent to requester as read. The returned rows already carry
// the updated flags.
func (h *History) GetHistory(ctx context.Context, requester, otherID uint) ([]models.Message, error) {
	if requester == 0 || otherID == 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrRejected)
	}
	msgs, err := h.store.ReadConversation(ctx, requester, otherID)
	if err != nil {
		metrics.StorageFailures.WithLabelValues("history").Inc()
		return nil, err
	}
	return msgs, nil
}

// Chat is GetHistory rendered as a chat_history event.
func (h *History) Chat(ctx context.Context, requester identity.Identity, otherID uint) (protocol.ChatHistory, error) {
	msgs, err := h.GetHistory(ctx, requester.ID, otherID)
	if err != nil {
		return protocol.ChatHistory{}, err
	}

	names := map[uint]string{requester.ID: requester.Username}
	if otherID != requester.ID {
		other, err := h.dir.Lookup(ctx, otherID)
		switch {
		case err == nil:
			names[otherID] = other.Username
		case errors.Is(err, identity.ErrUnknownIdentity):
			// The account is gone but its messages remain.
		default:
			h.log.Warn().Err(err).Uint("user_id", otherID).Msg("history: sender name lookup failed")
		}
	}

	out := protocol.ChatHistory{
		Messages:    make([]protocol.HistoryMessage, 0, len(msgs)),
		OtherUserID: otherID,
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, protocol.HistoryMessage{
			NewMessage: NewMessageEvent(m, names[m.SenderID]),
			Read:       m.Read,
		})
	}
	return out, nil
}

// MarkRead marks everything senderID sent to requester as read and returns
// how many messages changed.
func (h *History) MarkRead(ctx context.Context, requester, senderID uint) (int64, error) {
	if requester == 0 || senderID == 0 {
		return 0, fmt.Errorf("%w: missing user id", ErrRejected)
	}
	n, err := h.store.MarkRead(ctx, requester, senderID)
	if err != nil {
		metrics.StorageFailures.WithLabelValues("mark_read").Inc()
		return 0, err
	}
	return n, nil
}
