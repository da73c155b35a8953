package messaging

import (
	"context"
	"fmt"

	"github.com/zulandar/signalbox/internal/metrics"
	"github.com/zulandar/signalbox/internal/protocol"
)

// Unread reports per-sender unread counts.
type Unread struct {
	store Store
}

// NewUnread creates an Unread.
func NewUnread(store Store) *Unread {
	return &Unread{store: store}
}

// Counts returns how many unread messages each sender has waiting for id.
func (u *Unread) Counts(ctx context.Context, id uint) (protocol.UnreadCounts, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrRejected)
	}
	counts, err := u.store.UnreadCounts(ctx, id)
	if err != nil {
		metrics.StorageFailures.WithLabelValues("unread").Inc()
		return nil, err
	}
	return protocol.UnreadCounts(counts), nil
}
