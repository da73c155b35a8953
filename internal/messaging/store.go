// Package messaging persists private messages and routes them to their
// recipients: live over a registered connection, or through an offline
// notification.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/signalbox/internal/models"
	"gorm.io/gorm"
)

// ErrRejected marks a request that is silently ignored: zero ids, empty
// content, or an unknown receiver.
var ErrRejected = errors.New("messaging: request rejected")

// Store is the durable message log.
type Store interface {
	// Append persists msg with read=false and fills in its ID.
	Append(ctx context.Context, msg *models.Message) error
	// Conversation returns every message between a and b in either
	// direction, in persist order (ascending id). It never modifies read flags.
	Conversation(ctx context.Context, a, b uint) ([]models.Message, error)
	// ReadConversation returns the conversation like Conversation and, in the
	// same transaction, marks the messages other sent to reader as read. Only
	// rows up to the last one returned are touched.
	ReadConversation(ctx context.Context, reader, other uint) ([]models.Message, error)
	// MarkRead marks every unread message from sender to reader as read.
	MarkRead(ctx context.Context, reader, sender uint) (int64, error)
	// UnreadCounts returns unread message counts for reader grouped by sender.
	// Senders with nothing unread are absent.
	UnreadCounts(ctx context.Context, reader uint) (map[uint]int64, error)
}

// GormStore implements Store over the chat_messages table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Append implements Store.
func (s *GormStore) Append(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Read = false
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("messaging: append: %w", err)
	}
	return nil
}

// Conversation implements Store.
func (s *GormStore) Conversation(ctx context.Context, a, b uint) ([]models.Message, error) {
	var msgs []models.Message
	if err := conversation(s.db.WithContext(ctx), a, b).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("messaging: conversation %d/%d: %w", a, b, err)
	}
	return msgs, nil
}

// ReadConversation implements Store.
func (s *GormStore) ReadConversation(ctx context.Context, reader, other uint) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := conversation(tx, reader, other).Find(&msgs).Error; err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}

		var upTo uint
		for _, m := range msgs {
			if m.ID > upTo {
				upTo = m.ID
			}
		}
		// Messages that arrive after the select stay unread.
		result := tx.Model(&models.Message{}).
			Where(map[string]any{"receiver_id": reader, "sender_id": other, "read": false}).
			Where("id <= ?", upTo).
			Update("read", true)
		if result.Error != nil {
			return result.Error
		}
		for i := range msgs {
			if msgs[i].ReceiverID == reader && msgs[i].SenderID == other {
				msgs[i].Read = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: read conversation %d/%d: %w", reader, other, err)
	}
	return msgs, nil
}

// MarkRead implements Store.
func (s *GormStore) MarkRead(ctx context.Context, reader, sender uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Message{}).
		Where(map[string]any{"receiver_id": reader, "sender_id": sender, "read": false}).
		Update("read", true)
	if result.Error != nil {
		return 0, fmt.Errorf("messaging: mark read %d from %d: %w", reader, sender, result.Error)
	}
	return result.RowsAffected, nil
}

// UnreadCounts implements Store.
func (s *GormStore) UnreadCounts(ctx context.Context, reader uint) (map[uint]int64, error) {
	var rows []struct {
		SenderID uint
		Count    int64
	}
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Select("sender_id, COUNT(*) AS count").
		Where(map[string]any{"receiver_id": reader, "read": false}).
		Group("sender_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("messaging: unread counts %d: %w", reader, err)
	}

	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.SenderID] = r.Count
	}
	return counts, nil
}

// conversation scopes q to the messages exchanged between a and b.
func conversation(q *gorm.DB, a, b uint) *gorm.DB {
	return q.Model(&models.Message{}).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("id ASC")
}
