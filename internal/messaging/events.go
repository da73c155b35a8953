package messaging

import (
	"github.com/zulandar/signalbox/internal/models"
	"github.com/zulandar/signalbox/internal/protocol"
)

// NewMessageEvent renders msg for the wire.
func NewMessageEvent(msg models.Message, senderName string) protocol.NewMessage {
	return protocol.NewMessage{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		SenderName: senderName,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Timestamp:  protocol.FormatTime(msg.CreatedAt),
	}
}
