// Package protocol defines the event frames exchanged between chat clients
// and the server. Every frame is an envelope {"event": name, "data": payload};
// each event name maps to exactly one Go type.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimeLayout is the wire format of every timestamp.
const TimeLayout = "2006-01-02 15:04:05"

var (
	// ErrUnknownEvent is returned by Decode for an event name with no client variant.
	ErrUnknownEvent = errors.New("protocol: unknown event")
	// ErrMalformed is returned by Decode when a frame or payload does not parse.
	ErrMalformed = errors.New("protocol: malformed frame")
)

// Kind is an event name.
type Kind string

// Client → server events. connect and disconnect are transport lifecycle
// events and never appear as frames.
const (
	KindGetOnlineUsers Kind = "get_online_users"
	KindPrivateMessage Kind = "private_message"
	KindGetChatHistory Kind = "get_chat_history"
	KindMarkAsRead     Kind = "mark_as_read"
)

// Server → client events.
const (
	KindOnlineUsers       Kind = "online_users"
	KindUserStatusChanged Kind = "user_status_changed"
	KindUnreadCounts      Kind = "unread_counts"
	KindNewMessage        Kind = "new_message"
	KindChatHistory       Kind = "chat_history"
)

// Envelope is the frame wrapping every event.
type Envelope struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientEvent is implemented only by the client variants in this package.
type ClientEvent interface {
	Kind() Kind
	clientEvent()
}

// Event is implemented only by the server variants in this package.
type Event interface {
	Kind() Kind
	serverEvent()
}

// FormatTime renders t in the wire timestamp format, in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Decode parses a client frame into its variant.
func Decode(frame []byte) (ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var evt ClientEvent
	switch env.Event {
	case KindGetOnlineUsers:
		evt = &GetOnlineUsers{}
	case KindPrivateMessage:
		evt = &PrivateMessage{}
	case KindGetChatHistory:
		evt = &GetChatHistory{}
	case KindMarkAsRead:
		evt = &MarkAsRead{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, evt); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
		}
	}
	return deref(evt), nil
}

// deref returns client variants by value so callers switch on value types.
func deref(evt ClientEvent) ClientEvent {
	switch e := evt.(type) {
	case *GetOnlineUsers:
		return *e
	case *PrivateMessage:
		return *e
	case *GetChatHistory:
		return *e
	case *MarkAsRead:
		return *e
	}
	return evt
}

// Encode wraps a server event in its envelope.
func Encode(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", evt.Kind(), err)
	}
	out, err := json.Marshal(Envelope{Event: evt.Kind(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", evt.Kind(), err)
	}
	return out, nil
}
