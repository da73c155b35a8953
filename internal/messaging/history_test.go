package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/zulandar/signalbox/internal/identity"
)

func newHistory(t *testing.T) (*History, *GormStore, func(from, to uint, content string, n int)) {
	t.Helper()
	gormDB := openTestDB(t)
	store := NewGormStore(gormDB)
	h := NewHistory(store, identity.NewGormDirectory(gormDB), zerolog.Nop())
	seed := func(from, to uint, content string, n int) { seedMessage(t, gormDB, from, to, content, n) }
	return h, store, seed
}

func TestGetHistory_MarksIncomingRead(t *testing.T) {
	h, store, seed := newHistory(t)
	ctx := context.Background()
	seed(2, 1, "hola", 0)
	seed(1, 2, "hi", 1)
	seed(2, 1, "que tal", 2)
	seed(3, 1, "unrelated", 3)

	msgs, err := h.GetHistory(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	for _, m := range msgs {
		wantRead := m.SenderID == 2
		if m.Read != wantRead {
			t.Errorf("message %q read = %v, want %v", m.Content, m.Read, wantRead)
		}
	}

	counts, _ := store.UnreadCounts(ctx, 1)
	if counts[2] != 0 || counts[3] != 1 {
		t.Errorf("ana unread = %v, want {3:1}", counts)
	}
}

func TestGetHistory_EmptyConversation(t *testing.T) {
	h, _, _ := newHistory(t)
	msgs, err := h.GetHistory(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("len = %d, want 0", len(msgs))
	}
}

func TestGetHistory_StorageFailure(t *testing.T) {
	boom := errors.New("gone")
	h := NewHistory(failingStore{err: boom}, nil, zerolog.Nop())
	if _, err := h.GetHistory(context.Background(), 1, 2); !errors.Is(err, boom) {
		t.Errorf("err = %v, want storage error", err)
	}
}

func TestChat_RendersSenderNames(t *testing.T) {
	h, _, seed := newHistory(t)
	seed(2, 1, "hola", 0)
	seed(1, 2, "hi", 1)

	chat, err := h.Chat(context.Background(), identity.FromUser(ana), 2)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if chat.OtherUserID != 2 {
		t.Errorf("OtherUserID = %d, want 2", chat.OtherUserID)
	}
	if len(chat.Messages) != 2 {
		t.Fatalf("len = %d, want 2", len(chat.Messages))
	}
	first, second := chat.Messages[0], chat.Messages[1]
	if first.SenderName != "beto" || !first.Read {
		t.Errorf("first = %+v, want beto, read", first)
	}
	if second.SenderName != "ana" || second.Read {
		t.Errorf("second = %+v, want ana, unread", second)
	}
	if first.Timestamp != "2026-01-02 03:04:05" {
		t.Errorf("Timestamp = %q", first.Timestamp)
	}
}

func TestChat_DeletedCounterpart(t *testing.T) {
	h, _, seed := newHistory(t)
	seed(9, 1, "from a removed account", 0)

	chat, err := h.Chat(context.Background(), identity.FromUser(ana), 9)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(chat.Messages) != 1 || chat.Messages[0].SenderName != "" {
		t.Errorf("messages = %+v, want one with empty sender name", chat.Messages)
	}
}

func TestChat_EmptyIsNotNil(t *testing.T) {
	h, _, _ := newHistory(t)
	chat, err := h.Chat(context.Background(), identity.FromUser(ana), 3)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if chat.Messages == nil {
		t.Error("Messages should be an empty slice so it encodes as []")
	}
}

func TestMarkRead(t *testing.T) {
	h, store, seed := newHistory(t)
	ctx := context.Background()
	seed(2, 1, "a", 0)
	seed(2, 1, "b", 1)
	seed(1, 2, "c", 2)

	n, err := h.MarkRead(ctx, 1, 2)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if n != 2 {
		t.Errorf("MarkRead = %d, want 2", n)
	}
	counts, _ := store.UnreadCounts(ctx, 2)
	if counts[1] != 1 {
		t.Errorf("beto unread = %v, ana's message must stay unread", counts)
	}
}

func TestHistory_RejectsZeroIDs(t *testing.T) {
	h, _, _ := newHistory(t)
	ctx := context.Background()
	if _, err := h.GetHistory(ctx, 0, 2); !errors.Is(err, ErrRejected) {
		t.Errorf("GetHistory(0, 2) = %v, want ErrRejected", err)
	}
	if _, err := h.GetHistory(ctx, 1, 0); !errors.Is(err, ErrRejected) {
		t.Errorf("GetHistory(1, 0) = %v, want ErrRejected", err)
	}
	if _, err := h.MarkRead(ctx, 1, 0); !errors.Is(err, ErrRejected) {
		t.Errorf("MarkRead(1, 0) = %v, want ErrRejected", err)
	}
}
