package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/signalbox/internal/db"
	"github.com/zulandar/signalbox/internal/models"
	"github.com/zulandar/signalbox/internal/notify"
	"github.com/zulandar/signalbox/internal/protocol"
	"gorm.io/gorm"
)

var (
	ana   = models.User{ID: 1, Username: "ana", Email: "ana@example.com", Role: "admin"}
	beto  = models.User{ID: 2, Username: "beto", Email: "beto@example.com", Role: "tecnico"}
	carla = models.User{ID: 3, Username: "carla", Email: "carla@example.com", Role: "usuario"}
)

var baseTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrateAll(gormDB); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	users := []models.User{ana, beto, carla}
	if err := gormDB.Create(&users).Error; err != nil {
		t.Fatalf("seed users: %v", err)
	}
	return gormDB
}

// seedMessage stores a message created n seconds after baseTime.
func seedMessage(t *testing.T, gormDB *gorm.DB, from, to uint, content string, n int) models.Message {
	t.Helper()
	msg := models.Message{
		SenderID:   from,
		ReceiverID: to,
		Content:    content,
		CreatedAt:  baseTime.Add(time.Duration(n) * time.Second),
	}
	if err := gormDB.Create(&msg).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return msg
}

// --- Fakes ---

type fakeHandle struct {
	key string
	err error

	mu     sync.Mutex
	events []protocol.Event
}

func (f *fakeHandle) Key() string { return f.key }

func (f *fakeHandle) Push(evt protocol.Event) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeHandle) received() []protocol.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Event(nil), f.events...)
}

type fakeQueue struct {
	err error

	mu   sync.Mutex
	sent []notify.Notification
}

func (q *fakeQueue) Enqueue(n notify.Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, n)
	return q.err
}

func (q *fakeQueue) notifications() []notify.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]notify.Notification(nil), q.sent...)
}

// failingStore fails every write.
type failingStore struct {
	Store
	err error
}

func (s failingStore) Append(ctx context.Context, msg *models.Message) error { return s.err }

func (s failingStore) ReadConversation(ctx context.Context, reader, other uint) ([]models.Message, error) {
	return nil, s.err
}

func (s failingStore) MarkRead(ctx context.Context, reader, sender uint) (int64, error) {
	return 0, s.err
}

func (s failingStore) UnreadCounts(ctx context.Context, reader uint) (map[uint]int64, error) {
	return nil, s.err
}
