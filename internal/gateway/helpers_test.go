package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/signalbox/internal/db"
	"github.com/zulandar/signalbox/internal/identity"
	"github.com/zulandar/signalbox/internal/messaging"
	"github.com/zulandar/signalbox/internal/models"
	"github.com/zulandar/signalbox/internal/notify"
	"github.com/zulandar/signalbox/internal/presence"
	"github.com/zulandar/signalbox/internal/protocol"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

var (
	ana   = identity.Identity{ID: 1, Username: "ana", Role: "admin", Avatar: "profile_admin.png"}
	beto  = identity.Identity{ID: 2, Username: "beto", Role: "tecnico", Avatar: "profile_tecnico.png"}
	carla = identity.Identity{ID: 3, Username: "carla", Role: "usuario", Avatar: "profile_usuario.png"}
	dave  = identity.Identity{ID: 4, Username: "dave", Role: "usuario", Avatar: "profile_usuario.png"}
)

type fixture struct {
	db       *gorm.DB
	registry *presence.Registry
	queue    *fakeQueue
	gw       *Gateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gormDB, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrateAll(gormDB); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	users := []models.User{
		{ID: 1, Username: "ana", Role: "admin"},
		{ID: 2, Username: "beto", Role: "tecnico"},
		{ID: 3, Username: "carla", Role: "usuario"},
		{ID: 4, Username: "dave", Role: "usuario"},
	}
	if err := gormDB.Create(&users).Error; err != nil {
		t.Fatalf("seed users: %v", err)
	}

	f := &fixture{db: gormDB, registry: presence.NewRegistry(), queue: &fakeQueue{}}
	dir := identity.NewGormDirectory(gormDB)
	store := messaging.NewGormStore(gormDB)
	router, err := messaging.NewRouter(messaging.RouterOpts{
		Store:     store,
		Registry:  f.registry,
		Directory: dir,
		Notifier:  f.queue,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	gw, err := New(Opts{
		Registry:  f.registry,
		Directory: dir,
		Sender:    router,
		History:   messaging.NewHistory(store, dir, zerolog.Nop()),
		Unread:    messaging.NewUnread(store),
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.gw = gw
	return f
}

func (f *fixture) connect(t *testing.T, ident identity.Identity) (*Session, *fakeHandle) {
	t.Helper()
	h := newFakeHandle(fmt.Sprintf("%s-%d", ident.Username, time.Now().UnixNano()))
	return f.gw.Connect(context.Background(), &ident, h), h
}

func (f *fixture) seedMessage(t *testing.T, from, to uint, content string) {
	t.Helper()
	msg := models.Message{SenderID: from, ReceiverID: to, Content: content, CreatedAt: testNow}
	if err := f.db.Create(&msg).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
}

// --- Fakes ---

type fakeHandle struct {
	key     string
	pingErr error

	mu     sync.Mutex
	events []protocol.Event
	closed bool
}

func newFakeHandle(key string) *fakeHandle { return &fakeHandle{key: key} }

func (h *fakeHandle) Key() string { return h.key }

func (h *fakeHandle) Push(evt protocol.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrConnClosed
	}
	h.events = append(h.events, evt)
	return nil
}

func (h *fakeHandle) Ping() error { return h.pingErr }

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) received() []protocol.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Event(nil), h.events...)
}

func (h *fakeHandle) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
}

// ofType returns the events of type T in arrival order.
func ofType[T protocol.Event](events []protocol.Event) []T {
	var out []T
	for _, e := range events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type fakeQueue struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (q *fakeQueue) Enqueue(n notify.Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, n)
	return nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.sent)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
