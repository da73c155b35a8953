package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/zulandar/signalbox/internal/db"
	"github.com/zulandar/signalbox/internal/gateway"
	"github.com/zulandar/signalbox/internal/identity"
	"github.com/zulandar/signalbox/internal/messaging"
	"github.com/zulandar/signalbox/internal/models"
	"github.com/zulandar/signalbox/internal/notify"
	"github.com/zulandar/signalbox/internal/presence"
	"github.com/zulandar/signalbox/internal/protocol"
)

const testSecret = "test-secret"

type nopQueue struct{}

func (nopQueue) Enqueue(notify.Notification) error { return nil }

type testServer struct {
	srv      *Server
	registry *presence.Registry
}

func newTestServer(t *testing.T, origins []string, checks ...HealthCheck) *testServer {
	t.Helper()
	gormDB, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrateAll(gormDB); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	users := []models.User{{ID: 1, Username: "ana", Role: "admin"}, {ID: 2, Username: "beto", Role: "tecnico"}}
	if err := gormDB.Create(&users).Error; err != nil {
		t.Fatalf("seed users: %v", err)
	}
	msgs := []models.Message{
		{SenderID: 2, ReceiverID: 1, Content: "a", CreatedAt: time.Now()},
		{SenderID: 2, ReceiverID: 1, Content: "b", CreatedAt: time.Now()},
	}
	if err := gormDB.Create(&msgs).Error; err != nil {
		t.Fatalf("seed messages: %v", err)
	}

	registry := presence.NewRegistry()
	dir := identity.NewGormDirectory(gormDB)
	store := messaging.NewGormStore(gormDB)
	router, err := messaging.NewRouter(messaging.RouterOpts{
		Store: store, Registry: registry, Directory: dir, Notifier: nopQueue{}, Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	unread := messaging.NewUnread(store)
	gw, err := gateway.New(gateway.Opts{
		Registry:  registry,
		Directory: dir,
		Sender:    router,
		History:   messaging.NewHistory(store, dir, zerolog.Nop()),
		Unread:    unread,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	srv, err := New(Opts{
		DB:             gormDB,
		Gateway:        gw,
		Auth:           identity.NewTokenAuthenticator(testSecret, "session_token", dir),
		Unread:         unread,
		AllowedOrigins: origins,
		Checks:         checks,
		Logger:         zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testServer{srv: srv, registry: registry}
}

func token(t *testing.T, id uint) string {
	t.Helper()
	tok, err := identity.Issue(testSecret, id, jwt.RegisteredClaims{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Opts{})
	if err == nil || !strings.Contains(err.Error(), "db is required") {
		t.Errorf("err = %v, want db is required", err)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", w.Code, w.Body)
	}

	failing := newTestServer(t, nil, HealthCheck{Name: "redis", Check: func(context.Context) error {
		return errors.New("connection refused")
	}})
	w = httptest.NewRecorder()
	failing.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), "redis: connection refused") {
		t.Errorf("body = %s", w.Body)
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, nil)
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "signalbox_online_users") {
		t.Error("metrics output missing signalbox_online_users")
	}
}

func TestUnread(t *testing.T) {
	ts := newTestServer(t, nil)

	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/unread", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/unread", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, 1))
	w = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body)
	}
	var body struct {
		Total    int64            `json:"total"`
		BySender map[string]int64 `json:"by_sender"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 || body.BySender["2"] != 2 {
		t.Errorf("body = %+v, want total 2 from sender 2", body)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env protocol.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func TestWebsocket_AuthenticatedSession(t *testing.T) {
	ts := newTestServer(t, nil)
	httpSrv := httptest.NewServer(ts.srv.Handler())
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws?token=" + token(t, 1)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if env := readEvent(t, conn); env.Event != protocol.KindOnlineUsers {
		t.Errorf("first event = %q, want online_users", env.Event)
	}
	env := readEvent(t, conn)
	if env.Event != protocol.KindUnreadCounts || string(env.Data) != `{"2":2}` {
		t.Errorf("second event = %s %s, want unread_counts {\"2\":2}", env.Event, env.Data)
	}
	if !ts.registry.IsOnline(1) {
		t.Error("ana not registered")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"mark_as_read","data":{"sender_id":2}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	env = readEvent(t, conn)
	if env.Event != protocol.KindUnreadCounts || string(env.Data) != `{}` {
		t.Errorf("after mark_as_read = %s %s, want empty unread_counts", env.Event, env.Data)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for ts.registry.IsOnline(1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ts.registry.IsOnline(1) {
		t.Error("ana still registered after closing")
	}
}

func TestWebsocket_AnonymousAccepted(t *testing.T) {
	ts := newTestServer(t, nil)
	httpSrv := httptest.NewServer(ts.srv.Handler())
	defer httpSrv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Errorf("status = %d, want 101", resp.StatusCode)
	}
	if ts.registry.Len() != 0 {
		t.Errorf("registry len = %d, want 0", ts.registry.Len())
	}
}

func TestWebsocket_OriginRejected(t *testing.T) {
	ts := newTestServer(t, []string{"https://helpdesk.example.com"})
	httpSrv := httptest.NewServer(ts.srv.Handler())
	defer httpSrv.Close()

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http")+"/ws", header)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("resp = %v, want 403", resp)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"no origin header", nil, "", "chat.example.com", true},
		{"same origin", nil, "https://chat.example.com", "chat.example.com", true},
		{"cross origin default", nil, "https://other.example.com", "chat.example.com", false},
		{"allowed origin", []string{"https://helpdesk.example.com/"}, "https://HelpDesk.example.com", "chat.example.com", true},
		{"not allowed", []string{"https://helpdesk.example.com"}, "https://other.example.com", "chat.example.com", false},
		{"wildcard", []string{"*"}, "https://anything.example.com", "chat.example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("originChecker = %v, want %v", got, tt.want)
			}
		})
	}
}
