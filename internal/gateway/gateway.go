// Package gateway runs websocket sessions: presence transitions on
// connect and disconnect, roster and status broadcasts, and dispatch of
// client events to the messaging services.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/signalbox/internal/identity"
	"github.com/zulandar/signalbox/internal/messaging"
	"github.com/zulandar/signalbox/internal/metrics"
	"github.com/zulandar/signalbox/internal/models"
	"github.com/zulandar/signalbox/internal/presence"
	"github.com/zulandar/signalbox/internal/protocol"
)

// Sender routes private messages.
type Sender interface {
	Send(ctx context.Context, sender identity.Identity, receiverID uint, content string) (*models.Message, error)
}

// HistoryService serves conversations and read receipts.
type HistoryService interface {
	Chat(ctx context.Context, requester identity.Identity, otherID uint) (protocol.ChatHistory, error)
	MarkRead(ctx context.Context, requester, senderID uint) (int64, error)
}

// UnreadCounter reports unread counts.
type UnreadCounter interface {
	Counts(ctx context.Context, id uint) (protocol.UnreadCounts, error)
}

// Opts holds parameters for creating a Gateway.
type Opts struct {
	Registry      *presence.Registry
	Directory     identity.Directory
	Sender        Sender
	History       HistoryService
	Unread        UnreadCounter
	Conn          ConnOpts
	SweepSchedule string // cron expression or descriptor for the liveness sweep (default "@every 30s")
	Logger        zerolog.Logger
	Now           func() time.Time // for testing
}

// Gateway owns the session lifecycle.
type Gateway struct {
	registry *presence.Registry
	dir      identity.Directory
	sender   Sender
	history  HistoryService
	unread   UnreadCounter
	connOpts ConnOpts
	schedule string
	log      zerolog.Logger
	now      func() time.Time

	// bmu serializes presence transitions with the broadcasts they trigger,
	// so every session sees rosters and status changes in one global order.
	// Held only around registry updates and non-blocking pushes.
	bmu sync.Mutex
}

// New creates a Gateway.
func New(opts Opts) (*Gateway, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("gateway: registry is required")
	}
	if opts.Directory == nil {
		return nil, fmt.Errorf("gateway: directory is required")
	}
	if opts.Sender == nil || opts.History == nil || opts.Unread == nil {
		return nil, fmt.Errorf("gateway: sender, history and unread services are required")
	}
	if opts.SweepSchedule == "" {
		opts.SweepSchedule = "@every 30s"
	}
	if _, err := sweepParser.Parse(opts.SweepSchedule); err != nil {
		return nil, fmt.Errorf("gateway: sweep schedule %q: %w", opts.SweepSchedule, err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Conn.defaults()
	return &Gateway{
		registry: opts.Registry,
		dir:      opts.Directory,
		sender:   opts.Sender,
		history:  opts.History,
		unread:   opts.Unread,
		connOpts: opts.Conn,
		schedule: opts.SweepSchedule,
		log:      opts.Logger,
		now:      opts.Now,
	}, nil
}

// Session is one connection's view of the gateway. It moves from connected
// to disconnected exactly once.
type Session struct {
	ident  *identity.Identity
	handle presence.Handle

	mu        sync.Mutex
	connected bool
}

// Identity returns the session's identity; ok is false for anonymous sessions.
func (s *Session) Identity() (identity.Identity, bool) {
	if s.ident == nil {
		return identity.Identity{}, false
	}
	return *s.ident, true
}

// Connected reports whether Disconnect has not yet run.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Connect starts a session on h. A nil ident is an anonymous session: it is
// accepted but never registered and triggers no broadcasts.
func (g *Gateway) Connect(ctx context.Context, ident *identity.Identity, h presence.Handle) *Session {
	sess := &Session{handle: h, connected: true}
	if ident == nil || ident.ID == 0 {
		metrics.Connections.WithLabelValues("anonymous").Inc()
		g.log.Debug().Str("conn", h.Key()).Msg("anonymous session")
		return sess
	}
	id := *ident
	sess.ident = &id
	metrics.Connections.WithLabelValues("authenticated").Inc()
	log := g.log.With().Uint("user_id", id.ID).Str("conn", h.Key()).Logger()

	all, dirErr := g.dir.All(ctx)
	if dirErr != nil {
		log.Error().Err(dirErr).Msg("connect: load directory")
	}

	g.bmu.Lock()
	if prev := g.registry.Register(id.ID, h); prev != nil {
		log.Info().Str("replaced", prev.Key()).Msg("connection replaced")
	}
	metrics.OnlineUsers.Set(float64(g.registry.Len()))
	online := g.registry.Snapshot()
	if dirErr == nil {
		g.pushRosters(all, online)
	}
	g.pushStatus(id, true, online)
	g.bmu.Unlock()

	counts, err := g.unread.Counts(ctx, id.ID)
	if err != nil {
		log.Error().Err(err).Msg("connect: unread counts")
	} else {
		g.push(h, counts)
	}
	log.Info().Msg("connected")
	return sess
}

// Disconnect ends sess. Offline broadcasts go out only when sess still held
// the identity's registration; a session already replaced by a newer
// connection leaves presence untouched.
func (g *Gateway) Disconnect(ctx context.Context, sess *Session) {
	sess.mu.Lock()
	if !sess.connected {
		sess.mu.Unlock()
		return
	}
	sess.connected = false
	sess.mu.Unlock()

	if sess.ident == nil {
		return
	}
	id := *sess.ident
	log := g.log.With().Uint("user_id", id.ID).Str("conn", sess.handle.Key()).Logger()

	all, dirErr := g.dir.All(ctx)
	if dirErr != nil {
		log.Error().Err(dirErr).Msg("disconnect: load directory")
	}

	g.bmu.Lock()
	removed := g.registry.Unregister(id.ID, sess.handle)
	if removed {
		metrics.OnlineUsers.Set(float64(g.registry.Len()))
		online := g.registry.Snapshot()
		if dirErr == nil {
			g.pushRosters(all, online)
		}
		g.pushStatus(id, false, online)
	}
	g.bmu.Unlock()

	if removed {
		log.Info().Msg("disconnected")
	} else {
		log.Debug().Msg("stale session closed")
	}
}

// Dispatch handles one client event for sess. Failures are logged; nothing
// is reported back to the client.
func (g *Gateway) Dispatch(ctx context.Context, sess *Session, evt protocol.ClientEvent) {
	kind := string(evt.Kind())
	if sess.ident == nil || !sess.Connected() {
		metrics.RejectedRequests.WithLabelValues(kind).Inc()
		g.log.Debug().Str("conn", sess.handle.Key()).Str("event", kind).Msg("event from anonymous session ignored")
		return
	}
	metrics.EventsReceived.WithLabelValues(kind).Inc()
	me := *sess.ident

	var err error
	switch e := evt.(type) {
	case protocol.GetOnlineUsers:
		var all []identity.Identity
		if all, err = g.dir.All(ctx); err == nil {
			g.push(sess.handle, protocol.OnlineUsers{Users: buildRoster(all, me.ID, g.registry.Snapshot())})
		}
	case protocol.PrivateMessage:
		_, err = g.sender.Send(ctx, me, e.ReceiverID, e.Content)
	case protocol.GetChatHistory:
		var chat protocol.ChatHistory
		if chat, err = g.history.Chat(ctx, me, e.UserID); err == nil {
			g.push(sess.handle, chat)
		}
	case protocol.MarkAsRead:
		if _, err = g.history.MarkRead(ctx, me.ID, e.SenderID); err == nil {
			var counts protocol.UnreadCounts
			if counts, err = g.unread.Counts(ctx, me.ID); err == nil {
				g.push(sess.handle, counts)
			}
		}
	default:
		err = fmt.Errorf("%w: %T", protocol.ErrUnknownEvent, evt)
	}
	if err != nil {
		g.logDispatchError(me.ID, kind, err)
	}
}

func (g *Gateway) logDispatchError(userID uint, kind string, err error) {
	if errors.Is(err, messaging.ErrRejected) || errors.Is(err, protocol.ErrUnknownEvent) {
		metrics.RejectedRequests.WithLabelValues(kind).Inc()
		g.log.Debug().Err(err).Uint("user_id", userID).Str("event", kind).Msg("request rejected")
		return
	}
	g.log.Error().Err(err).Uint("user_id", userID).Str("event", kind).Msg("request failed")
}

// pushRosters sends every online identity its own roster view.
func (g *Gateway) pushRosters(all []identity.Identity, online map[uint]presence.Handle) {
	for id, h := range online {
		g.push(h, protocol.OnlineUsers{Users: buildRoster(all, id, online)})
	}
}

// pushStatus tells every online identity other than ident about its change.
func (g *Gateway) pushStatus(ident identity.Identity, isOnline bool, online map[uint]presence.Handle) {
	evt := protocol.UserStatusChanged{
		UserID:    ident.ID,
		Username:  ident.Username,
		IsOnline:  isOnline,
		Timestamp: protocol.FormatTime(g.now()),
	}
	for id, h := range online {
		if id == ident.ID {
			continue
		}
		g.push(h, evt)
	}
}

func (g *Gateway) push(h presence.Handle, evt protocol.Event) {
	if err := h.Push(evt); err != nil {
		g.log.Debug().Err(err).Str("conn", h.Key()).Str("event", string(evt.Kind())).Msg("push failed")
	}
}

// buildRoster lists every identity except viewer, online first, then by
// username.
func buildRoster(all []identity.Identity, viewer uint, online map[uint]presence.Handle) []protocol.RosterEntry {
	entries := make([]protocol.RosterEntry, 0, len(all))
	for _, ident := range all {
		if ident.ID == viewer {
			continue
		}
		_, isOnline := online[ident.ID]
		entries = append(entries, protocol.RosterEntry{
			ID:       ident.ID,
			Username: ident.Username,
			Role:     ident.Role,
			Avatar:   ident.Avatar,
			IsOnline: isOnline,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsOnline != entries[j].IsOnline {
			return entries[i].IsOnline
		}
		return entries[i].Username < entries[j].Username
	})
	return entries
}
