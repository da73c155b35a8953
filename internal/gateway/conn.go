package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/zulandar/signalbox/internal/protocol"
)

var (
	// ErrConnClosed is returned by Push after the connection has closed.
	ErrConnClosed = errors.New("gateway: connection closed")
	// ErrSendBufferFull is returned by Push when the outbound queue is full.
	ErrSendBufferFull = errors.New("gateway: send buffer full")
)

// maxFrameSize bounds inbound frames.
const maxFrameSize = 1 << 20

// wsConn abstracts the *websocket.Conn methods we use, enabling test fakes.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// ConnOpts tunes a Conn.
type ConnOpts struct {
	SendBuffer   int           // queued outbound events (default 64)
	WriteTimeout time.Duration // per-frame write deadline (default 5s)
	PongWait     time.Duration // read deadline, extended by pongs and frames (default 60s)
}

func (o *ConnOpts) defaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
}

// Conn is a websocket session handle. Events pushed to it are written in
// order by a single write pump; Push itself never blocks.
type Conn struct {
	key  string
	ws   wsConn
	out  chan []byte
	opts ConnOpts
	log  zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps ws. Call Start to begin writing.
func NewConn(ws wsConn, opts ConnOpts, logger zerolog.Logger) *Conn {
	opts.defaults()
	key := uuid.NewString()
	return &Conn{
		key:  key,
		ws:   ws,
		out:  make(chan []byte, opts.SendBuffer),
		opts: opts,
		log:  logger.With().Str("conn", key).Logger(),
		done: make(chan struct{}),
	}
}

// Key implements presence.Handle.
func (c *Conn) Key() string { return c.key }

// Push implements presence.Handle.
func (c *Conn) Push(evt protocol.Event) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	frame, err := protocol.Encode(evt)
	if err != nil {
		return err
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Start launches the write pump.
func (c *Conn) Start() {
	go c.writePump()
}

func (c *Conn) writePump() {
	for {
		select {
		case frame := <-c.out:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.fail(err)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.fail(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) fail(err error) {
	c.log.Debug().Err(err).Msg("write failed, closing connection")
	c.Close()
}

// Ping sends a ping control frame. It is safe to call concurrently with the
// write pump.
func (c *Conn) Ping() error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
}

// Close closes the connection; pending events are discarded. A blocked
// read returns with an error. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// prepareRead sets the frame limit and arms the liveness deadline.
func (c *Conn) prepareRead() {
	c.ws.SetReadLimit(maxFrameSize)
	c.extendDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})
}

func (c *Conn) extendDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
}

// read returns the next text frame.
func (c *Conn) read() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		c.extendDeadline()
		if mt == websocket.TextMessage {
			return data, nil
		}
	}
}
