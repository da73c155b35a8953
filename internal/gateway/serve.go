package gateway

import (
	"context"

	"github.com/zulandar/signalbox/internal/identity"
	"github.com/zulandar/signalbox/internal/metrics"
	"github.com/zulandar/signalbox/internal/protocol"
)

// Serve runs a websocket session to completion: it starts the write pump,
// connects, dispatches frames until the connection drops or ctx is
// cancelled, then disconnects and closes. ident is nil for anonymous
// sessions.
func (g *Gateway) Serve(ctx context.Context, ident *identity.Identity, ws wsConn) {
	c := NewConn(ws, g.connOpts, g.log)
	c.Start()
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	c.prepareRead()
	sess := g.Connect(ctx, ident, c)
	defer g.Disconnect(context.WithoutCancel(ctx), sess)

	for {
		frame, err := c.read()
		if err != nil {
			if !c.Closed() {
				g.log.Debug().Err(err).Str("conn", c.Key()).Msg("read ended")
			}
			return
		}
		evt, err := protocol.Decode(frame)
		if err != nil {
			metrics.RejectedRequests.WithLabelValues("malformed").Inc()
			g.log.Debug().Err(err).Str("conn", c.Key()).Msg("dropping frame")
			continue
		}
		g.Dispatch(ctx, sess, evt)
	}
}
