package gateway

import (
	"context"

	"github.com/robfig/cron/v3"
)

// sweepParser accepts 5-field cron expressions and descriptors like "@every 30s".
var sweepParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// pinger is a handle that can be probed for liveness.
type pinger interface {
	Ping() error
	Close() error
}

// Sweep pings every registered connection and closes the ones that fail.
// Closing ends the session's read loop, which runs the normal disconnect.
// It returns the number of connections closed.
func (g *Gateway) Sweep() int {
	closed := 0
	for id, h := range g.registry.Snapshot() {
		p, ok := h.(pinger)
		if !ok {
			continue
		}
		if err := p.Ping(); err != nil {
			g.log.Info().Err(err).Uint("user_id", id).Str("conn", h.Key()).Msg("sweep: closing dead connection")
			p.Close()
			closed++
		}
	}
	return closed
}

// RunSweep runs Sweep on the configured schedule until ctx is cancelled.
func (g *Gateway) RunSweep(ctx context.Context) error {
	c := cron.New(cron.WithParser(sweepParser))
	if _, err := c.AddFunc(g.schedule, func() { g.Sweep() }); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
