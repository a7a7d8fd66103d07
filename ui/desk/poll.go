package desk

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const DefaultPollInterval = 10 * time.Second

// Refresh runs one poll cycle: the chat list (and with it the stats) and,
// when a chat is open, its thread. Both fetches run concurrently; the first
// error is returned after both have finished.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	uid, open := c.session.CurrentUser()
	c.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error { return c.RefreshChats(ctx) })
	if open {
		g.Go(func() error { return c.LoadThread(ctx, uid) })
	}
	return g.Wait()
}

// Poller re-runs Refresh on a fixed interval. Failures are logged by the
// controller and otherwise ignored; the next tick is the only retry.
type Poller struct {
	ctrl     *Controller
	interval time.Duration
}

func NewPoller(ctrl *Controller, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{ctrl: ctrl, interval: interval}
}

func (p *Poller) Interval() time.Duration { return p.interval }

// Run performs an initial refresh, then one per tick until ctx is done.
// A tick never waits for the previous cycle to finish.
func (p *Poller) Run(ctx context.Context) error {
	go p.cycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			go p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	if err := p.ctrl.Refresh(ctx); err != nil && ctx.Err() == nil {
		p.ctrl.log.Debug("poll.cycle_failed", "error", err)
	}
}
