// Package poller fetches the group roster over HTTP while the socket is down.
package poller

import (
	"context"
	"sync"
	"time"

	"group-ride/internal/mylogger"
	"group-ride/internal/websocketdto"
)

const DefaultInterval = 3 * time.Second

type Fetcher interface {
	FetchRoster(ctx context.Context, groupID string) (websocketdto.GroupMemberUpdate, error)
}

type Result struct {
	Snapshot websocketdto.GroupMemberUpdate
	Err      error
}

type Poller struct {
	fetch    Fetcher
	groupID  string
	interval time.Duration
	mylog    mylogger.Logger
	results  chan Result

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(fetch Fetcher, groupID string, interval time.Duration, mylog mylogger.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetch:    fetch,
		groupID:  groupID,
		interval: interval,
		mylog:    mylog.With("group_id", groupID),
		results:  make(chan Result, 1),
	}
}

func (p *Poller) Results() <-chan Result { return p.results }

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Start polls right away and then every interval until Stop. Starting a
// running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	p.mylog.Action("poller_started").Debug("roster polling started")
}

// Stop returns once the loop has exited; no result is sent after that.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.mylog.Action("poller_stopped").Debug("roster polling stopped")
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		snap, err := p.fetch.FetchRoster(ctx, p.groupID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.mylog.Action("poll_failed").Warn("roster poll failed", "error", err)
		}

		select {
		case p.results <- Result{Snapshot: snap, Err: err}:
		case <-ctx.Done():
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
