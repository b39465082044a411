// Package delivery drives background message retrieval. The relay has
// no push channel, so delivery is polling with adaptive backoff:
// quiet inboxes are polled less often, and any delivered message
// resets the interval.
package delivery

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	InitialInterval   = 2 * time.Second
	MaxBackoff        = 30 * time.Second
	BackoffMultiplier = 1.5
	JitterFactor      = 0.3
)

// FetchFunc performs one full fetch pass and reports how many new
// messages were delivered. Errors are logged and treated as an empty
// pass; the poller keeps running.
type FetchFunc func(ctx context.Context) (int, error)

// Poller repeatedly invokes a fetch function with adaptive backoff.
type Poller struct {
	fetch    FetchFunc
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewPoller creates a poller. A nil logger disables logging.
func NewPoller(fetch FetchFunc, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		fetch:    fetch,
		interval: InitialInterval,
		logger:   logger,
	}
}

// Start launches the poll loop. It is a no-op if already running.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.started = true
	go p.loop(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	for {
		n, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("fetch pass failed", zap.Error(err))
		}

		if n > 0 {
			p.interval = InitialInterval
		} else {
			p.interval = time.Duration(float64(p.interval) * BackoffMultiplier)
			if p.interval > MaxBackoff {
				p.interval = MaxBackoff
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.waitDuration()):
		}
	}
}

// waitDuration adds jitter to avoid synchronized polling across
// clients sharing a relay.
func (p *Poller) waitDuration() time.Duration {
	jitter := time.Duration(rand.Float64() * JitterFactor * float64(p.interval))
	return p.interval + jitter
}
