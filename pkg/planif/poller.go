package planif

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/boreal-data/neige-cli/internal/model"
	"github.com/boreal-data/neige-cli/internal/observability"
	"github.com/boreal-data/neige-cli/internal/store"
)

// PollerOptions configures a Poller.
type PollerOptions struct {
	Client   Client
	Store    store.Store
	Clock    clockwork.Clock // defaults to the real clock
	Interval time.Duration   // defaults to 10 minutes
	Metrics  *observability.Metrics
}

// Poller periodically fetches the feed and records status changes for the
// tracked streets. Ticks never overlap: a tick that fires while the
// previous poll is still running is skipped, and a failed poll leaves the
// last known statuses in place until the next tick.
type Poller struct {
	client   Client
	store    store.Store
	clock    clockwork.Clock
	interval time.Duration
	metrics  *observability.Metrics

	mu        sync.Mutex
	polling   bool
	latest    map[int]model.SnowStatus
	available bool
	lastPoll  time.Time
}

// NewPoller creates a Poller. Run starts the loop.
func NewPoller(opts PollerOptions) *Poller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Interval == 0 {
		opts.Interval = 10 * time.Minute
	}
	return &Poller{
		client:   opts.Client,
		store:    opts.Store,
		clock:    opts.Clock,
		interval: opts.Interval,
		metrics:  opts.Metrics,
		latest:   make(map[int]model.SnowStatus),
	}
}

// Run polls once immediately, then on every interval tick until the
// context is cancelled. It always returns the context's error.
func (p *Poller) Run(ctx context.Context) error {
	p.tick(ctx)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if err := p.Poll(ctx); err != nil && !eris.Is(err, errPollInProgress) {
		zap.L().Warn("planif: poll failed, keeping last known statuses", zap.Error(err))
	}
}

var errPollInProgress = eris.New("poll already in progress")

// Poll performs one fetch-and-record cycle. When a cycle is already
// running the call is skipped rather than queued.
func (p *Poller) Poll(ctx context.Context) error {
	p.mu.Lock()
	if p.polling {
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.Polls.WithLabelValues("skipped").Inc()
		}
		zap.L().Debug("planif: poll still running, skipping tick")
		return errPollInProgress
	}
	p.polling = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.polling = false
		p.mu.Unlock()
	}()

	tracked, err := p.store.ListStreets(ctx)
	if err != nil {
		p.finish(false)
		return eris.Wrap(err, "list tracked streets")
	}

	statuses, err := p.client.Statuses(ctx)
	if err != nil {
		p.finish(false)
		return err
	}

	byStreet := make(map[int]model.SnowStatus, len(statuses))
	for _, st := range statuses {
		byStreet[st.StreetID] = st
	}

	recorded := 0
	for _, street := range tracked {
		st, ok := byStreet[street.StreetID]
		if !ok {
			continue
		}
		if p.unchanged(st) {
			continue
		}
		if err := p.store.RecordStatus(ctx, st); err != nil {
			zap.L().Warn("planif: record status failed",
				zap.Int("street_id", st.StreetID),
				zap.Error(err),
			)
			continue
		}
		recorded++
	}

	p.mu.Lock()
	for id, st := range byStreet {
		p.latest[id] = st
	}
	tracked2 := len(p.latest)
	p.mu.Unlock()

	p.finish(true)
	if p.metrics != nil {
		p.metrics.StatusesTracked.Set(float64(tracked2))
	}
	zap.L().Debug("planif: poll complete",
		zap.Int("feed_entries", len(statuses)),
		zap.Int("recorded", recorded),
	)
	return nil
}

// unchanged reports whether the feed entry matches what we already hold,
// so unchanged statuses do not pile up in history.
func (p *Poller) unchanged(st model.SnowStatus) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, ok := p.latest[st.StreetID]
	if !ok {
		return false
	}
	return prev.Code == st.Code && equalTime(prev.LastUpdated, st.LastUpdated)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (p *Poller) finish(ok bool) {
	p.mu.Lock()
	p.available = ok
	p.lastPoll = p.clock.Now().UTC()
	p.mu.Unlock()

	if p.metrics == nil {
		return
	}
	if ok {
		p.metrics.Polls.WithLabelValues("success").Inc()
		p.metrics.FeedAvailable.Set(1)
	} else {
		p.metrics.Polls.WithLabelValues("error").Inc()
		p.metrics.FeedAvailable.Set(0)
	}
}

// Latest returns the last status seen for the street, if any.
func (p *Poller) Latest(streetID int) (model.SnowStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.latest[streetID]
	return st, ok
}

// Available reports whether the most recent poll succeeded.
func (p *Poller) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// LastPoll returns when the most recent poll finished.
func (p *Poller) LastPoll() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPoll
}
