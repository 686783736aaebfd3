// Package poller implements the foreground/background-aware scheduled
// check used for live-update feeds. A poller is a small state machine
// with two states, Stopped and Running, and three transitions: start,
// stop and tick. Backgrounding the page stops the schedule outright;
// foregrounding restarts it with an immediate out-of-cycle check.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/livefir/livenav/internal/kv"
	"github.com/livefir/livenav/internal/metrics"
)

// State is the poller's scheduling state.
type State int

const (
	// Stopped means no checks fire, regardless of elapsed time.
	Stopped State = iota
	// Running means checks fire on every tick of the schedule.
	Running
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Default checkpoint policy constants. A reload within GraceWindow of
// the persisted checkpoint resumes from it; outside the window the
// checkpoint rewinds by RewindMargin so items created during the
// reload are not missed.
const (
	DefaultGraceWindow  = 5 * time.Minute
	DefaultRewindMargin = 2 * time.Minute
)

// checkpointKeyPrefix is the device-scoped key namespace; the full key
// is the prefix followed by feed kind and optional scope id.
const checkpointKeyPrefix = "lastItemCheck_"

// Notification is one newly observed item reported by the
// notification-check endpoint.
type Notification struct {
	Text                   string    `json:"text"`
	URL                    string    `json:"url"`
	ActorProfilePictureURL string    `json:"actor_profile_picture_url"`
	Timestamp              time.Time `json:"timestamp"`
}

// CheckResult is the outcome of a single "anything since checkpoint"
// query.
type CheckResult struct {
	HasNew        bool
	UnreadCount   int
	Notifications []Notification
}

// CheckFunc issues one check against the feed's endpoint.
type CheckFunc func(ctx context.Context, since time.Time) (CheckResult, error)

// Config describes one poller instance.
type Config struct {
	FeedKind string
	ScopeID  string
	Interval time.Duration

	// GraceWindow and RewindMargin default to the package constants
	// when zero.
	GraceWindow  time.Duration
	RewindMargin time.Duration

	Check CheckFunc
	// OnNew is invoked when a check reports new items. The checkpoint
	// is deliberately not advanced then, so the items are not lost
	// before the user acts.
	OnNew func(CheckResult)

	Store   kv.Store
	Clock   Clock
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Poller is one live-update feed checker.
type Poller struct {
	cfg Config

	mu         sync.Mutex
	state      State
	checkpoint time.Time
	ticker     Ticker
	stop       chan struct{}
	ctx        context.Context
}

// New creates a poller and computes its initial checkpoint from the
// persisted value per the grace-window policy. The schedule is not
// started; call Start.
func New(cfg Config) (*Poller, error) {
	if cfg.Check == nil {
		return nil, fmt.Errorf("poller %q: check function is required", cfg.FeedKind)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("poller %q: store is required", cfg.FeedKind)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("poller %q: interval must be positive", cfg.FeedKind)
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.GraceWindow == 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	if cfg.RewindMargin == 0 {
		cfg.RewindMargin = DefaultRewindMargin
	}

	p := &Poller{cfg: cfg, state: Stopped}
	p.checkpoint = p.initialCheckpoint()
	if err := p.persist(p.checkpoint); err != nil {
		return nil, err
	}
	return p, nil
}

// Key returns the device-scoped storage key for this poller's
// checkpoint.
func (p *Poller) Key() string {
	return checkpointKeyPrefix + p.cfg.FeedKind + p.cfg.ScopeID
}

// initialCheckpoint resumes the persisted checkpoint when it is within
// the grace window, otherwise rewinds from now by the safety margin.
// With nothing persisted the checkpoint starts at now.
func (p *Poller) initialCheckpoint() time.Time {
	now := p.cfg.Clock.Now()

	raw, ok, err := p.cfg.Store.Get(p.Key())
	if err != nil {
		p.cfg.Logger.Warn("poller: failed to read persisted checkpoint",
			"feed", p.cfg.FeedKind, "error", err)
		return now
	}
	if !ok {
		return now
	}
	persisted, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		p.cfg.Logger.Warn("poller: malformed persisted checkpoint",
			"feed", p.cfg.FeedKind, "value", raw)
		return now
	}
	if now.Sub(persisted) <= p.cfg.GraceWindow {
		return persisted
	}
	return now.Add(-p.cfg.RewindMargin)
}

// Start transitions Stopped -> Running and begins the schedule.
// Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startLocked(ctx)
}

func (p *Poller) startLocked(ctx context.Context) {
	if p.state == Running {
		return
	}
	p.state = Running
	p.ctx = ctx
	p.ticker = p.cfg.Clock.NewTicker(p.cfg.Interval)
	p.stop = make(chan struct{})
	go p.run(p.ticker, p.stop)
}

// Stop transitions Running -> Stopped and cancels all future
// scheduled work. Stopping a stopped poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if p.state == Stopped {
		return
	}
	p.state = Stopped
	p.ticker.Stop()
	close(p.stop)
}

func (p *Poller) run(ticker Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			p.CheckNow()
		}
	}
}

// SetVisible applies a page visibility transition. Backgrounding
// stops the schedule entirely; foregrounding moves the checkpoint to
// now, persists it, restarts the schedule and performs one immediate
// out-of-cycle check.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	if !visible {
		p.stopLocked()
		p.mu.Unlock()
		return
	}

	now := p.cfg.Clock.Now()
	p.advanceLocked(now)
	ctx := p.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	p.startLocked(ctx)
	p.mu.Unlock()

	p.CheckNow()
}

// CheckNow performs a single check against the feed endpoint. On "new
// items" the OnNew hook fires and the checkpoint stays put; on "no new
// items" the checkpoint advances to now and is persisted. Failures are
// logged and otherwise ignored; the next tick is the retry.
func (p *Poller) CheckNow() {
	p.mu.Lock()
	if p.state != Running {
		p.mu.Unlock()
		return
	}
	since := p.checkpoint
	ctx := p.ctx
	p.mu.Unlock()

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.IncrementCheck()
	}

	res, err := p.cfg.Check(ctx, since)
	if err != nil {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.IncrementCheckFailure()
		}
		p.cfg.Logger.Warn("poller: check failed",
			"feed", p.cfg.FeedKind, "scope", p.cfg.ScopeID, "error", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// The poller may have been stopped or acknowledged while the
	// request was in flight; a response for a dead schedule must not
	// mutate state.
	if p.state != Running || !p.checkpoint.Equal(since) {
		return
	}

	if res.HasNew {
		if p.cfg.OnNew != nil {
			p.cfg.OnNew(res)
		}
		return
	}
	p.advanceLocked(p.cfg.Clock.Now())
}

// Acknowledge records that the user acted on the "new items"
// indicator: the checkpoint moves to now and is persisted. The caller
// is expected to reload the view afterwards.
func (p *Poller) Acknowledge() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked(p.cfg.Clock.Now())
}

// advanceLocked moves the checkpoint forward, never backward, and
// persists it.
func (p *Poller) advanceLocked(to time.Time) {
	if to.Before(p.checkpoint) {
		return
	}
	p.checkpoint = to
	if err := p.persist(to); err != nil {
		p.cfg.Logger.Warn("poller: failed to persist checkpoint",
			"feed", p.cfg.FeedKind, "error", err)
		return
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.IncrementCheckpointAdvance()
	}
}

func (p *Poller) persist(t time.Time) error {
	if err := p.cfg.Store.Set(p.Key(), t.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to persist checkpoint for %q: %w", p.cfg.FeedKind, err)
	}
	return nil
}

// State returns the current scheduling state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Checkpoint returns the current checkpoint.
func (p *Poller) Checkpoint() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkpoint
}
