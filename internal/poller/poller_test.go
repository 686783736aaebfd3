package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/livefir/livenav/internal/kv"
)

// fakeClock drives poll schedules by hand.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	tick chan time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, tick: make(chan time.Time, 1)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeClock) NewTicker(time.Duration) Ticker {
	return &fakeTicker{c: f.tick}
}

type fakeTicker struct {
	c chan time.Time
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()                  {}

func baseTime(t *testing.T) time.Time {
	t.Helper()
	base, err := time.Parse(time.RFC3339, "2026-08-29T10:00:00Z")
	if err != nil {
		t.Fatalf("bad base time: %v", err)
	}
	return base
}

func staticCheck(result CheckResult, err error, count *int64) CheckFunc {
	return func(context.Context, time.Time) (CheckResult, error) {
		if count != nil {
			atomic.AddInt64(count, 1)
		}
		return result, err
	}
}

func TestNew_InitialCheckpointPolicy(t *testing.T) {
	base := baseTime(t)

	tests := []struct {
		name      string
		persisted time.Duration // age of persisted checkpoint; 0 means none
		want      func(now time.Time) time.Time
	}{
		{
			name: "nothing persisted starts at now",
			want: func(now time.Time) time.Time { return now },
		},
		{
			name:      "within grace window resumes persisted",
			persisted: 3 * time.Minute,
			want:      func(now time.Time) time.Time { return now.Add(-3 * time.Minute) },
		},
		{
			name:      "outside grace window rewinds by margin",
			persisted: 20 * time.Minute,
			want:      func(now time.Time) time.Time { return now.Add(-2 * time.Minute) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := kv.NewSessionStore()
			clock := newFakeClock(base)
			if tt.persisted != 0 {
				stamp := base.Add(-tt.persisted).Format(time.RFC3339)
				if err := store.Set("lastItemCheck_posts", stamp); err != nil {
					t.Fatalf("seed failed: %v", err)
				}
			}

			p, err := New(Config{
				FeedKind: "posts",
				Interval: time.Minute,
				Check:    staticCheck(CheckResult{}, nil, nil),
				Store:    store,
				Clock:    clock,
			})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			want := tt.want(base)
			if !p.Checkpoint().Equal(want) {
				t.Errorf("checkpoint = %v, want %v", p.Checkpoint(), want)
			}

			// The computed checkpoint is persisted immediately.
			raw, ok, _ := store.Get("lastItemCheck_posts")
			if !ok || raw != want.UTC().Format(time.RFC3339) {
				t.Errorf("persisted = (%q, %v), want %q", raw, ok, want.UTC().Format(time.RFC3339))
			}
		})
	}
}

func TestPoller_KeyLayout(t *testing.T) {
	store := kv.NewSessionStore()
	p, err := New(Config{
		FeedKind: "posts",
		ScopeID:  "_group_5",
		Interval: time.Minute,
		Check:    staticCheck(CheckResult{}, nil, nil),
		Store:    store,
		Clock:    newFakeClock(baseTime(t)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := p.Key(); got != "lastItemCheck_posts_group_5" {
		t.Errorf("key = %q", got)
	}
}

func TestPoller_StateMachine(t *testing.T) {
	p, err := New(Config{
		FeedKind: "posts",
		Interval: time.Minute,
		Check:    staticCheck(CheckResult{}, nil, nil),
		Store:    kv.NewSessionStore(),
		Clock:    newFakeClock(baseTime(t)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if p.State() != Stopped {
		t.Error("new poller should be stopped")
	}
	p.Start(context.Background())
	if p.State() != Running {
		t.Error("poller should run after Start")
	}
	p.Start(context.Background()) // idempotent
	if p.State() != Running {
		t.Error("double Start should stay running")
	}
	p.Stop()
	if p.State() != Stopped {
		t.Error("poller should stop after Stop")
	}
	p.Stop() // idempotent
	if p.State() != Stopped {
		t.Error("double Stop should stay stopped")
	}
}

func TestPoller_TickDrivesCheck(t *testing.T) {
	clock := newFakeClock(baseTime(t))
	var checks int64
	p, err := New(Config{
		FeedKind: "posts",
		Interval: time.Minute,
		Check:    staticCheck(CheckResult{}, nil, &checks),
		Store:    kv.NewSessionStore(),
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	p.Start(context.Background())
	defer p.Stop()

	clock.tick <- clock.Now()
	waitFor(t, func() bool { return atomic.LoadInt64(&checks) == 1 })
}

func TestPoller_PauseOnBackground(t *testing.T) {
	clock := newFakeClock(baseTime(t))
	var checks int64
	p, err := New(Config{
		FeedKind: "posts",
		Interval: time.Minute,
		Check:    staticCheck(CheckResult{}, nil, &checks),
		Store:    kv.NewSessionStore(),
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	p.Start(context.Background())
	p.SetVisible(false)
	if p.State() != Stopped {
		t.Fatal("backgrounding should stop the schedule")
	}

	// A tick after backgrounding must not trigger a check, regardless
	// of elapsed time.
	clock.Advance(time.Hour)
	select {
	case clock.tick <- clock.Now():
	default:
	}
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt64(&checks); got != 0 {
		t.Errorf("expected 0 checks while backgrounded, got %d", got)
	}
}

func TestPoller_ForegroundResumesWithImmediateCheck(t *testing.T) {
	clock := newFakeClock(baseTime(t))
	var checks int64
	store := kv.NewSessionStore()
	p, err := New(Config{
		FeedKind: "posts",
		Interval: time.Minute,
		Check:    staticCheck(CheckResult{HasNew: true}, nil, &checks),
		Store:    store,
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	p.Start(context.Background())
	p.SetVisible(false)

	clock.Advance(10 * time.Minute)
	p.SetVisible(true)
	defer p.Stop()

	if p.State() != Running {
		t.Error("foregrounding should restart the schedule")
	}
	if got := atomic.LoadInt64(&checks); got != 1 {
		t.Errorf("expected one immediate out-of-cycle check, got %d", got)
	}
	// Foregrounding moves the checkpoint to now and persists it.
	if !p.Checkpoint().Equal(clock.Now()) {
		t.Errorf("checkpoint = %v, want %v", p.Checkpoint(), clock.Now())
	}
}

func TestCheckNow_Semantics(t *testing.T) {
	base := baseTime(t)

	tests := []struct {
		name        string
		result      CheckResult
		err         error
		wantOnNew   bool
		wantAdvance bool
	}{
		{
			name:        "new items show indicator and hold checkpoint",
			result:      CheckResult{HasNew: true},
			wantOnNew:   true,
			wantAdvance: false,
		},
		{
			name:        "no new items advance checkpoint",
			result:      CheckResult{},
			wantAdvance: true,
		},
		{
			name:        "failure leaves state unchanged",
			err:         errors.New("boom"),
			wantOnNew:   false,
			wantAdvance: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock(base)
			onNewCalled := false
			p, err := New(Config{
				FeedKind: "posts",
				Interval: time.Minute,
				Check:    staticCheck(tt.result, tt.err, nil),
				OnNew:    func(CheckResult) { onNewCalled = true },
				Store:    kv.NewSessionStore(),
				Clock:    clock,
			})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			p.Start(context.Background())
			defer p.Stop()

			before := p.Checkpoint()
			clock.Advance(time.Minute)
			p.CheckNow()

			if onNewCalled != tt.wantOnNew {
				t.Errorf("onNew called = %v, want %v", onNewCalled, tt.wantOnNew)
			}
			advanced := p.Checkpoint().After(before)
			if advanced != tt.wantAdvance {
				t.Errorf("checkpoint advanced = %v, want %v", advanced, tt.wantAdvance)
			}
		})
	}
}

func TestPoller_CheckpointMonotonic(t *testing.T) {
	clock := newFakeClock(baseTime(t))
	hasNew := false
	p, err := New(Config{
		FeedKind: "posts",
		Interval: time.Minute,
		Check: func(context.Context, time.Time) (CheckResult, error) {
			return CheckResult{HasNew: hasNew}, nil
		},
		Store: kv.NewSessionStore(),
		Clock: clock,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	p.Start(context.Background())
	defer p.Stop()

	last := p.Checkpoint()
	steps := []func(){
		func() { clock.Advance(time.Minute); p.CheckNow() },
		func() { hasNew = true; clock.Advance(time.Minute); p.CheckNow() },
		func() { p.SetVisible(false) },
		func() { clock.Advance(time.Hour); p.SetVisible(true) },
		func() { p.Acknowledge() },
		func() { hasNew = false; clock.Advance(time.Minute); p.CheckNow() },
	}
	for i, step := range steps {
		step()
		if p.Checkpoint().Before(last) {
			t.Fatalf("step %d: checkpoint moved backwards from %v to %v", i, last, p.Checkpoint())
		}
		last = p.Checkpoint()
	}
}

func TestPoller_Acknowledge(t *testing.T) {
	clock := newFakeClock(baseTime(t))
	store := kv.NewSessionStore()
	p, err := New(Config{
		FeedKind: "posts",
		Interval: time.Minute,
		Check:    staticCheck(CheckResult{HasNew: true}, nil, nil),
		Store:    store,
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	clock.Advance(5 * time.Minute)
	p.Acknowledge()

	if !p.Checkpoint().Equal(clock.Now()) {
		t.Errorf("checkpoint = %v, want %v", p.Checkpoint(), clock.Now())
	}
	raw, ok, _ := store.Get("lastItemCheck_posts")
	if !ok || raw != clock.Now().UTC().Format(time.RFC3339) {
		t.Errorf("acknowledged checkpoint not persisted: (%q, %v)", raw, ok)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
