// Package metrics provides simple built-in counters for the
// navigation layer with no external dependencies.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector tracks navigation, pagination, polling and media-channel
// activity.
type Collector struct {
	snapshot Snapshot
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	// Router
	Navigations   int64 `json:"navigations"`
	HardFallbacks int64 `json:"hard_fallbacks"`
	HistoryPops   int64 `json:"history_pops"`
	ContentSwaps  int64 `json:"content_swaps"`

	// Pager
	PagesFetched  int64 `json:"pages_fetched"`
	PageFailures  int64 `json:"page_failures"`
	ItemsAppended int64 `json:"items_appended"`

	// Poller
	ChecksPerformed    int64 `json:"checks_performed"`
	CheckFailures      int64 `json:"check_failures"`
	CheckpointAdvances int64 `json:"checkpoint_advances"`

	// Media channel
	SelectionsDispatched int64 `json:"selections_dispatched"`
	SelectionsDropped    int64 `json:"selections_dropped"`

	// Uptime
	StartTime time.Time     `json:"start_time"`
	Uptime    time.Duration `json:"uptime"`
}

// NewCollector creates a collector with all counters at zero.
func NewCollector() *Collector {
	return &Collector{snapshot: Snapshot{StartTime: time.Now()}}
}

// IncrementNavigation records a completed soft navigation.
func (c *Collector) IncrementNavigation() {
	atomic.AddInt64(&c.snapshot.Navigations, 1)
}

// IncrementHardFallback records a navigation that fell back to a full
// page load.
func (c *Collector) IncrementHardFallback() {
	atomic.AddInt64(&c.snapshot.HardFallbacks, 1)
}

// IncrementHistoryPop records a back/forward traversal.
func (c *Collector) IncrementHistoryPop() {
	atomic.AddInt64(&c.snapshot.HistoryPops, 1)
}

// IncrementContentSwap records a successful fragment mount.
func (c *Collector) IncrementContentSwap() {
	atomic.AddInt64(&c.snapshot.ContentSwaps, 1)
}

// IncrementPageFetched records a successful pagination fetch.
func (c *Collector) IncrementPageFetched() {
	atomic.AddInt64(&c.snapshot.PagesFetched, 1)
}

// IncrementPageFailure records a failed pagination fetch.
func (c *Collector) IncrementPageFailure() {
	atomic.AddInt64(&c.snapshot.PageFailures, 1)
}

// AddItemsAppended records items appended to a container.
func (c *Collector) AddItemsAppended(n int) {
	atomic.AddInt64(&c.snapshot.ItemsAppended, int64(n))
}

// IncrementCheck records a poll check.
func (c *Collector) IncrementCheck() {
	atomic.AddInt64(&c.snapshot.ChecksPerformed, 1)
}

// IncrementCheckFailure records a failed poll check.
func (c *Collector) IncrementCheckFailure() {
	atomic.AddInt64(&c.snapshot.CheckFailures, 1)
}

// IncrementCheckpointAdvance records a persisted checkpoint advance.
func (c *Collector) IncrementCheckpointAdvance() {
	atomic.AddInt64(&c.snapshot.CheckpointAdvances, 1)
}

// IncrementSelectionDispatched records a delivered media selection.
func (c *Collector) IncrementSelectionDispatched() {
	atomic.AddInt64(&c.snapshot.SelectionsDispatched, 1)
}

// IncrementSelectionDropped records a selection dropped for an unknown
// mode.
func (c *Collector) IncrementSelectionDropped() {
	atomic.AddInt64(&c.snapshot.SelectionsDropped, 1)
}

// GetSnapshot returns a copy of all counters.
func (c *Collector) GetSnapshot() Snapshot {
	return Snapshot{
		Navigations:          atomic.LoadInt64(&c.snapshot.Navigations),
		HardFallbacks:        atomic.LoadInt64(&c.snapshot.HardFallbacks),
		HistoryPops:          atomic.LoadInt64(&c.snapshot.HistoryPops),
		ContentSwaps:         atomic.LoadInt64(&c.snapshot.ContentSwaps),
		PagesFetched:         atomic.LoadInt64(&c.snapshot.PagesFetched),
		PageFailures:         atomic.LoadInt64(&c.snapshot.PageFailures),
		ItemsAppended:        atomic.LoadInt64(&c.snapshot.ItemsAppended),
		ChecksPerformed:      atomic.LoadInt64(&c.snapshot.ChecksPerformed),
		CheckFailures:        atomic.LoadInt64(&c.snapshot.CheckFailures),
		CheckpointAdvances:   atomic.LoadInt64(&c.snapshot.CheckpointAdvances),
		SelectionsDispatched: atomic.LoadInt64(&c.snapshot.SelectionsDispatched),
		SelectionsDropped:    atomic.LoadInt64(&c.snapshot.SelectionsDropped),
		StartTime:            c.snapshot.StartTime,
		Uptime:               time.Since(c.snapshot.StartTime),
	}
}
