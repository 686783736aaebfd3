// Package pager implements incremental loading of long lists: one
// paging cursor per content container, on-demand page fetches, and a
// bounded catch-up routine for deep-linked items that are not loaded
// yet.
package pager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/livefir/livenav/internal/dom"
	"github.com/livefir/livenav/internal/metrics"
)

// MaxAutoLoadPages bounds the deep-link catch-up loop so it terminates
// even for a mismatched or deleted target.
const MaxAutoLoadPages = 10

// DefaultPageSize is used when a container declares no page size.
const DefaultPageSize = 20

// Config describes one paginated container.
type Config struct {
	ContainerID  string
	DataKey      string
	APIURL       string
	EmptyMessage string
	PageSize     int
}

// state is the per-container paging state. cursor is the next page to
// request; page 1 is assumed pre-rendered. hasMore is monotonic: once
// false it never becomes true again.
type state struct {
	cfg       Config
	cursor    int
	isLoading bool
	hasMore   bool
}

// Engine owns the paging state for every container in the current
// view. The router discards it wholesale on navigation and builds a
// fresh one for the new content.
type Engine struct {
	mu     sync.Mutex
	states map[string]*state
	closed bool

	doc     *dom.Document
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Collector

	// notify surfaces a transient, user-visible error message.
	notify func(message string)

	// primaryContainer is the fallback when a deep link's container
	// kind cannot be determined.
	primaryContainer string
}

// Options configures an Engine.
type Options struct {
	Client           *http.Client
	Logger           *slog.Logger
	Metrics          *metrics.Collector
	Notify           func(message string)
	PrimaryContainer string
}

// NewEngine creates an engine bound to the given document.
func NewEngine(doc *dom.Document, opts Options) *Engine {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		states:           make(map[string]*state),
		doc:              doc,
		client:           opts.Client,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
		notify:           opts.Notify,
		primaryContainer: opts.PrimaryContainer,
	}
}

// Register sets up paging for a container. It is a no-op when the
// container is absent from the document or already registered. When
// the pre-rendered item count is below the page size the container is
// assumed complete and hasMore starts false.
func (e *Engine) Register(cfg Config) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if !e.doc.Has(cfg.ContainerID) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if _, ok := e.states[cfg.ContainerID]; ok {
		return
	}

	preRendered := e.doc.ChildCount(cfg.ContainerID)
	st := &state{
		cfg:     cfg,
		cursor:  2,
		hasMore: preRendered >= cfg.PageSize,
	}
	e.states[cfg.ContainerID] = st

	e.attachControls(st, preRendered)
}

// attachControls adds the load-more trigger and the back-to-top
// affordance next to the container, and the empty notice when there is
// nothing pre-rendered.
func (e *Engine) attachControls(st *state, preRendered int) {
	id := st.cfg.ContainerID
	if st.hasMore {
		_ = e.doc.AppendAfter(id, fmt.Sprintf(
			`<button id=%q type="button">Load more</button>`, id+"-load-more"))
	}
	_ = e.doc.AppendAfter(id, fmt.Sprintf(
		`<a id=%q href="#top" hidden>Back to top</a>`, id+"-back-to-top"))
	if preRendered == 0 && st.cfg.EmptyMessage != "" {
		_ = e.doc.AppendAfter(id, fmt.Sprintf(
			`<p id=%q>%s</p>`, id+"-empty", st.cfg.EmptyMessage))
	}
}

// Close invalidates the engine on view teardown. In-flight fetches
// that complete afterwards are discarded, never applied to the
// document the next view now owns.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Registered reports whether a container has paging state.
func (e *Engine) Registered(containerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.states[containerID]
	return ok
}

// Cursor returns the next page number for a container.
func (e *Engine) Cursor(containerID string) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[containerID]
	if !ok {
		return 0, false
	}
	return st.cursor, true
}

// HasMore reports whether a container expects further pages.
func (e *Engine) HasMore(containerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[containerID]
	return ok && st.hasMore
}

// pageEnvelope decodes the pagination endpoint response, whose item
// array lives under the container's configured data key.
type pageEnvelope map[string]json.RawMessage

// LoadMore fetches the next page for a container and appends its items.
// It is a no-op while a fetch is in flight, once hasMore is false, or
// for an unregistered container. A fetch failure leaves state unchanged
// and surfaces a transient notification unless silent.
func (e *Engine) LoadMore(ctx context.Context, containerID string, silent bool) error {
	e.mu.Lock()
	st, ok := e.states[containerID]
	if e.closed || !ok || st.isLoading || !st.hasMore {
		e.mu.Unlock()
		return nil
	}
	st.isLoading = true
	page := st.cursor
	cfg := st.cfg
	e.mu.Unlock()

	items, err := e.fetchPage(ctx, cfg, page)

	e.mu.Lock()
	defer e.mu.Unlock()
	// The view may have navigated away, or been torn down and
	// re-registered, while the fetch was in flight. The new view can
	// hold a container with the same id, so a response for a dead
	// engine or a dead state must not touch the document.
	if e.closed {
		return nil
	}
	if cur, ok := e.states[containerID]; !ok || cur != st {
		return nil
	}
	st.isLoading = false

	if err != nil {
		if e.metrics != nil {
			e.metrics.IncrementPageFailure()
		}
		e.logger.Warn("pager: page fetch failed",
			"container", containerID, "page", page, "error", err)
		if !silent && e.notify != nil {
			e.notify("Could not load more items. Please try again.")
		}
		return err
	}

	for _, item := range items {
		if appendErr := e.doc.Append(containerID, item); appendErr != nil {
			e.logger.Warn("pager: failed to append item",
				"container", containerID, "error", appendErr)
		}
	}
	st.cursor++
	if len(items) < cfg.PageSize {
		st.hasMore = false
		e.doc.Hide(containerID + "-load-more")
	}

	if e.metrics != nil {
		e.metrics.IncrementPageFetched()
		e.metrics.AddItemsAppended(len(items))
	}
	return nil
}

func (e *Engine) fetchPage(ctx context.Context, cfg Config, page int) ([]string, error) {
	u, err := url.Parse(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", cfg.APIURL, err)
	}
	q := u.Query()
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("limit", fmt.Sprintf("%d", cfg.PageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build page request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("page request returned status %d", resp.StatusCode)
	}

	var envelope pageEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode page response: %w", err)
	}
	raw, ok := envelope[cfg.DataKey]
	if !ok {
		return nil, fmt.Errorf("page response missing %q", cfg.DataKey)
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode %q items: %w", cfg.DataKey, err)
	}
	return items, nil
}
