// Package router makes server-rendered navigation feel instantaneous:
// it consumes typed navigation intents, fetches partial content for
// known routes, swaps it into the content mount point, keeps the
// history stack consistent, and re-arms the view's dependent modules
// after every swap. Any failure falls back to a hard, full-page
// navigation so the user is never stuck on a broken intermediate
// state.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/livefir/livenav/internal/dom"
	"github.com/livefir/livenav/internal/metrics"
)

// ErrRouteNotFound reports a path absent from the route table.
var ErrRouteNotFound = errors.New("route not found")

// Route maps a path to its partial-content endpoint. Routes are
// immutable and defined at startup.
type Route struct {
	Path            string
	ContentEndpoint string
	Title           string
	PreloadModules  []string
}

// Intent is a typed navigation request produced by UI components. The
// router decides whether to hijack it based on its flags; everything
// it declines passes through untouched.
type Intent struct {
	Href          string
	Routed        bool // carries the in-app route marker
	OptedOut      bool // explicitly excluded from interception
	NewSurface    bool // targets a new tab/window
	PrimaryButton bool
	Modified      bool // a modifier key was held
}

// IntentFromAnchor builds an Intent from an anchor in the document.
func IntentFromAnchor(a dom.Anchor, primaryButton, modified bool) Intent {
	return Intent{
		Href:          a.Href,
		Routed:        a.Routed,
		OptedOut:      a.OptedOut,
		NewSurface:    a.NewSurface,
		PrimaryButton: primaryButton,
		Modified:      modified,
	}
}

// View is what post-swap initializers receive: the route just shown,
// the document it was mounted into, and the location fragment, if any.
type View struct {
	Route    Route
	Doc      *dom.Document
	Fragment string
}

// PostSwapFunc re-initializes one dependent module for a new view.
type PostSwapFunc func(ctx context.Context, view View)

// Options configures a Router.
type Options struct {
	Routes      []Route
	DefaultPath string
	// MountID is the content mount point; defaults to "content".
	MountID string
	// SettleDelay is how long to wait after a swap before re-arming
	// dependent modules, letting the content finish mounting. Zero
	// runs them synchronously. Tunable, not contractual.
	SettleDelay time.Duration

	Client  *http.Client
	Logger  *slog.Logger
	Metrics *metrics.Collector

	// HardNavigate performs a full, non-SPA navigation. The default
	// records the path, which is all a headless embedding needs.
	HardNavigate func(path string)
}

// Router is the top-level navigation orchestrator.
type Router struct {
	routes      map[string]Route
	defaultPath string
	mountID     string
	settleDelay time.Duration

	doc     *dom.Document
	swapper *Swapper
	history *History
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Collector

	mu         sync.Mutex
	navigating bool
	generation uint64
	hardNavs   []string

	postSwap     []PostSwapFunc
	hardNavigate func(path string)
}

// New creates a router over the given document. It fails loudly when
// the content mount point is absent: there is nothing to swap into.
func New(doc *dom.Document, opts Options) (*Router, error) {
	if opts.MountID == "" {
		opts.MountID = "content"
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if !doc.Has(opts.MountID) {
		opts.Logger.Error("router: content mount point missing, aborting init",
			"mount", opts.MountID)
		return nil, fmt.Errorf("content mount point %q not found", opts.MountID)
	}

	r := &Router{
		routes:       make(map[string]Route, len(opts.Routes)),
		defaultPath:  opts.DefaultPath,
		mountID:      opts.MountID,
		settleDelay:  opts.SettleDelay,
		doc:          doc,
		swapper:      NewSwapper(doc, opts.MountID),
		history:      NewHistory(),
		client:       opts.Client,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		hardNavigate: opts.HardNavigate,
	}
	for _, rt := range opts.Routes {
		r.routes[rt.Path] = rt
	}
	if r.hardNavigate == nil {
		r.hardNavigate = r.recordHardNav
	}
	return r, nil
}

// Swapper exposes the view swapper for behavior-hook registration.
func (r *Router) Swapper() *Swapper {
	return r.swapper
}

// OnPostSwap registers a post-swap initializer; initializers run in
// registration order after every successful content swap, once the
// settle delay has elapsed.
func (r *Router) OnPostSwap(f PostSwapFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postSwap = append(r.postSwap, f)
}

// Init resolves the initial route from the current location. When the
// server supplied an initial-content payload the content is mounted
// without pushing a history entry; either way the dependent modules
// are armed for the initial view. Unrecognized paths fall back to the
// default route rather than leaving the view blank.
func (r *Router) Init(ctx context.Context, path, initialContent string) error {
	purePath, fragment := splitFragment(path)

	route, ok := r.routes[purePath]
	if !ok {
		r.logger.Info("router: unrecognized initial path, using default route",
			"path", purePath, "default", r.defaultPath)
		route, ok = r.routes[r.defaultPath]
		if !ok {
			return fmt.Errorf("%w: initial path %q and no default route", ErrRouteNotFound, purePath)
		}
	}

	r.history.Replace(route.Path)

	if initialContent != "" {
		if err := r.swapper.Swap(initialContent); err != nil {
			return err
		}
		if r.metrics != nil {
			r.metrics.IncrementContentSwap()
		}
	}
	r.doc.SetTitle(route.Title)
	r.doc.SetActiveLink(route.Path)
	r.scheduleRearm(ctx, route, fragment)
	return nil
}

// Dispatch applies the interception rule to a navigation intent. An
// intent is hijacked only when it is an in-app routed link activated
// with the primary button, no modifier keys, not targeting a new
// surface and not opted out; everything else passes through untouched.
// It reports whether the intent was hijacked.
func (r *Router) Dispatch(ctx context.Context, intent Intent) bool {
	if !intent.Routed || intent.OptedOut || intent.NewSurface ||
		!intent.PrimaryButton || intent.Modified {
		return false
	}
	r.Navigate(ctx, intent.Href)
	return true
}

// Navigate performs a soft navigation to path: fetch the route's
// partial content, swap it in, push a history entry, and re-arm
// dependent modules. Unknown routes, fetch failures and swap failures
// fall back to a hard navigation. A navigate that races an in-flight
// one is dropped.
func (r *Router) Navigate(ctx context.Context, path string) {
	purePath, fragment := splitFragment(path)

	route, ok := r.routes[purePath]
	if !ok {
		r.fallback(path, "unknown route")
		return
	}

	r.mu.Lock()
	if r.navigating {
		r.mu.Unlock()
		return
	}
	r.navigating = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.navigating = false
		r.mu.Unlock()
	}()

	fragmentHTML, err := r.fetchContent(ctx, route)
	if err != nil {
		r.fallback(path, err.Error())
		return
	}

	// Push only once the swap has landed. A failed swap hard-navigates
	// instead, and the stack must not carry an entry for a view that
	// was never shown.
	if err := r.swapper.Swap(fragmentHTML); err != nil {
		r.fallback(path, err.Error())
		return
	}
	r.history.Push(route.Path)
	r.finishSwap(ctx, route, fragment)
	if r.metrics != nil {
		r.metrics.IncrementNavigation()
	}
}

// HandlePop reloads content after a back/forward traversal. History
// has already moved, so no entry is pushed.
func (r *Router) HandlePop(ctx context.Context) {
	path := r.history.Current()
	purePath, fragment := splitFragment(path)

	route, ok := r.routes[purePath]
	if !ok {
		r.fallback(path, "unknown route on pop")
		return
	}

	fragmentHTML, err := r.fetchContent(ctx, route)
	if err != nil {
		r.fallback(path, err.Error())
		return
	}

	if err := r.swapper.Swap(fragmentHTML); err != nil {
		r.fallback(path, err.Error())
		return
	}
	r.finishSwap(ctx, route, fragment)
	if r.metrics != nil {
		r.metrics.IncrementHistoryPop()
	}
}

// Back traverses one entry backwards, then reloads.
func (r *Router) Back(ctx context.Context) bool {
	if _, ok := r.history.Back(); !ok {
		return false
	}
	r.HandlePop(ctx)
	return true
}

// Forward traverses one entry forwards, then reloads.
func (r *Router) Forward(ctx context.Context) bool {
	if _, ok := r.history.Forward(); !ok {
		return false
	}
	r.HandlePop(ctx)
	return true
}

// Reload performs a full reload of the current view via hard
// navigation, the simplest correct way to guarantee consistent
// ordering after a live-update jump.
func (r *Router) Reload() {
	r.hardNavigate(r.history.Current())
	if r.metrics != nil {
		r.metrics.IncrementHardFallback()
	}
}

// CurrentPath returns the current history entry.
func (r *Router) CurrentPath() string {
	return r.history.Current()
}

// History exposes the navigation-history stack.
func (r *Router) History() *History {
	return r.history
}

// HardNavigations returns the paths handed to the default hard
// navigation recorder.
func (r *Router) HardNavigations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.hardNavs))
	copy(out, r.hardNavs)
	return out
}

func (r *Router) recordHardNav(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hardNavs = append(r.hardNavs, path)
}

func (r *Router) fallback(path, reason string) {
	r.logger.Info("router: falling back to hard navigation",
		"path", path, "reason", reason)
	if r.metrics != nil {
		r.metrics.IncrementHardFallback()
	}
	r.hardNavigate(path)
}

func (r *Router) fetchContent(ctx context.Context, route Route) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, route.ContentEndpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build content request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("content fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("content fetch returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	return string(body), nil
}

// finishSwap updates the presentation state around a just-mounted
// fragment and schedules the dependent-module re-arm.
func (r *Router) finishSwap(ctx context.Context, route Route, fragment string) {
	r.doc.SetTitle(route.Title)
	r.doc.SetActiveLink(route.Path)
	if r.metrics != nil {
		r.metrics.IncrementContentSwap()
	}
	r.scheduleRearm(ctx, route, fragment)
}

// scheduleRearm runs the post-swap initializers after the settle
// delay. A navigation that lands before the delay elapses supersedes
// the pending re-arm; the initializers only ever run against the
// newest view.
func (r *Router) scheduleRearm(ctx context.Context, route Route, fragment string) {
	r.mu.Lock()
	r.generation++
	gen := r.generation
	funcs := make([]PostSwapFunc, len(r.postSwap))
	copy(funcs, r.postSwap)
	r.mu.Unlock()

	view := View{Route: route, Doc: r.doc, Fragment: fragment}

	run := func() {
		r.mu.Lock()
		stale := gen != r.generation
		r.mu.Unlock()
		if stale {
			return
		}
		for _, f := range funcs {
			f(ctx, view)
		}
	}

	if r.settleDelay <= 0 {
		run()
		return
	}
	time.AfterFunc(r.settleDelay, run)
}

func splitFragment(path string) (string, string) {
	if i := strings.Index(path, "#"); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}
