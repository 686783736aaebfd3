// Package livenav is the client-side navigation and live-update
// orchestrator of a server-rendered social web application: it makes
// multi-page navigation behave like a single-page application,
// paginates long feeds, auto-scrolls to deep-linked items that may
// not be loaded yet, polls for new content while coordinating with
// page visibility, and mediates the companion-window media-picker
// protocol.
package livenav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/livefir/livenav/internal/dom"
	"github.com/livefir/livenav/internal/kv"
	"github.com/livefir/livenav/internal/media"
	"github.com/livefir/livenav/internal/metrics"
	"github.com/livefir/livenav/internal/pager"
	"github.com/livefir/livenav/internal/poller"
	"github.com/livefir/livenav/internal/router"
)

// Well-known element ids the live-update indicators render into.
const (
	// NewPostsIndicatorID is the dismissible "new posts" indicator.
	NewPostsIndicatorID = "new-posts-indicator"
	// NotificationBadgeID is the numeric unread badge.
	NotificationBadgeID = "notification-badge"
	// ToastContainerID receives per-item notification announcements.
	ToastContainerID = "toast-container"
)

// Aliases so importers can name the types that appear in the Client
// API without reaching into internal packages.
type (
	// Intent is a typed navigation request.
	Intent = router.Intent
	// Notification is one live notification item.
	Notification = poller.Notification
	// Clock abstracts time for the poll schedules.
	Clock = poller.Clock
)

// Feed kinds used for checkpoint namespacing.
const (
	feedKindPosts         = "posts"
	feedKindNotifications = "notifications"
)

// Client wires the router, pager, pollers and media channel together
// over one document. Explicit construction replaces the shared global
// module registry a page script would use; each part exposes only its
// own operations.
type Client struct {
	id  string
	cfg Config

	logger     *slog.Logger
	httpClient *http.Client
	clock      poller.Clock
	metrics    *metrics.Collector

	doc     *dom.Document
	router  *router.Router
	pollers *poller.Set
	mediaCh *media.Hub
	session *kv.SessionStore
	device  *kv.DeviceStore

	mu       sync.Mutex
	pager    *pager.Engine
	closed   bool
	notify   func(message string)
	announce func(n poller.Notification)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient sets the HTTP client used for all fetches.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock sets the clock driving the poll schedules.
func WithClock(clock poller.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithNotify sets the transient user-visible notification sink.
func WithNotify(f func(message string)) Option {
	return func(c *Client) { c.notify = f }
}

// WithAnnouncer sets the per-item notification announcement sink.
func WithAnnouncer(f func(n poller.Notification)) Option {
	return func(c *Client) { c.announce = f }
}

// NewClient parses the server-rendered page and wires the navigation
// layer over it. The schedule starts when Start is called.
func NewClient(pageHTML string, cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	doc, err := dom.Parse(pageHTML)
	if err != nil {
		return nil, err
	}

	c := &Client{
		id:         uuid.NewString(),
		cfg:        cfg,
		logger:     slog.Default(),
		httpClient: http.DefaultClient,
		clock:      poller.RealClock{},
		metrics:    metrics.NewCollector(),
		doc:        doc,
		pollers:    poller.NewSet(),
		session:    kv.NewSessionStore(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.device, err = kv.OpenDeviceStore(cfg.DeviceStorePath)
	if err != nil {
		return nil, err
	}

	routes := make([]router.Route, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		routes = append(routes, router.Route{
			Path:            rc.Path,
			ContentEndpoint: rc.ContentEndpoint,
			Title:           rc.Title,
			PreloadModules:  rc.PreloadModules,
		})
	}
	c.router, err = router.New(doc, router.Options{
		Routes:      routes,
		DefaultPath: cfg.DefaultPath,
		MountID:     cfg.MountID,
		SettleDelay: cfg.SettleDelay.Std(),
		Client:      c.httpClient,
		Logger:      c.logger,
		Metrics:     c.metrics,
	})
	if err != nil {
		_ = c.device.Close()
		return nil, err
	}

	c.mediaCh = media.NewHub(media.HubOptions{
		Session: c.session,
		Logger:  c.logger,
		Metrics: c.metrics,
	})

	c.router.Swapper().AddHook(formatTimestamps(c.logger))
	c.router.Swapper().AddHook(autosizeTextareas())

	// Post-swap initializers run in order: fresh pager for the new
	// view, pollers re-armed for it, then deep-link catch-up once the
	// pager is armed.
	c.router.OnPostSwap(c.rearmPager)
	c.router.OnPostSwap(c.rearmPollers)
	c.router.OnPostSwap(c.followFragment)

	return c, nil
}

// Start resolves the initial route for currentPath and arms the
// navigation layer. initialContent, when non-empty, is a server
// supplied payload mounted without pushing a history entry.
func (c *Client) Start(ctx context.Context, currentPath, initialContent string) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.router.Init(ctx, currentPath, initialContent)
}

// Dispatch applies the interception rule to a navigation intent and
// reports whether it was hijacked.
func (c *Client) Dispatch(ctx context.Context, intent router.Intent) bool {
	if c.isClosed() {
		return false
	}
	return c.router.Dispatch(ctx, intent)
}

// Navigate performs a soft navigation to path.
func (c *Client) Navigate(ctx context.Context, path string) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.router.Navigate(ctx, path)
	return nil
}

// Back traverses history backwards.
func (c *Client) Back(ctx context.Context) bool {
	if c.isClosed() {
		return false
	}
	return c.router.Back(ctx)
}

// Forward traverses history forwards.
func (c *Client) Forward(ctx context.Context) bool {
	if c.isClosed() {
		return false
	}
	return c.router.Forward(ctx)
}

// SetVisible applies a page visibility transition to every live
// poller: backgrounding stops the schedules, foregrounding restarts
// them with an immediate check.
func (c *Client) SetVisible(visible bool) {
	if c.isClosed() {
		return
	}
	c.pollers.SetVisible(visible)
}

// AcknowledgeNewPosts handles a click on the "new posts" indicator:
// the checkpoint advances and the view fully reloads.
func (c *Client) AcknowledgeNewPosts() {
	if c.isClosed() {
		return
	}
	if p, ok := c.pollers.Get(feedKindPosts, c.currentScope()); ok {
		p.Acknowledge()
	}
	c.doc.Hide(NewPostsIndicatorID)
	c.router.Reload()
}

// OpenNotification handles a click on one notification announcement:
// mark read, then navigate to the item.
func (c *Client) OpenNotification(ctx context.Context, n poller.Notification) error {
	if c.isClosed() {
		return ErrClosed
	}
	if p, ok := c.pollers.Get(feedKindNotifications, ""); ok {
		p.Acknowledge()
	}
	c.doc.SetText(NotificationBadgeID, "")
	c.doc.Hide(NotificationBadgeID)
	c.router.Navigate(ctx, n.URL)
	return nil
}

// LoadMore fetches the next page for a container.
func (c *Client) LoadMore(ctx context.Context, containerID string) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.mu.Lock()
	eng := c.pager
	c.mu.Unlock()
	if eng == nil {
		return nil
	}
	return eng.LoadMore(ctx, containerID, false)
}

// Media returns the media-selection channel.
func (c *Client) Media() *media.Hub {
	return c.mediaCh
}

// Document returns the live document, for embedding and inspection.
func (c *Client) Document() *dom.Document {
	return c.doc
}

// Router exposes the router, primarily for history inspection.
func (c *Client) Router() *router.Router {
	return c.router
}

// Metrics returns a snapshot of the client's counters.
func (c *Client) Metrics() metrics.Snapshot {
	return c.metrics.GetSnapshot()
}

// ID returns the client instance id.
func (c *Client) ID() string {
	return c.id
}

// Close stops every poll schedule and releases the device store.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	eng := c.pager
	c.mu.Unlock()

	if eng != nil {
		eng.Close()
	}
	c.pollers.Close()
	return c.device.Close()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// rearmPager tears down the previous view's paging state and registers
// every pagination container declared in the new content. The old
// engine is closed first so a fetch it still has in flight cannot
// write into the new view's containers. Registering an already
// registered container is a no-op, so rapid re-arms are harmless.
func (c *Client) rearmPager(ctx context.Context, view router.View) {
	c.mu.Lock()
	old := c.pager
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}

	eng := pager.NewEngine(view.Doc, pager.Options{
		Client:           c.httpClient,
		Logger:           c.logger,
		Metrics:          c.metrics,
		Notify:           c.notifyFunc(),
		PrimaryContainer: c.cfg.PrimaryContainer,
	})
	for _, pc := range view.Doc.PaginatedContainers() {
		eng.Register(pager.Config{
			ContainerID:  pc.ID,
			DataKey:      pc.DataKey,
			APIURL:       pc.APIURL,
			EmptyMessage: pc.EmptyMessage,
			PageSize:     pc.PageSize,
		})
	}

	c.mu.Lock()
	c.pager = eng
	c.mu.Unlock()
}

// rearmPollers ensures the pollers the new view needs are live and
// tears down the ones it does not: the main or scoped posts feed plus
// the notification feed.
func (c *Client) rearmPollers(ctx context.Context, view router.View) {
	scope := scopeFromPath(view.Route.Path)

	keep := make(map[string]string)
	if c.cfg.FeedCheckURL != "" {
		keep[feedKindPosts] = scope
	}
	if c.cfg.NotificationCheckURL != "" {
		keep[feedKindNotifications] = ""
	}
	c.pollers.Retain(keep)

	if c.cfg.FeedCheckURL != "" {
		c.ensureNewPostsIndicator()
		_, err := c.pollers.Ensure(ctx, poller.Config{
			FeedKind: feedKindPosts,
			ScopeID:  scope,
			Interval: c.cfg.FeedInterval.Std(),
			Check:    poller.NewFeedCheck(c.httpClient, scopedCheckURL(c.cfg.FeedCheckURL, scope)),
			OnNew:    func(poller.CheckResult) { c.doc.Show(NewPostsIndicatorID) },
			Store:    c.device,
			Clock:    c.clock,
			Logger:   c.logger,
			Metrics:  c.metrics,
		})
		if err != nil {
			c.logger.Warn("failed to arm feed poller", "scope", scope, "error", err)
		}
	}

	if c.cfg.NotificationCheckURL != "" {
		_, err := c.pollers.Ensure(ctx, poller.Config{
			FeedKind: feedKindNotifications,
			Interval: c.cfg.NotificationInterval.Std(),
			Check:    poller.NewNotificationCheck(c.httpClient, c.cfg.NotificationCheckURL),
			OnNew:    c.onNotifications,
			Store:    c.device,
			Clock:    c.clock,
			Logger:   c.logger,
			Metrics:  c.metrics,
		})
		if err != nil {
			c.logger.Warn("failed to arm notification poller", "error", err)
		}
	}
}

// ensureNewPostsIndicator injects the hidden new-posts banner when the
// page did not ship one. It lives outside the mount point so content
// swaps cannot wipe it while a poller holds a reference to its id.
func (c *Client) ensureNewPostsIndicator() {
	if c.doc.Has(NewPostsIndicatorID) {
		return
	}
	banner := fmt.Sprintf(
		`<button id=%q type="button" hidden>New posts available</button>`,
		NewPostsIndicatorID)
	if err := c.doc.AppendAfter(c.cfg.MountID, banner); err != nil {
		c.logger.Warn("failed to inject new-posts indicator", "error", err)
	}
}

// followFragment scrolls to a deep-linked item once the new view's
// pager is armed.
func (c *Client) followFragment(ctx context.Context, view router.View) {
	if view.Fragment == "" {
		return
	}
	c.mu.Lock()
	eng := c.pager
	c.mu.Unlock()
	if eng == nil {
		return
	}
	if err := eng.AutoLoadToTarget(ctx, view.Fragment); err != nil {
		c.logger.Info("deep-link target not reachable",
			"fragment", view.Fragment, "error", err)
	}
}

// onNotifications updates the unread badge and announces each newly
// observed item.
func (c *Client) onNotifications(res poller.CheckResult) {
	if res.UnreadCount > 0 {
		c.doc.SetText(NotificationBadgeID, fmt.Sprintf("%d", res.UnreadCount))
		c.doc.Show(NotificationBadgeID)
	}
	for _, n := range res.Notifications {
		if c.announce != nil {
			c.announce(n)
			continue
		}
		if c.doc.Has(ToastContainerID) {
			_ = c.doc.Append(ToastContainerID, fmt.Sprintf(
				`<div class="toast"><img src=%q alt="">%s</div>`,
				n.ActorProfilePictureURL, n.Text))
		} else {
			c.logger.Info("notification", "text", n.Text, "url", n.URL)
		}
	}
}

func (c *Client) notifyFunc() func(string) {
	if c.notify != nil {
		return c.notify
	}
	return func(message string) {
		c.logger.Info("notice", "message", message)
	}
}

func (c *Client) currentScope() string {
	return scopeFromPath(c.router.CurrentPath())
}

// scopeFromPath derives the feed scope id from a route path: group
// and event views get their own feed scope, everything else shares
// the main feed.
func scopeFromPath(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) >= 2 && (segs[0] == "groups" || segs[0] == "events") {
		return "_" + strings.TrimSuffix(segs[0], "s") + "_" + segs[1]
	}
	return ""
}

// scopedCheckURL adds the scope id to a check endpoint so a scoped
// feed queries its own slice of content.
func scopedCheckURL(checkURL, scope string) string {
	if scope == "" {
		return checkURL
	}
	u, err := url.Parse(checkURL)
	if err != nil {
		return checkURL
	}
	q := u.Query()
	q.Set("scope", strings.TrimPrefix(scope, "_"))
	u.RawQuery = q.Encode()
	return u.String()
}
