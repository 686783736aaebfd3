// Package media implements the cross-window media-selection protocol:
// a companion picker surface hands a selection back to whichever
// editing feature opened it. One internal hub performs the dispatch;
// transports (an in-process message and a websocket broadcast
// channel) only feed it.
package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/livefir/livenav/internal/kv"
	"github.com/livefir/livenav/internal/metrics"
)

// PickerModeKey is the session-scoped key the picker surface reads to
// learn which mode opened it.
const PickerModeKey = "pickerMode"

// ErrUnknownMode reports a mode outside the closed set.
var ErrUnknownMode = errors.New("unknown media mode")

// Item is one selected media file.
type Item struct {
	Path    string
	AltText string
}

// Selection is a picker result routed to a single editing feature.
// The hub delivers it exactly once and never retains it.
type Selection struct {
	Mode      Mode
	Media     []Item
	ContextID string
}

// Handler consumes a selection on behalf of one editing feature and
// triggers that feature's own preview re-render.
type Handler func(Selection)

// Hub routes picker selections to the editing feature that opened the
// picker, keyed by mode.
type Hub struct {
	mu       sync.RWMutex
	handlers map[Mode]Handler

	session kv.Store
	logger  *slog.Logger
	metrics *metrics.Collector

	// openSurface opens the picker as a secondary surface (popup or
	// tab). Injected so tests can observe the opened URL.
	openSurface func(url string)

	pickerPath string
}

// HubOptions configures a Hub.
type HubOptions struct {
	Session     kv.Store
	Logger      *slog.Logger
	Metrics     *metrics.Collector
	OpenSurface func(url string)
	// PickerPath is the picker surface location; defaults to
	// "/media/picker".
	PickerPath string
}

// NewHub creates a hub with no registered consumers.
func NewHub(opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Session == nil {
		opts.Session = kv.NewSessionStore()
	}
	if opts.PickerPath == "" {
		opts.PickerPath = "/media/picker"
	}
	return &Hub{
		handlers:    make(map[Mode]Handler),
		session:     opts.Session,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		openSurface: opts.OpenSurface,
		pickerPath:  opts.PickerPath,
	}
}

// Register binds a mode to the handler owning its state bucket.
// Registering ModeInvalid is rejected.
func (h *Hub) Register(mode Mode, handler Handler) error {
	if mode == ModeInvalid {
		return fmt.Errorf("cannot register handler: %w", ErrUnknownMode)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[mode] = handler
	return nil
}

// OpenBrowser opens the picker surface for the given mode. The mode is
// persisted in session scope so the picker, a separate navigational
// context, can report it back; the caller's currently selected paths
// are serialized into the picker location.
func (h *Hub) OpenBrowser(mode Mode, contextID string, selected []string) (string, error) {
	if mode == ModeInvalid {
		return "", fmt.Errorf("cannot open picker: %w", ErrUnknownMode)
	}
	if err := h.session.Set(PickerModeKey, mode.String()); err != nil {
		return "", fmt.Errorf("failed to persist picker mode: %w", err)
	}

	q := url.Values{}
	q.Set("mode", mode.String())
	if contextID != "" {
		q.Set("context", contextID)
	}
	if len(selected) > 0 {
		q.Set("selected", strings.Join(selected, ","))
	}
	pickerURL := h.pickerPath + "?" + q.Encode()

	if h.openSurface != nil {
		h.openSurface(pickerURL)
	}
	return pickerURL, nil
}

// CancelEdit clears the persisted picker mode, for when the edit that
// opened the picker is abandoned.
func (h *Hub) CancelEdit() {
	if err := h.session.Delete(PickerModeKey); err != nil {
		h.logger.Warn("media: failed to clear picker mode", "error", err)
	}
}

// Dispatch routes a selection to the handler for its mode. Unknown or
// unregistered modes are logged and dropped; a selection is never
// applied to the wrong bucket.
func (h *Hub) Dispatch(sel Selection) {
	switch sel.Mode {
	case ModeCreatePost, ModeEditPost, ModeNewComment, ModeEditComment, ModeProfilePicture:
	default:
		h.logger.Warn("media: dropping selection with unknown mode")
		if h.metrics != nil {
			h.metrics.IncrementSelectionDropped()
		}
		return
	}

	h.mu.RLock()
	handler, ok := h.handlers[sel.Mode]
	h.mu.RUnlock()
	if !ok {
		h.logger.Warn("media: no consumer registered for mode",
			"mode", sel.Mode.String())
		if h.metrics != nil {
			h.metrics.IncrementSelectionDropped()
		}
		return
	}

	handler(sel)
	if h.metrics != nil {
		h.metrics.IncrementSelectionDispatched()
	}
}

// wireItem is the wire shape of one selected media file.
type wireItem struct {
	MediaFilePath string `json:"media_file_path"`
	AltText       string `json:"alt_text,omitempty"`
}

// wireSelection is the cross-window selection message.
type wireSelection struct {
	Mode          string          `json:"mode"`
	SelectedMedia []wireItem      `json:"selectedMedia"`
	ContextID     json.RawMessage `json:"contextId,omitempty"`
}

// Deliver is the transport entry point: it decodes a raw selection
// message and dispatches it. Both the in-process message path and the
// broadcast-channel path funnel through here.
func (h *Hub) Deliver(raw []byte) {
	var msg wireSelection
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Warn("media: malformed selection message", "error", err)
		if h.metrics != nil {
			h.metrics.IncrementSelectionDropped()
		}
		return
	}

	mode, ok := ParseMode(msg.Mode)
	if !ok {
		h.logger.Warn("media: dropping selection with unknown mode",
			"mode", msg.Mode)
		if h.metrics != nil {
			h.metrics.IncrementSelectionDropped()
		}
		return
	}

	sel := Selection{Mode: mode, ContextID: decodeContextID(msg.ContextID)}
	for _, m := range msg.SelectedMedia {
		sel.Media = append(sel.Media, Item{Path: m.MediaFilePath, AltText: m.AltText})
	}
	h.Dispatch(sel)
}

// decodeContextID accepts a string or a number, the two shapes callers
// send.
func decodeContextID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
