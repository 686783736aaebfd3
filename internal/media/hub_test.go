package media

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livefir/livenav/internal/kv"
	"github.com/livefir/livenav/internal/metrics"
)

func TestRegister_RejectsInvalidMode(t *testing.T) {
	h := NewHub(HubOptions{})
	if err := h.Register(ModeInvalid, func(Selection) {}); err == nil {
		t.Error("expected registration of the invalid mode to fail")
	}
}

func TestDispatch_RoutesToOwningBucketOnly(t *testing.T) {
	h := NewHub(HubOptions{})

	buckets := map[Mode]int{}
	for _, mode := range []Mode{ModeCreatePost, ModeEditPost, ModeNewComment, ModeEditComment, ModeProfilePicture} {
		mode := mode
		if err := h.Register(mode, func(Selection) { buckets[mode]++ }); err != nil {
			t.Fatalf("Register(%s) failed: %v", mode, err)
		}
	}

	h.Dispatch(Selection{Mode: ModeEditComment, ContextID: "42"})

	for mode, calls := range buckets {
		want := 0
		if mode == ModeEditComment {
			want = 1
		}
		if calls != want {
			t.Errorf("bucket %s received %d selections, want %d", mode, calls, want)
		}
	}
}

func TestDispatch_DropsUnknownAndUnregistered(t *testing.T) {
	m := metrics.NewCollector()
	h := NewHub(HubOptions{Metrics: m})

	called := false
	if err := h.Register(ModeCreatePost, func(Selection) { called = true }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Unknown mode value.
	h.Dispatch(Selection{Mode: Mode(99)})
	// Known mode with no registered consumer.
	h.Dispatch(Selection{Mode: ModeEditPost})

	if called {
		t.Error("no registered bucket should have been invoked")
	}
	snap := m.GetSnapshot()
	if snap.SelectionsDropped != 2 {
		t.Errorf("SelectionsDropped = %d, want 2", snap.SelectionsDropped)
	}
	if snap.SelectionsDispatched != 0 {
		t.Errorf("SelectionsDispatched = %d, want 0", snap.SelectionsDispatched)
	}
}

func TestOpenBrowser_PersistsModeAndBuildsURL(t *testing.T) {
	session := kv.NewSessionStore()

	var opened string
	h := NewHub(HubOptions{
		Session:     session,
		OpenSurface: func(u string) { opened = u },
	})

	pickerURL, err := h.OpenBrowser(ModeEditPost, "12", []string{"a.jpg", "b.png"})
	if err != nil {
		t.Fatalf("OpenBrowser failed: %v", err)
	}
	if opened != pickerURL {
		t.Errorf("opened surface %q, returned %q", opened, pickerURL)
	}

	mode, ok, err := session.Get(PickerModeKey)
	if err != nil || !ok {
		t.Fatalf("picker mode not persisted: ok=%v err=%v", ok, err)
	}
	if mode != "editPost" {
		t.Errorf("persisted mode = %q, want editPost", mode)
	}

	u, err := url.Parse(pickerURL)
	if err != nil {
		t.Fatalf("picker URL unparsable: %v", err)
	}
	if u.Path != "/media/picker" {
		t.Errorf("path = %q, want /media/picker", u.Path)
	}
	q := u.Query()
	if got := q.Get("mode"); got != "editPost" {
		t.Errorf("mode param = %q", got)
	}
	if got := q.Get("context"); got != "12" {
		t.Errorf("context param = %q", got)
	}
	if got := q.Get("selected"); got != "a.jpg,b.png" {
		t.Errorf("selected param = %q", got)
	}
}

func TestOpenBrowser_InvalidMode(t *testing.T) {
	h := NewHub(HubOptions{})
	if _, err := h.OpenBrowser(ModeInvalid, "", nil); err == nil {
		t.Error("expected error for invalid mode")
	}
}

func TestCancelEdit_ClearsPersistedMode(t *testing.T) {
	session := kv.NewSessionStore()
	h := NewHub(HubOptions{Session: session})

	if _, err := h.OpenBrowser(ModeNewComment, "7", nil); err != nil {
		t.Fatalf("OpenBrowser failed: %v", err)
	}
	h.CancelEdit()

	if _, ok, _ := session.Get(PickerModeKey); ok {
		t.Error("picker mode should be cleared after cancel")
	}
}

func TestDeliver_DecodesWireMessages(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantMode    Mode
		wantContext string
		wantPaths   []string
		wantDropped bool
	}{
		{
			name:        "string context id",
			raw:         `{"mode":"editComment","selectedMedia":[{"media_file_path":"x.jpg","alt_text":"x"}],"contextId":"31"}`,
			wantMode:    ModeEditComment,
			wantContext: "31",
			wantPaths:   []string{"x.jpg"},
		},
		{
			name:        "numeric context id",
			raw:         `{"mode":"editPost","selectedMedia":[{"media_file_path":"y.png"}],"contextId":31}`,
			wantMode:    ModeEditPost,
			wantContext: "31",
			wantPaths:   []string{"y.png"},
		},
		{
			name:     "no context id",
			raw:      `{"mode":"createPost","selectedMedia":[{"media_file_path":"a.gif"},{"media_file_path":"b.gif"}]}`,
			wantMode: ModeCreatePost,
			wantPaths: []string{
				"a.gif", "b.gif",
			},
		},
		{
			name:        "unknown mode dropped",
			raw:         `{"mode":"uploadBanner","selectedMedia":[{"media_file_path":"z.jpg"}]}`,
			wantDropped: true,
		},
		{
			name:        "malformed json dropped",
			raw:         `{"mode":`,
			wantDropped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewCollector()
			h := NewHub(HubOptions{Metrics: m})

			var got *Selection
			for _, mode := range []Mode{ModeCreatePost, ModeEditPost, ModeNewComment, ModeEditComment, ModeProfilePicture} {
				if err := h.Register(mode, func(sel Selection) { got = &sel }); err != nil {
					t.Fatalf("Register failed: %v", err)
				}
			}

			h.Deliver([]byte(tt.raw))

			if tt.wantDropped {
				if got != nil {
					t.Fatalf("selection should have been dropped, got %+v", *got)
				}
				if m.GetSnapshot().SelectionsDropped != 1 {
					t.Error("drop should be counted")
				}
				return
			}
			if got == nil {
				t.Fatal("selection was not delivered")
			}
			if got.Mode != tt.wantMode {
				t.Errorf("mode = %s, want %s", got.Mode, tt.wantMode)
			}
			if got.ContextID != tt.wantContext {
				t.Errorf("contextID = %q, want %q", got.ContextID, tt.wantContext)
			}
			var paths []string
			for _, item := range got.Media {
				paths = append(paths, item.Path)
			}
			if strings.Join(paths, ",") != strings.Join(tt.wantPaths, ",") {
				t.Errorf("paths = %v, want %v", paths, tt.wantPaths)
			}
		})
	}
}

func TestParseMode_RoundTrip(t *testing.T) {
	for _, mode := range []Mode{ModeCreatePost, ModeEditPost, ModeNewComment, ModeEditComment, ModeProfilePicture} {
		parsed, ok := ParseMode(mode.String())
		if !ok || parsed != mode {
			t.Errorf("ParseMode(%q) = (%v, %v)", mode.String(), parsed, ok)
		}
	}
	if _, ok := ParseMode("nope"); ok {
		t.Error("ParseMode should reject unknown names")
	}
}

var upgrader = websocket.Upgrader{}

func TestListenBroadcast_DeliversSelections(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping websocket test in short mode")
	}

	payload := `{"mode":"profilePicture","selectedMedia":[{"media_file_path":"avatar.jpg"}]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			t.Errorf("write failed: %v", err)
		}
	}))
	defer srv.Close()

	h := NewHub(HubOptions{})
	delivered := make(chan Selection, 1)
	if err := h.Register(ModeProfilePicture, func(sel Selection) { delivered <- sel }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	go func() { _ = h.ListenBroadcast(t.Context(), wsURL) }()

	select {
	case sel := <-delivered:
		if len(sel.Media) != 1 || sel.Media[0].Path != "avatar.jpg" {
			t.Errorf("unexpected selection: %+v", sel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("selection never delivered over the broadcast channel")
	}
}
