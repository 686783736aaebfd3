package livenav

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/livefir/livenav/internal/dom"
)

func TestFormatTimestamps(t *testing.T) {
	stamp := time.Now().Add(-5 * time.Minute).UTC().Format(time.RFC3339)
	page := fmt.Sprintf(`<html><body>
<span id="ts-recent" data-timestamp=%q>raw</span>
<span id="ts-bad" data-timestamp="not-a-time">raw</span>
</body></html>`, stamp)

	doc, err := dom.Parse(page)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	formatTimestamps(slog.Default())(doc)

	if got := doc.Text("ts-recent"); got != "5 minutes ago" {
		t.Errorf("ts-recent = %q, want 5 minutes ago", got)
	}
	// Malformed timestamps are left alone.
	if got := doc.Text("ts-bad"); got != "raw" {
		t.Errorf("ts-bad = %q, want raw", got)
	}
}

func TestAutosizeTextareas(t *testing.T) {
	doc, err := dom.Parse(`<html><body><textarea id="composer" data-autosize></textarea></body></html>`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	autosizeTextareas()(doc)

	if v, ok := doc.Attr("composer", "data-autosize-ready"); !ok || v != "true" {
		t.Errorf("composer not marked ready: %q %v", v, ok)
	}
}

func TestRelativeTime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{45 * time.Minute, "45 minutes ago"},
		{90 * time.Minute, "1 hour ago"},
		{26 * time.Hour, "1 day ago"},
		{73 * time.Hour, "3 days ago"},
	}
	for _, tt := range tests {
		if got := relativeTime(tt.d); got != tt.want {
			t.Errorf("relativeTime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
