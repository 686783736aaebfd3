package livenav

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/livefir/livenav/internal/dom"
	"github.com/livefir/livenav/internal/router"
)

// formatTimestamps rewrites every element carrying a data-timestamp
// attribute into a human-readable relative time. Re-run after every
// swap so freshly mounted content is formatted too.
func formatTimestamps(logger *slog.Logger) router.Hook {
	return func(doc *dom.Document) {
		for _, ref := range doc.ElementsWithAttr("data-timestamp") {
			if ref.ID == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, ref.Value)
			if err != nil {
				logger.Warn("malformed timestamp", "id", ref.ID, "value", ref.Value)
				continue
			}
			doc.SetText(ref.ID, relativeTime(time.Since(t)))
		}
	}
}

// autosizeTextareas marks auto-growing text inputs as initialized,
// the headless equivalent of attaching their resize behavior.
func autosizeTextareas() router.Hook {
	return func(doc *dom.Document) {
		for _, ref := range doc.ElementsWithAttr("data-autosize") {
			if ref.ID == "" {
				continue
			}
			doc.SetAttr(ref.ID, "data-autosize-ready", "true")
		}
	}
}

// relativeTime renders a duration the way feed timestamps are shown.
func relativeTime(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return strconv.Itoa(n) + " " + unit + "s ago"
}
