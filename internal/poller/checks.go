package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// feedEnvelope is the wire shape of the feed-check endpoint.
type feedEnvelope struct {
	HasNewPosts bool `json:"has_new_posts"`
}

// notificationEnvelope is the wire shape of the notification-check
// endpoint.
type notificationEnvelope struct {
	UnreadCount      int            `json:"unread_count"`
	NewNotifications []Notification `json:"new_notifications"`
}

// NewFeedCheck returns a CheckFunc for the feed variant:
// GET <checkURL>?since=<RFC3339> -> { has_new_posts }.
func NewFeedCheck(client *http.Client, checkURL string) CheckFunc {
	return func(ctx context.Context, since time.Time) (CheckResult, error) {
		var env feedEnvelope
		if err := getJSON(ctx, client, checkURL, "since", since, &env); err != nil {
			return CheckResult{}, err
		}
		return CheckResult{HasNew: env.HasNewPosts}, nil
	}
}

// NewNotificationCheck returns a CheckFunc for the notification
// variant: GET <checkURL>?since_timestamp=<RFC3339> ->
// { unread_count, new_notifications }.
func NewNotificationCheck(client *http.Client, checkURL string) CheckFunc {
	return func(ctx context.Context, since time.Time) (CheckResult, error) {
		var env notificationEnvelope
		if err := getJSON(ctx, client, checkURL, "since_timestamp", since, &env); err != nil {
			return CheckResult{}, err
		}
		return CheckResult{
			HasNew:        env.UnreadCount > 0 || len(env.NewNotifications) > 0,
			UnreadCount:   env.UnreadCount,
			Notifications: env.NewNotifications,
		}, nil
	}
}

func getJSON(ctx context.Context, client *http.Client, rawURL, sinceParam string, since time.Time, out interface{}) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid check url %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Set(sinceParam, since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build check request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("check request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("check request returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode check response: %w", err)
	}
	return nil
}
