package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewFeedCheck(t *testing.T) {
	since := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	var gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"has_new_posts": true}`))
	}))
	defer srv.Close()

	check := NewFeedCheck(srv.Client(), srv.URL+"/api/posts/check")
	res, err := check(context.Background(), since)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !res.HasNew {
		t.Error("expected HasNew")
	}
	if gotSince != "2026-08-29T10:00:00Z" {
		t.Errorf("since param = %q", gotSince)
	}
}

func TestNewNotificationCheck(t *testing.T) {
	var gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since_timestamp")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"unread_count": 2,
			"new_notifications": [
				{"text": "Ana liked your post", "url": "/#post-9",
				 "actor_profile_picture_url": "/media/ana.png",
				 "timestamp": "2026-08-29T10:05:00Z"}
			]
		}`))
	}))
	defer srv.Close()

	check := NewNotificationCheck(srv.Client(), srv.URL+"/api/notifications/check")
	res, err := check(context.Background(), time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !res.HasNew || res.UnreadCount != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.Notifications) != 1 || res.Notifications[0].Text != "Ana liked your post" {
		t.Errorf("unexpected notifications: %+v", res.Notifications)
	}
	if gotSince != "2026-08-29T10:00:00Z" {
		t.Errorf("since_timestamp param = %q", gotSince)
	}
}

func TestChecks_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	check := NewFeedCheck(srv.Client(), srv.URL)
	if _, err := check(context.Background(), time.Now()); err == nil {
		t.Error("expected error for non-2xx status")
	}
}
