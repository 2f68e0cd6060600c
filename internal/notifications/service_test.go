package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"audiobookmaker/internal/config"
	"audiobookmaker/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyRunCompleted(context.Background(), "Example", "/out/Example.m4b", time.Minute); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, captured *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured.title = r.Header.Get("Title")
		captured.tags = r.Header.Get("Tags")
		captured.priority = r.Header.Get("Priority")
		captured.body = string(body)
		w.WriteHeader(http.StatusOK)
	}))
}

func newTestService(t *testing.T, endpoint string) notifications.Service {
	t.Helper()
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = endpoint
	cfg.Notifications.RequestTimeoutSeconds = 5
	return notifications.NewService(&cfg)
}

func TestNotifyRunCompletedFormatsMessage(t *testing.T) {
	var captured capturedRequest
	server := newCaptureServer(t, &captured)
	defer server.Close()

	svc := newTestService(t, server.URL)
	err := svc.NotifyRunCompleted(context.Background(), "Dune", "/library/Dune.m4b", 90*time.Second)
	if err != nil {
		t.Fatalf("NotifyRunCompleted: %v", err)
	}

	if captured.title != "Audiobookmaker - Complete" {
		t.Errorf("title = %q", captured.title)
	}
	if !strings.Contains(captured.body, "Audiobook ready: Dune (took 1m30s)") {
		t.Errorf("body = %q", captured.body)
	}
	if !strings.Contains(captured.body, "File: /library/Dune.m4b") {
		t.Errorf("body missing file line: %q", captured.body)
	}
	if captured.priority != "high" {
		t.Errorf("priority = %q", captured.priority)
	}
	if captured.tags != "audiobookmaker,run,completed" {
		t.Errorf("tags = %q", captured.tags)
	}
}

func TestNotifyRunFailedIncludesError(t *testing.T) {
	var captured capturedRequest
	server := newCaptureServer(t, &captured)
	defer server.Close()

	svc := newTestService(t, server.URL)
	err := svc.NotifyRunFailed(context.Background(), "Dune", io.ErrUnexpectedEOF)
	if err != nil {
		t.Fatalf("NotifyRunFailed: %v", err)
	}

	if captured.title != "Audiobookmaker - Error" {
		t.Errorf("title = %q", captured.title)
	}
	if !strings.Contains(captured.body, "Conversion failed for Dune: unexpected EOF") {
		t.Errorf("body = %q", captured.body)
	}
}

func TestSendReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	err := svc.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error from non-2xx response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry status code: %v", err)
	}
}
