package notifier

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
	messages []string
	err      error
}

func (r *recordingNotifier) Send(subject, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	r.messages = append(r.messages, message)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subjects)
}

func TestNtfyNotifier_Send(t *testing.T) {
	var gotTitle, gotBody, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := &NtfyNotifier{Topic: "now-playing", Server: server.URL}
	if err := n.Send("Subject", "Body"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if gotPath != "/now-playing" {
		t.Errorf("Expected path /now-playing, got %q", gotPath)
	}
	if gotTitle != "Subject" {
		t.Errorf("Expected Title header %q, got %q", "Subject", gotTitle)
	}
	if gotBody != "Body" {
		t.Errorf("Expected body %q, got %q", "Body", gotBody)
	}
}

func TestNtfyNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	n := &NtfyNotifier{Topic: "t", Server: server.URL}
	if err := n.Send("s", "m"); err == nil {
		t.Error("Expected error for 403, got nil")
	}
}

func TestTelegramNotifier_Send(t *testing.T) {
	var payload map[string]interface{}
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := &TelegramNotifier{BotToken: "bot-token", ChatID: "42", BaseURL: server.URL}
	if err := n.Send("Subject", "Body"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if gotPath != "/botbot-token/sendMessage" {
		t.Errorf("Unexpected path %q", gotPath)
	}
	if payload["chat_id"] != "42" {
		t.Errorf("Expected chat_id 42, got %v", payload["chat_id"])
	}
	if text, _ := payload["text"].(string); !strings.Contains(text, "*Subject*") || !strings.Contains(text, "Body") {
		t.Errorf("Unexpected text %q", text)
	}
}

func TestFormatAlert(t *testing.T) {
	tests := []struct {
		name        string
		event       *Event
		wantSubject string
		wantMessage string
	}{
		{
			name: "circuit open",
			event: NewEvent(EventCircuitBreakerOpen, SeverityCritical, "").
				WithData("name", "ColorLyrics").WithData("failures", 5).WithData("cooldown", "5m0s"),
			wantSubject: "🚨 Circuit Breaker OPEN",
			wantMessage: "ColorLyrics circuit breaker has tripped after 5",
		},
		{
			name:        "lyrics token failure",
			event:       NewEvent(EventLyricsTokenRefreshFailed, SeverityCritical, "").WithData("error", "401"),
			wantSubject: "🚨 Lyrics Token Refresh Failed",
			wantMessage: "SPOTIFY_SP_DC",
		},
		{
			name:        "user token failure",
			event:       NewEvent(EventUserTokenRefreshFailed, SeverityCritical, "").WithData("error", "invalid_grant"),
			wantSubject: "🚨 User Token Refresh Failed",
			wantMessage: "invalid_grant",
		},
		{
			name:        "anonymous token",
			event:       NewEvent(EventLyricsTokenAnonymous, SeverityWarning, ""),
			wantSubject: "⚠️ Lyrics Token Anonymous",
			wantMessage: "no longer recognised",
		},
		{
			name:        "server started",
			event:       NewEvent(EventServerStarted, SeverityInfo, "").WithData("port", "7900"),
			wantSubject: "ℹ️ Server Started",
			wantMessage: "port 7900",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, message := formatAlert(tt.event)
			if subject != tt.wantSubject {
				t.Errorf("Expected subject %q, got %q", tt.wantSubject, subject)
			}
			if !strings.Contains(message, tt.wantMessage) {
				t.Errorf("Expected message to contain %q, got %q", tt.wantMessage, message)
			}
		})
	}

	if subject, _ := formatAlert(NewEvent("unknown", SeverityInfo, "")); subject != "" {
		t.Errorf("Expected empty subject for unknown event, got %q", subject)
	}
}

func TestAlertHandler_Cooldown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rec := &recordingNotifier{}
	h := NewAlertHandler(AlertConfig{
		Notifiers:        []Notifier{rec},
		CooldownDuration: time.Minute,
		Clock:            func() time.Time { return now },
	})

	event := NewEvent(EventLyricsTokenRefreshFailed, SeverityCritical, "").WithData("error", "boom")

	h.HandleEvent(event)
	h.HandleEvent(event)
	if rec.count() != 1 {
		t.Fatalf("Expected 1 alert within cooldown, got %d", rec.count())
	}

	// other event types have their own cooldown
	h.HandleEvent(NewEvent(EventLyricsTokenAnonymous, SeverityWarning, ""))
	if rec.count() != 2 {
		t.Fatalf("Expected 2 alerts, got %d", rec.count())
	}

	now = now.Add(time.Minute)
	h.HandleEvent(event)
	if rec.count() != 3 {
		t.Errorf("Expected alert after cooldown, got %d", rec.count())
	}

	h.ResetCooldown(EventLyricsTokenRefreshFailed)
	h.HandleEvent(event)
	if rec.count() != 4 {
		t.Errorf("Expected alert after reset, got %d", rec.count())
	}
}

func TestAlertHandler_NotifierFailureDoesNotStopOthers(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("smtp down")}
	ok := &recordingNotifier{}
	h := NewAlertHandler(AlertConfig{Notifiers: []Notifier{failing, ok}})

	h.HandleEvent(NewEvent(EventServerStarted, SeverityInfo, "").WithData("port", "7900"))

	if failing.count() != 1 || ok.count() != 1 {
		t.Errorf("Expected both notifiers attempted, got %d and %d", failing.count(), ok.count())
	}
}

func TestEventBus_Publish(t *testing.T) {
	bus := NewEventBus()

	var wg sync.WaitGroup
	wg.Add(2)

	var mu sync.Mutex
	var got []EventType
	record := func(e *Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
		wg.Done()
	}

	bus.Subscribe(EventCacheCleared, record)
	bus.SubscribeAll(record)
	bus.Subscribe(EventServerStarted, func(e *Event) {
		t.Error("Handler for another event type should not run")
	})

	bus.Publish(NewEvent(EventCacheCleared, SeverityInfo, "cleared"))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for handlers")
	}

	if len(got) != 2 {
		t.Errorf("Expected 2 deliveries, got %d", len(got))
	}
}
