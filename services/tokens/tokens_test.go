package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"now-playing-api-go/cache"
	"now-playing-api-go/services/colorlyrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(ms int64) *fakeClock {
	return &fakeClock{now: time.UnixMilli(ms)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.UnixMilli(ms)
}

type fakeUserRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeUserRefresher) RefreshAccessToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("user-token-%d", f.calls), nil
}

type fakeSessionRefresher struct {
	mu        sync.Mutex
	calls     int
	expiresAt int64
	err       error
}

func (f *fakeSessionRefresher) SessionToken(ctx context.Context) (*colorlyrics.SessionToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &colorlyrics.SessionToken{
		AccessToken: fmt.Sprintf("lyrics-token-%d", f.calls),
		ExpiresAtMs: f.expiresAt,
	}, nil
}

const (
	window = time.Hour
	margin = 10 * time.Second
	t0     = int64(1_700_000_000_000)
)

func TestUserTokens_FirstCallRefreshes(t *testing.T) {
	store := cache.NewMemoryStore()
	refresher := &fakeUserRefresher{}
	clock := newFakeClock(t0)
	tokens := NewUserTokens(store, refresher, window, WithClock(clock.Now))

	token, err := tokens.Token(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token != "user-token-1" {
		t.Errorf("Expected user-token-1, got %q", token)
	}

	stored, _, _ := cache.Get[string](store, cache.KeyUserToken)
	if stored != token {
		t.Errorf("Expected stored token %q, got %q", token, stored)
	}
	last, _, _ := cache.Get[int64](store, cache.KeyUserTokenLastRefreshed)
	if last != t0 {
		t.Errorf("Expected last refreshed %d, got %d", t0, last)
	}
}

func TestUserTokens_WindowBoundary(t *testing.T) {
	windowMs := window.Milliseconds()

	tests := []struct {
		name        string
		offsetMs    int64
		wantRefresh bool
	}{
		{"well inside window", windowMs / 2, false},
		{"exactly at window", windowMs, false},
		{"one millisecond past window", windowMs + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cache.NewMemoryStore()
			cache.Set(store, cache.KeyUserToken, "cached")
			cache.Set(store, cache.KeyUserTokenLastRefreshed, t0)

			refresher := &fakeUserRefresher{}
			clock := newFakeClock(t0 + tt.offsetMs)
			tokens := NewUserTokens(store, refresher, window, WithClock(clock.Now))

			token, err := tokens.Token(context.Background())
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if tt.wantRefresh {
				if refresher.calls != 1 {
					t.Errorf("Expected exactly 1 refresh, got %d", refresher.calls)
				}
				if token != "user-token-1" {
					t.Errorf("Expected refreshed token, got %q", token)
				}
				last, _, _ := cache.Get[int64](store, cache.KeyUserTokenLastRefreshed)
				if last != t0+tt.offsetMs {
					t.Errorf("Expected last refreshed %d, got %d", t0+tt.offsetMs, last)
				}
			} else {
				if refresher.calls != 0 {
					t.Errorf("Expected no refresh, got %d", refresher.calls)
				}
				if token != "cached" {
					t.Errorf("Expected cached token, got %q", token)
				}
			}
		})
	}
}

func TestUserTokens_Idempotent(t *testing.T) {
	store := cache.NewMemoryStore()
	refresher := &fakeUserRefresher{}
	clock := newFakeClock(t0)
	tokens := NewUserTokens(store, refresher, window, WithClock(clock.Now))

	first, _ := tokens.Token(context.Background())
	clock.Set(t0 + 1000)
	second, _ := tokens.Token(context.Background())

	if first != second {
		t.Errorf("Expected same token, got %q and %q", first, second)
	}
	if refresher.calls != 1 {
		t.Errorf("Expected 1 refresh, got %d", refresher.calls)
	}
}

func TestUserTokens_ConcurrentCallersRefreshOnce(t *testing.T) {
	store := cache.NewMemoryStore()
	refresher := &fakeUserRefresher{}
	tokens := NewUserTokens(store, refresher, window, WithClock(newFakeClock(t0).Now))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens.Token(context.Background())
		}()
	}
	wg.Wait()

	if refresher.calls != 1 {
		t.Errorf("Expected 1 refresh across concurrent callers, got %d", refresher.calls)
	}
}

func TestUserTokens_RefreshFailureLeavesStoreUntouched(t *testing.T) {
	store := cache.NewMemoryStore()
	cache.Set(store, cache.KeyUserToken, "old")
	cache.Set(store, cache.KeyUserTokenLastRefreshed, t0)

	refresher := &fakeUserRefresher{err: errors.New("invalid_grant")}
	clock := newFakeClock(t0 + window.Milliseconds() + 1)
	tokens := NewUserTokens(store, refresher, window, WithClock(clock.Now))

	if _, err := tokens.Token(context.Background()); err == nil {
		t.Fatal("Expected error, got nil")
	}

	token, _, _ := cache.Get[string](store, cache.KeyUserToken)
	last, _, _ := cache.Get[int64](store, cache.KeyUserTokenLastRefreshed)
	if token != "old" || last != t0 {
		t.Errorf("Expected store untouched, got token=%q last=%d", token, last)
	}
}

func TestUserTokens_Status(t *testing.T) {
	store := cache.NewMemoryStore()
	clock := newFakeClock(t0)
	tokens := NewUserTokens(store, &fakeUserRefresher{}, window, WithClock(clock.Now))

	status, err := tokens.Status()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if status.Cached || !status.NeedsRefresh || status.RefreshedAt != nil {
		t.Errorf("Unexpected empty status: %+v", status)
	}

	tokens.Token(context.Background())
	status, _ = tokens.Status()
	if !status.Cached || status.NeedsRefresh {
		t.Errorf("Unexpected status after refresh: %+v", status)
	}
	if status.RefreshedAt == nil || status.RefreshedAt.UnixMilli() != t0 {
		t.Errorf("Expected refreshed at %d, got %v", t0, status.RefreshedAt)
	}
}

func TestNewUserTokens_DefaultWindow(t *testing.T) {
	tokens := NewUserTokens(cache.NewMemoryStore(), &fakeUserRefresher{}, 0)
	if tokens.window != DefaultRefreshWindow {
		t.Errorf("Expected default window %v, got %v", DefaultRefreshWindow, tokens.window)
	}
}

func TestLyricsTokens_FirstCallRefreshes(t *testing.T) {
	store := cache.NewMemoryStore()
	refresher := &fakeSessionRefresher{expiresAt: t0 + 3_600_000}
	tokens := NewLyricsTokens(store, refresher, margin, WithClock(newFakeClock(t0).Now))

	token, err := tokens.Token(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token != "lyrics-token-1" {
		t.Errorf("Expected lyrics-token-1, got %q", token)
	}

	expiresAt, _, _ := cache.Get[int64](store, cache.KeyLyricAPITokenExpiresAt)
	if expiresAt != t0+3_600_000 {
		t.Errorf("Expected stored expiry %d, got %d", t0+3_600_000, expiresAt)
	}
}

func TestLyricsTokens_SafetyMargin(t *testing.T) {
	expiresAt := t0 + 3_600_000
	marginMs := margin.Milliseconds()

	tests := []struct {
		name        string
		nowMs       int64
		wantRefresh bool
	}{
		{"long before expiry", t0, false},
		{"one millisecond before margin", expiresAt - marginMs - 1, false},
		{"exactly at margin", expiresAt - marginMs, false},
		{"one millisecond inside margin", expiresAt - marginMs + 1, true},
		{"after expiry", expiresAt + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cache.NewMemoryStore()
			cache.Set(store, cache.KeyLyricAPIToken, "cached")
			cache.Set(store, cache.KeyLyricAPITokenExpiresAt, expiresAt)

			refresher := &fakeSessionRefresher{expiresAt: expiresAt + 3_600_000}
			tokens := NewLyricsTokens(store, refresher, margin, WithClock(newFakeClock(tt.nowMs).Now))

			token, err := tokens.Token(context.Background())
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if tt.wantRefresh {
				if refresher.calls != 1 {
					t.Errorf("Expected exactly 1 refresh, got %d", refresher.calls)
				}
				if token != "lyrics-token-1" {
					t.Errorf("Expected refreshed token, got %q", token)
				}
			} else {
				if refresher.calls != 0 {
					t.Errorf("Expected no refresh, got %d", refresher.calls)
				}
				if token != "cached" {
					t.Errorf("Expected cached token, got %q", token)
				}
			}
		})
	}
}

func TestLyricsTokens_RefreshFailure(t *testing.T) {
	store := cache.NewMemoryStore()
	refresher := &fakeSessionRefresher{err: errors.New("cookie expired")}
	tokens := NewLyricsTokens(store, refresher, margin, WithClock(newFakeClock(t0).Now))

	if _, err := tokens.Token(context.Background()); err == nil {
		t.Fatal("Expected error, got nil")
	}
	if _, ok, _ := cache.Get[string](store, cache.KeyLyricAPIToken); ok {
		t.Error("Expected no token stored after failed refresh")
	}
	if _, ok, _ := cache.Get[int64](store, cache.KeyLyricAPITokenExpiresAt); ok {
		t.Error("Expected no expiry stored after failed refresh")
	}
}

func TestLyricsTokens_Status(t *testing.T) {
	store := cache.NewMemoryStore()
	expiresAt := t0 + 3_600_000
	refresher := &fakeSessionRefresher{expiresAt: expiresAt}
	tokens := NewLyricsTokens(store, refresher, margin, WithClock(newFakeClock(t0).Now))

	tokens.Token(context.Background())
	status, err := tokens.Status()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !status.Cached || status.NeedsRefresh {
		t.Errorf("Unexpected status: %+v", status)
	}
	if status.ExpiresAt == nil || status.ExpiresAt.UnixMilli() != expiresAt {
		t.Errorf("Expected expires at %d, got %v", expiresAt, status.ExpiresAt)
	}
}

func TestNewLyricsTokens_NegativeMarginUsesDefault(t *testing.T) {
	tokens := NewLyricsTokens(cache.NewMemoryStore(), &fakeSessionRefresher{}, -time.Second)
	if tokens.margin != DefaultSafetyMargin {
		t.Errorf("Expected default margin %v, got %v", DefaultSafetyMargin, tokens.margin)
	}
}

// failingStore rejects writes to one key
type failingStore struct {
	*cache.MemoryStore
	failKey cache.Key
}

func (s *failingStore) Save(key cache.Key, data []byte) error {
	if key == s.failKey {
		return errors.New("disk full")
	}
	return s.MemoryStore.Save(key, data)
}

func TestUserTokens_FailedTokenWriteKeepsOldTimestamp(t *testing.T) {
	mem := cache.NewMemoryStore()
	cache.Set(mem, cache.KeyUserToken, "old-token")
	cache.Set(mem, cache.KeyUserTokenLastRefreshed, t0)

	clock := newFakeClock(t0 + window.Milliseconds() + 1)
	store := &failingStore{MemoryStore: mem, failKey: cache.KeyUserToken}
	mgr := NewUserTokens(store, &fakeUserRefresher{}, window, WithClock(clock.Now))

	if _, err := mgr.Token(context.Background()); err == nil {
		t.Fatal("Expected error when the token cannot be saved")
	}

	last, _, _ := cache.Get[int64](mem, cache.KeyUserTokenLastRefreshed)
	if last != t0 {
		t.Errorf("Expected last refreshed to stay %d, got %d", t0, last)
	}

	// the old token must still be treated as stale
	store.failKey = ""
	token, err := mgr.Token(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token == "old-token" {
		t.Error("Expected a refreshed token, got the old one")
	}
}

func TestUserTokens_FailedTimestampWriteForcesRefresh(t *testing.T) {
	mem := cache.NewMemoryStore()
	store := &failingStore{MemoryStore: mem, failKey: cache.KeyUserTokenLastRefreshed}
	refresher := &fakeUserRefresher{}
	mgr := NewUserTokens(store, refresher, window, WithClock(newFakeClock(t0).Now))

	token, err := mgr.Token(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token != "user-token-1" {
		t.Errorf("Expected user-token-1, got %q", token)
	}
	if saved, _, _ := cache.Get[string](mem, cache.KeyUserToken); saved != "user-token-1" {
		t.Errorf("Expected token saved, got %q", saved)
	}

	// no timestamp was stored, so the next call refreshes again
	if _, err := mgr.Token(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if refresher.calls != 2 {
		t.Errorf("Expected 2 refreshes, got %d", refresher.calls)
	}
}

func TestLyricsTokens_FailedTokenWriteKeepsOldExpiry(t *testing.T) {
	mem := cache.NewMemoryStore()
	cache.Set(mem, cache.KeyLyricAPIToken, "old-token")
	cache.Set(mem, cache.KeyLyricAPITokenExpiresAt, t0)

	store := &failingStore{MemoryStore: mem, failKey: cache.KeyLyricAPIToken}
	refresher := &fakeSessionRefresher{expiresAt: t0 + window.Milliseconds()}
	mgr := NewLyricsTokens(store, refresher, margin, WithClock(newFakeClock(t0+1).Now))

	if _, err := mgr.Token(context.Background()); err == nil {
		t.Fatal("Expected error when the token cannot be saved")
	}

	expiresAt, _, _ := cache.Get[int64](mem, cache.KeyLyricAPITokenExpiresAt)
	if expiresAt != t0 {
		t.Errorf("Expected expiry to stay %d, got %d", t0, expiresAt)
	}
}

func TestLyricsTokens_FailedExpiryWriteForcesRefresh(t *testing.T) {
	mem := cache.NewMemoryStore()
	store := &failingStore{MemoryStore: mem, failKey: cache.KeyLyricAPITokenExpiresAt}
	refresher := &fakeSessionRefresher{expiresAt: t0 + window.Milliseconds()}
	mgr := NewLyricsTokens(store, refresher, margin, WithClock(newFakeClock(t0).Now))

	token, err := mgr.Token(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token != "lyrics-token-1" {
		t.Errorf("Expected lyrics-token-1, got %q", token)
	}

	if _, err := mgr.Token(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if refresher.calls != 2 {
		t.Errorf("Expected 2 refreshes, got %d", refresher.calls)
	}
}
