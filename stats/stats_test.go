package stats

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestRecordRequest(t *testing.T) {
	s := New()

	tests := []struct {
		endpoint string
		counter  func() int64
	}{
		{"/spotify/now-playing", s.NowPlayingRequests.Load},
		{"/cache", s.CacheRequests.Load},
		{"/cache/clear", s.CacheRequests.Load},
		{"/stats", s.StatsRequests.Load},
		{"/health", s.HealthRequests.Load},
		{"/", s.OtherRequests.Load},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			before := tt.counter()
			s.RecordRequest(tt.endpoint)
			if got := tt.counter(); got != before+1 {
				t.Errorf("Expected counter %d, got %d", before+1, got)
			}
		})
	}

	if got := s.TotalRequests.Load(); got != int64(len(tests)) {
		t.Errorf("Expected %d total requests, got %d", len(tests), got)
	}
}

func TestRecordTokenRefresh(t *testing.T) {
	s := New()
	s.RecordTokenRefresh(TokenUser)
	s.RecordTokenRefresh(TokenLyrics)
	s.RecordTokenRefresh(TokenLyrics)
	s.RecordTokenRefreshFailure(TokenUser)
	s.RecordTokenRefresh("unknown")

	if got := s.UserTokenRefreshes.Load(); got != 1 {
		t.Errorf("Expected 1 user refresh, got %d", got)
	}
	if got := s.LyricsTokenRefreshes.Load(); got != 2 {
		t.Errorf("Expected 2 lyrics refreshes, got %d", got)
	}
	if got := s.UserTokenRefreshFailures.Load(); got != 1 {
		t.Errorf("Expected 1 user refresh failure, got %d", got)
	}
}

func TestCacheHitRate(t *testing.T) {
	s := New()
	if rate := s.CacheHitRate(); rate != 0 {
		t.Errorf("Expected 0 hit rate with no lookups, got %f", rate)
	}

	s.RecordCacheHit()
	s.RecordNegativeCacheHit()
	s.RecordCacheMiss()
	s.RecordCacheMiss()

	if rate := s.CacheHitRate(); rate != 50 {
		t.Errorf("Expected 50%% hit rate, got %f", rate)
	}
}

func TestRecordStatusCode(t *testing.T) {
	s := New()
	for _, code := range []int{200, 204, 304, 404, 412, 500, 503} {
		s.RecordStatusCode(code)
	}

	if got := s.Status2xx.Load(); got != 2 {
		t.Errorf("Expected 2 2xx, got %d", got)
	}
	if got := s.Status4xx.Load(); got != 2 {
		t.Errorf("Expected 2 4xx, got %d", got)
	}
	if got := s.Status5xx.Load(); got != 2 {
		t.Errorf("Expected 2 5xx, got %d", got)
	}
}

func TestResponseTimes(t *testing.T) {
	s := New()
	if s.MinResponseTime() != 0 || s.MaxResponseTime() != 0 || s.AvgResponseTime() != 0 {
		t.Error("Expected zero response times before any request")
	}

	s.RecordResponseTime(10 * time.Millisecond)
	s.RecordResponseTime(30 * time.Millisecond)

	if got := s.MinResponseTime(); got != 10*time.Millisecond {
		t.Errorf("Expected min 10ms, got %v", got)
	}
	if got := s.MaxResponseTime(); got != 30*time.Millisecond {
		t.Errorf("Expected max 30ms, got %v", got)
	}
	if got := s.AvgResponseTime(); got != 20*time.Millisecond {
		t.Errorf("Expected avg 20ms, got %v", got)
	}
}

func TestConcurrentRecording(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordRequest("/spotify/now-playing")
			s.RecordResponseTime(time.Millisecond)
			s.RecordRateLimit(true)
		}()
	}
	wg.Wait()

	if got := s.NowPlayingRequests.Load(); got != 50 {
		t.Errorf("Expected 50 requests, got %d", got)
	}
	if got := s.RateLimitAllowed.Load(); got != 50 {
		t.Errorf("Expected 50 allowed, got %d", got)
	}
}

func TestSnapshot(t *testing.T) {
	s := New()
	s.RecordRequest("/spotify/now-playing")
	s.NoSongPlaying.Add(1)

	snap := s.Snapshot()
	for _, section := range []string{"server", "requests", "playback", "lyric_cache", "token_refreshes", "rate_limiting", "responses", "response_times"} {
		if _, ok := snap[section]; !ok {
			t.Errorf("Expected section %q in snapshot", section)
		}
	}

	requests := snap["requests"].(map[string]interface{})
	if requests["now_playing"] != int64(1) {
		t.Errorf("Expected now_playing=1, got %v", requests["now_playing"])
	}
	playback := snap["playback"].(map[string]interface{})
	if playback["no_song_playing"] != int64(1) {
		t.Errorf("Expected no_song_playing=1, got %v", playback["no_song_playing"])
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stats.db")

	original := New()
	original.RecordRequest("/spotify/now-playing")
	original.RecordRequest("/health")
	original.RecordCacheHit()
	original.RecordTokenRefresh(TokenLyrics)
	original.RecordResponseTime(5 * time.Millisecond)

	store, err := NewStore(dbPath, original)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	restored := New()
	store, err = NewStore(dbPath, restored)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer store.Close()

	if err := store.Load(); err != nil {
		t.Fatalf("Failed to load stats: %v", err)
	}

	if got := restored.TotalRequests.Load(); got != 2 {
		t.Errorf("Expected 2 total requests, got %d", got)
	}
	if got := restored.CacheHits.Load(); got != 1 {
		t.Errorf("Expected 1 cache hit, got %d", got)
	}
	if got := restored.LyricsTokenRefreshes.Load(); got != 1 {
		t.Errorf("Expected 1 lyrics refresh, got %d", got)
	}
	if got := restored.MinResponseTime(); got != 5*time.Millisecond {
		t.Errorf("Expected min 5ms, got %v", got)
	}
	if !restored.StartTime.Equal(original.StartTime) {
		t.Errorf("Expected start time %v, got %v", original.StartTime, restored.StartTime)
	}
}

func TestStore_LoadEmpty(t *testing.T) {
	s := New()
	store, err := NewStore(filepath.Join(t.TempDir(), "stats.db"), s)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if err := store.Load(); err != nil {
		t.Fatalf("Expected no error loading empty store, got %v", err)
	}
	if got := s.TotalRequests.Load(); got != 0 {
		t.Errorf("Expected 0 requests, got %d", got)
	}
}
