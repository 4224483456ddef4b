package stats

import (
	"sync/atomic"
	"time"
)

// Token kinds for refresh counters
const (
	TokenUser   = "user"
	TokenLyrics = "lyrics"
)

// Stats holds all server statistics with atomic counters
type Stats struct {
	StartTime time.Time

	// Request counters
	TotalRequests      atomic.Int64
	NowPlayingRequests atomic.Int64
	CacheRequests      atomic.Int64
	StatsRequests      atomic.Int64
	HealthRequests     atomic.Int64
	OtherRequests      atomic.Int64

	// Playback outcomes
	NoSongPlaying    atomic.Int64
	LyricsDisabled   atomic.Int64
	UpstreamFailures atomic.Int64

	// Lyric cache performance
	CacheHits         atomic.Int64
	CacheMisses       atomic.Int64
	NegativeCacheHits atomic.Int64

	// Token refreshes
	UserTokenRefreshes         atomic.Int64
	UserTokenRefreshFailures   atomic.Int64
	LyricsTokenRefreshes       atomic.Int64
	LyricsTokenRefreshFailures atomic.Int64

	// Rate limiting
	RateLimitAllowed  atomic.Int64
	RateLimitExceeded atomic.Int64

	// Response status codes
	Status2xx atomic.Int64
	Status4xx atomic.Int64
	Status5xx atomic.Int64

	// Response time tracking (in microseconds for precision)
	totalResponseTime atomic.Int64
	responseCount     atomic.Int64
	minResponseTime   atomic.Int64
	maxResponseTime   atomic.Int64
}

// Global stats instance
var global = New()

// New returns an empty Stats starting now
func New() *Stats {
	s := &Stats{StartTime: time.Now()}
	s.minResponseTime.Store(int64(^uint64(0) >> 1)) // Max int64
	return s
}

// Get returns the global stats instance
func Get() *Stats {
	return global
}

// RecordRequest records a request to a specific endpoint
func (s *Stats) RecordRequest(endpoint string) {
	s.TotalRequests.Add(1)
	switch endpoint {
	case "/spotify/now-playing":
		s.NowPlayingRequests.Add(1)
	case "/cache", "/cache/clear":
		s.CacheRequests.Add(1)
	case "/stats":
		s.StatsRequests.Add(1)
	case "/health":
		s.HealthRequests.Add(1)
	default:
		s.OtherRequests.Add(1)
	}
}

// RecordCacheHit records a lyric cache hit
func (s *Stats) RecordCacheHit() {
	s.CacheHits.Add(1)
}

// RecordCacheMiss records a lyric cache miss
func (s *Stats) RecordCacheMiss() {
	s.CacheMisses.Add(1)
}

// RecordNegativeCacheHit records a hit on a cached "no lyrics" entry
func (s *Stats) RecordNegativeCacheHit() {
	s.NegativeCacheHits.Add(1)
}

// RecordTokenRefresh records a successful token refresh
func (s *Stats) RecordTokenRefresh(kind string) {
	switch kind {
	case TokenUser:
		s.UserTokenRefreshes.Add(1)
	case TokenLyrics:
		s.LyricsTokenRefreshes.Add(1)
	}
}

// RecordTokenRefreshFailure records a failed token refresh
func (s *Stats) RecordTokenRefreshFailure(kind string) {
	switch kind {
	case TokenUser:
		s.UserTokenRefreshFailures.Add(1)
	case TokenLyrics:
		s.LyricsTokenRefreshFailures.Add(1)
	}
}

// RecordRateLimit records whether a request passed the rate limiter
func (s *Stats) RecordRateLimit(allowed bool) {
	if allowed {
		s.RateLimitAllowed.Add(1)
	} else {
		s.RateLimitExceeded.Add(1)
	}
}

// RecordStatusCode records a response status code
func (s *Stats) RecordStatusCode(code int) {
	switch {
	case code >= 200 && code < 300:
		s.Status2xx.Add(1)
	case code >= 400 && code < 500:
		s.Status4xx.Add(1)
	case code >= 500:
		s.Status5xx.Add(1)
	}
}

// RecordResponseTime records a response time
func (s *Stats) RecordResponseTime(duration time.Duration) {
	us := duration.Microseconds()

	s.totalResponseTime.Add(us)
	s.responseCount.Add(1)

	for {
		current := s.minResponseTime.Load()
		if us >= current || s.minResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
	for {
		current := s.maxResponseTime.Load()
		if us <= current || s.maxResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
}

// Uptime returns the server uptime
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// CacheHitRate returns the lyric cache hit rate as a percentage.
// Negative hits count as hits.
func (s *Stats) CacheHitRate() float64 {
	hits := s.CacheHits.Load() + s.NegativeCacheHits.Load()
	total := hits + s.CacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// AvgResponseTime returns the average response time
func (s *Stats) AvgResponseTime() time.Duration {
	count := s.responseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.totalResponseTime.Load()/count) * time.Microsecond
}

// MinResponseTime returns the minimum response time
func (s *Stats) MinResponseTime() time.Duration {
	min := s.minResponseTime.Load()
	if min == int64(^uint64(0)>>1) {
		return 0
	}
	return time.Duration(min) * time.Microsecond
}

// MaxResponseTime returns the maximum response time
func (s *Stats) MaxResponseTime() time.Duration {
	return time.Duration(s.maxResponseTime.Load()) * time.Microsecond
}

// Snapshot returns a point-in-time snapshot of all stats
func (s *Stats) Snapshot() map[string]interface{} {
	uptime := s.Uptime()

	return map[string]interface{}{
		"server": map[string]interface{}{
			"start_time":     s.StartTime.Format(time.RFC3339),
			"uptime":         uptime.String(),
			"uptime_seconds": int64(uptime.Seconds()),
		},
		"requests": map[string]interface{}{
			"total":       s.TotalRequests.Load(),
			"now_playing": s.NowPlayingRequests.Load(),
			"cache":       s.CacheRequests.Load(),
			"stats":       s.StatsRequests.Load(),
			"health":      s.HealthRequests.Load(),
			"other":       s.OtherRequests.Load(),
		},
		"playback": map[string]interface{}{
			"no_song_playing":   s.NoSongPlaying.Load(),
			"lyrics_disabled":   s.LyricsDisabled.Load(),
			"upstream_failures": s.UpstreamFailures.Load(),
		},
		"lyric_cache": map[string]interface{}{
			"hits":          s.CacheHits.Load(),
			"misses":        s.CacheMisses.Load(),
			"negative_hits": s.NegativeCacheHits.Load(),
			"hit_rate":      s.CacheHitRate(),
		},
		"token_refreshes": map[string]interface{}{
			"user":            s.UserTokenRefreshes.Load(),
			"user_failures":   s.UserTokenRefreshFailures.Load(),
			"lyrics":          s.LyricsTokenRefreshes.Load(),
			"lyrics_failures": s.LyricsTokenRefreshFailures.Load(),
		},
		"rate_limiting": map[string]interface{}{
			"allowed":  s.RateLimitAllowed.Load(),
			"exceeded": s.RateLimitExceeded.Load(),
		},
		"responses": map[string]interface{}{
			"2xx": s.Status2xx.Load(),
			"4xx": s.Status4xx.Load(),
			"5xx": s.Status5xx.Load(),
		},
		"response_times": map[string]interface{}{
			"avg": s.AvgResponseTime().String(),
			"min": s.MinResponseTime().String(),
			"max": s.MaxResponseTime().String(),
		},
	}
}
