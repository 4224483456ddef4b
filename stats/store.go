package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"now-playing-api-go/logcolors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	statsBucketName = "stats"
	statsKey        = "server_stats"
)

// Store persists cumulative counters in their own BoltDB file so they
// survive restarts. The cache store is wiped on boot, stats are not.
type Store struct {
	db       *bolt.DB
	dbPath   string
	stats    *Stats
	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// PersistedStats is the on-disk form of Stats
type PersistedStats struct {
	TotalRequests      int64 `json:"total_requests"`
	NowPlayingRequests int64 `json:"now_playing_requests"`
	CacheRequests      int64 `json:"cache_requests"`
	StatsRequests      int64 `json:"stats_requests"`
	HealthRequests     int64 `json:"health_requests"`
	OtherRequests      int64 `json:"other_requests"`

	NoSongPlaying    int64 `json:"no_song_playing"`
	LyricsDisabled   int64 `json:"lyrics_disabled"`
	UpstreamFailures int64 `json:"upstream_failures"`

	CacheHits         int64 `json:"cache_hits"`
	CacheMisses       int64 `json:"cache_misses"`
	NegativeCacheHits int64 `json:"negative_cache_hits"`

	UserTokenRefreshes         int64 `json:"user_token_refreshes"`
	UserTokenRefreshFailures   int64 `json:"user_token_refresh_failures"`
	LyricsTokenRefreshes       int64 `json:"lyrics_token_refreshes"`
	LyricsTokenRefreshFailures int64 `json:"lyrics_token_refresh_failures"`

	RateLimitAllowed  int64 `json:"rate_limit_allowed"`
	RateLimitExceeded int64 `json:"rate_limit_exceeded"`

	Status2xx int64 `json:"status_2xx"`
	Status4xx int64 `json:"status_4xx"`
	Status5xx int64 `json:"status_5xx"`

	TotalResponseTime int64 `json:"total_response_time"`
	ResponseCount     int64 `json:"response_count"`
	MinResponseTime   int64 `json:"min_response_time"`
	MaxResponseTime   int64 `json:"max_response_time"`

	LastSaved    time.Time `json:"last_saved"`
	FirstStarted time.Time `json:"first_started"`
}

// NewStore opens (or creates) the stats database at dbPath for s
func NewStore(dbPath string, s *Stats) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %v", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %v", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(statsBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create stats bucket: %v", err)
	}

	log.Infof("%s Stats store initialized at %s", logcolors.LogStats, dbPath)
	return &Store{
		db:       db,
		dbPath:   dbPath,
		stats:    s,
		stopChan: make(chan struct{}),
	}, nil
}

// Load applies previously persisted counters to the attached Stats
func (st *Store) Load() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	var p PersistedStats
	found := false
	err := st.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(statsBucketName)).Get([]byte(statsKey))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return fmt.Errorf("failed to load stats: %v", err)
	}
	if !found {
		return nil
	}

	s := st.stats
	s.TotalRequests.Store(p.TotalRequests)
	s.NowPlayingRequests.Store(p.NowPlayingRequests)
	s.CacheRequests.Store(p.CacheRequests)
	s.StatsRequests.Store(p.StatsRequests)
	s.HealthRequests.Store(p.HealthRequests)
	s.OtherRequests.Store(p.OtherRequests)
	s.NoSongPlaying.Store(p.NoSongPlaying)
	s.LyricsDisabled.Store(p.LyricsDisabled)
	s.UpstreamFailures.Store(p.UpstreamFailures)
	s.CacheHits.Store(p.CacheHits)
	s.CacheMisses.Store(p.CacheMisses)
	s.NegativeCacheHits.Store(p.NegativeCacheHits)
	s.UserTokenRefreshes.Store(p.UserTokenRefreshes)
	s.UserTokenRefreshFailures.Store(p.UserTokenRefreshFailures)
	s.LyricsTokenRefreshes.Store(p.LyricsTokenRefreshes)
	s.LyricsTokenRefreshFailures.Store(p.LyricsTokenRefreshFailures)
	s.RateLimitAllowed.Store(p.RateLimitAllowed)
	s.RateLimitExceeded.Store(p.RateLimitExceeded)
	s.Status2xx.Store(p.Status2xx)
	s.Status4xx.Store(p.Status4xx)
	s.Status5xx.Store(p.Status5xx)
	s.totalResponseTime.Store(p.TotalResponseTime)
	s.responseCount.Store(p.ResponseCount)

	if p.MinResponseTime > 0 && p.MinResponseTime < int64(^uint64(0)>>1) {
		s.minResponseTime.Store(p.MinResponseTime)
	}
	if p.MaxResponseTime > 0 {
		s.maxResponseTime.Store(p.MaxResponseTime)
	}
	if !p.FirstStarted.IsZero() {
		s.StartTime = p.FirstStarted
	}

	log.Infof("%s Loaded persisted stats (total requests: %d, first started: %s)",
		logcolors.LogStats, p.TotalRequests, p.FirstStarted.Format(time.RFC3339))
	return nil
}

// Save writes the current counters to disk
func (st *Store) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.stats
	p := PersistedStats{
		TotalRequests:              s.TotalRequests.Load(),
		NowPlayingRequests:         s.NowPlayingRequests.Load(),
		CacheRequests:              s.CacheRequests.Load(),
		StatsRequests:              s.StatsRequests.Load(),
		HealthRequests:             s.HealthRequests.Load(),
		OtherRequests:              s.OtherRequests.Load(),
		NoSongPlaying:              s.NoSongPlaying.Load(),
		LyricsDisabled:             s.LyricsDisabled.Load(),
		UpstreamFailures:           s.UpstreamFailures.Load(),
		CacheHits:                  s.CacheHits.Load(),
		CacheMisses:                s.CacheMisses.Load(),
		NegativeCacheHits:          s.NegativeCacheHits.Load(),
		UserTokenRefreshes:         s.UserTokenRefreshes.Load(),
		UserTokenRefreshFailures:   s.UserTokenRefreshFailures.Load(),
		LyricsTokenRefreshes:       s.LyricsTokenRefreshes.Load(),
		LyricsTokenRefreshFailures: s.LyricsTokenRefreshFailures.Load(),
		RateLimitAllowed:           s.RateLimitAllowed.Load(),
		RateLimitExceeded:          s.RateLimitExceeded.Load(),
		Status2xx:                  s.Status2xx.Load(),
		Status4xx:                  s.Status4xx.Load(),
		Status5xx:                  s.Status5xx.Load(),
		TotalResponseTime:          s.totalResponseTime.Load(),
		ResponseCount:              s.responseCount.Load(),
		MinResponseTime:            s.minResponseTime.Load(),
		MaxResponseTime:            s.maxResponseTime.Load(),
		LastSaved:                  time.Now(),
		FirstStarted:               s.StartTime,
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %v", err)
	}

	err = st.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(statsBucketName)).Put([]byte(statsKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save stats: %v", err)
	}
	return nil
}

// StartAutoSave saves periodically until Close
func (st *Store) StartAutoSave(interval time.Duration) {
	if interval <= 0 {
		return
	}
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := st.Save(); err != nil {
					log.Warnf("%s Failed to auto-save stats: %v", logcolors.LogStats, err)
				}
			case <-st.stopChan:
				return
			}
		}
	}()
	log.Infof("%s Started auto-save with interval %v", logcolors.LogStats, interval)
}

// Close stops auto-save, saves once more and closes the database
func (st *Store) Close() error {
	st.stopOnce.Do(func() { close(st.stopChan) })
	st.wg.Wait()

	if err := st.Save(); err != nil {
		log.Warnf("%s Failed to save stats on close: %v", logcolors.LogStats, err)
	} else {
		log.Infof("%s Stats saved on shutdown", logcolors.LogStats)
	}
	return st.db.Close()
}
