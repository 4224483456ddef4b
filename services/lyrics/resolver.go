// Package lyrics resolves the lyric line active at a playback position,
// memoizing the lyrics of the most recently requested track.
package lyrics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"now-playing-api-go/cache"
	"now-playing-api-go/logcolors"
	"now-playing-api-go/services/colorlyrics"
	"now-playing-api-go/stats"

	log "github.com/sirupsen/logrus"
)

// NoLyricsFound is returned by LineAt when there is no line to show
const NoLyricsFound = "No lyrics found"

// Line is one cached lyric line
type Line struct {
	Words       string `json:"words"`
	StartTimeMs int64  `json:"start_time_ms"`
}

// Entry is the single-slot lyric cache value. Lyrics is nil when the track
// has no lyrics upstream.
type Entry struct {
	TrackID  string `json:"track_id"`
	Lyrics   []Line `json:"lyrics"`
	SyncType string `json:"sync_type,omitempty"`
}

// TokenProvider hands out a valid lyrics API token
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Fetcher downloads lyrics for a track
type Fetcher interface {
	TrackLyrics(ctx context.Context, accessToken, trackID string) (*colorlyrics.Lyrics, error)
}

// Resolver caches lyrics for one track at a time
type Resolver struct {
	store   cache.Store
	tokens  TokenProvider
	fetcher Fetcher
	mu      sync.Mutex
}

func NewResolver(store cache.Store, tokens TokenProvider, fetcher Fetcher) *Resolver {
	return &Resolver{store: store, tokens: tokens, fetcher: fetcher}
}

// LyricsForTrack returns the lyrics for trackID, or nil if it has none.
// Only the most recent track is kept; asking for another track replaces it.
func (r *Resolver) LyricsForTrack(ctx context.Context, trackID string) ([]Line, error) {
	entry, err := r.entry(ctx, trackID)
	if err != nil {
		return nil, err
	}
	return entry.Lyrics, nil
}

// LineAt returns the words of the line active at timeMs, or NoLyricsFound
func (r *Resolver) LineAt(ctx context.Context, trackID string, timeMs int64) (string, error) {
	entry, err := r.entry(ctx, trackID)
	if err != nil {
		return "", err
	}
	if entry.SyncType == colorlyrics.SyncTypeUnsynced {
		return NoLyricsFound, nil
	}
	return ActiveLine(entry.Lyrics, timeMs), nil
}

// Cached returns the current cache slot without touching the network
func (r *Resolver) Cached() (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, _, err := cache.Get[Entry](r.store, cache.KeyLyricCache)
	return entry, err
}

func (r *Resolver) entry(ctx context.Context, trackID string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cached, _, err := cache.Get[Entry](r.store, cache.KeyLyricCache)
	if err != nil {
		return Entry{}, err
	}
	if cached.TrackID != "" && cached.TrackID == trackID {
		if cached.Lyrics == nil {
			stats.Get().RecordNegativeCacheHit()
			log.Debugf("%s %s has no lyrics (cached)", logcolors.LogCacheNegative, trackID)
		} else {
			stats.Get().RecordCacheHit()
			log.Debugf("%s Hit for %s", logcolors.LogCacheLyrics, trackID)
		}
		return cached, nil
	}
	stats.Get().RecordCacheMiss()

	token, err := r.tokens.Token(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("lyrics token: %w", err)
	}

	log.Debugf("%s Fetching lyrics for %s", logcolors.LogLyrics, trackID)
	fetched, err := r.fetcher.TrackLyrics(ctx, token, trackID)
	if errors.Is(err, colorlyrics.ErrNotFound) {
		log.Infof("%s No lyrics for %s, caching negative result", logcolors.LogCacheNegative, trackID)
		return cache.Set(r.store, cache.KeyLyricCache, Entry{TrackID: trackID})
	}
	if err != nil {
		return Entry{}, fmt.Errorf("fetch lyrics for %s: %w", trackID, err)
	}

	lines := make([]Line, 0, len(fetched.Lines))
	for _, l := range fetched.Lines {
		lines = append(lines, Line{Words: l.Words, StartTimeMs: l.StartTimeMs})
	}
	log.Infof("%s Cached %d lines for %s (%s, %s)", logcolors.LogCacheLyrics, len(lines), trackID, fetched.SyncType, fetched.Provider)

	return cache.Set(r.store, cache.KeyLyricCache, Entry{
		TrackID:  trackID,
		Lyrics:   lines,
		SyncType: fetched.SyncType,
	})
}

// ActiveLine returns the words of the last line starting at or before timeMs.
// Lines must be ordered by start time.
func ActiveLine(lines []Line, timeMs int64) string {
	result := NoLyricsFound
	for _, l := range lines {
		if l.StartTimeMs > timeMs {
			break
		}
		result = l.Words
	}
	return result
}
