package main

import (
	"encoding/json"

	"now-playing-api-go/cache"
	"now-playing-api-go/services/tokens"
)

const (
	noSongPlaying   = "No song playing"
	lyricsDisabled  = "Lyric fetching disabled."
	unauthorizedMsg = "Unauthorized"
)

// NowPlayingResponse is the body of a successful /spotify/now-playing call.
// SongData is the upstream payload, passed through untouched.
type NowPlayingResponse struct {
	SongData     json.RawMessage `json:"song_data"`
	CurrentLyric string          `json:"current_lyric"`
}

// CachePerformance contains lyric cache hit/miss statistics
type CachePerformance struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	NegativeHits int64   `json:"negative_hits"`
	HitRate      float64 `json:"hit_rate_percent"`
}

// CachedTrack describes the lyric cache slot without its lines
type CachedTrack struct {
	TrackID   string `json:"track_id"`
	HasLyrics bool   `json:"has_lyrics"`
	Lines     int    `json:"lines"`
	SyncType  string `json:"sync_type,omitempty"`
}

// CacheStatusResponse is the response format for /cache.
// Token values are never included.
type CacheStatusResponse struct {
	NumberOfKeys int               `json:"number_of_keys"`
	SizeInBytes  int               `json:"size_bytes"`
	Entries      []cache.EntryInfo `json:"entries"`
	UserToken    tokens.Status     `json:"user_token"`
	LyricsToken  tokens.Status     `json:"lyrics_token"`
	LyricCache   *CachedTrack      `json:"lyric_cache,omitempty"`
	Performance  CachePerformance  `json:"performance"`
}
