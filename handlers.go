package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"now-playing-api-go/cache"
	"now-playing-api-go/circuitbreaker"
	"now-playing-api-go/logcolors"
	"now-playing-api-go/services/lyrics"
	"now-playing-api-go/services/notifier"
	"now-playing-api-go/services/playback"
	"now-playing-api-go/services/tokens"
	"now-playing-api-go/stats"

	log "github.com/sirupsen/logrus"
)

type tokenManager interface {
	Token(ctx context.Context) (string, error)
	Status() (tokens.Status, error)
}

type playbackReader interface {
	CurrentlyPlaying(ctx context.Context, accessToken string) (*playback.Playback, error)
}

// app holds everything the handlers need
type app struct {
	store        cache.Store
	userTokens   tokenManager
	lyricsTokens tokenManager
	playback     playbackReader
	resolver     *lyrics.Resolver
	breaker      *circuitbreaker.CircuitBreaker
	accessToken  string
	notifiers    []notifier.Notifier
}

func (a *app) authorized(r *http.Request) bool {
	return a.accessToken != "" && r.Header.Get("Authorization") == a.accessToken
}

func (a *app) unauthorized(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).Error(http.StatusUnauthorized, map[string]string{"error": unauthorizedMsg})
}

func (a *app) fail(w http.ResponseWriter, r *http.Request, step string, err error) {
	stats.Get().UpstreamFailures.Add(1)
	log.Errorf("%s %s failed: %v", logcolors.LogNowPlaying, step, err)
	Respond(w, r).Error(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

// includeLyrics reads ?include_lyrics. Missing or unparseable means true.
func includeLyrics(r *http.Request) bool {
	raw := r.URL.Query().Get("include_lyrics")
	if raw == "" {
		return true
	}
	include, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return include
}

func (a *app) nowPlaying(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, err := a.userTokens.Token(ctx)
	if err != nil {
		a.fail(w, r, "user token", err)
		return
	}

	current, err := a.playback.CurrentlyPlaying(ctx, token)
	if errors.Is(err, playback.ErrNoActiveSession) {
		stats.Get().NoSongPlaying.Add(1)
		log.Debugf("%s Nothing playing", logcolors.LogNowPlaying)
		Respond(w, r).Error(http.StatusPreconditionFailed, map[string]string{"status": noSongPlaying})
		return
	}
	if err != nil {
		a.fail(w, r, "currently playing", err)
		return
	}

	resp := Respond(w, r)
	lyric := lyricsDisabled
	if includeLyrics(r) {
		lyric, err = a.resolver.LineAt(ctx, current.TrackID(), current.ProgressMs())
		if err != nil {
			a.fail(w, r, "lyrics", err)
			return
		}
		if lyric == lyrics.NoLyricsFound {
			resp.SetLyricStatus("none")
		} else {
			resp.SetLyricStatus("line")
		}
	} else {
		stats.Get().LyricsDisabled.Add(1)
		resp.SetLyricStatus("disabled")
	}

	log.Infof("%s %s at %dms", logcolors.LogNowPlaying, current.TrackID(), current.ProgressMs())
	resp.JSON(NowPlayingResponse{SongData: current.Raw, CurrentLyric: lyric})
}

func (a *app) health(w http.ResponseWriter, r *http.Request) {
	state, failures, retryIn := a.breaker.Stats()

	health := map[string]interface{}{
		"status":          "ok",
		"circuit_breaker": state.String(),
		"store":           "ok",
	}

	if state == circuitbreaker.StateOpen {
		health["status"] = "degraded"
		health["circuit_breaker_retry_in"] = retryIn.String()
	}

	if _, err := cache.Entries(a.store); err != nil {
		log.Errorf("%s Store check failed: %v", logcolors.LogHealthCheck, err)
		health["status"] = "unhealthy"
		health["store"] = "error"
	}

	if a.authorized(r) {
		health["circuit_breaker_failures"] = failures
		if status, err := a.userTokens.Status(); err == nil {
			health["user_token"] = status
		}
		if status, err := a.lyricsTokens.Status(); err == nil {
			health["lyrics_token"] = status
		}
	}

	Respond(w, r).JSON(health)
}

func (a *app) getStats(w http.ResponseWriter, r *http.Request) {
	if !a.authorized(r) {
		a.unauthorized(w, r)
		return
	}

	snapshot := stats.Get().Snapshot()

	if entries, err := cache.Entries(a.store); err == nil {
		size := 0
		for _, e := range entries {
			size += e.SizeBytes
		}
		snapshot["cache_storage"] = map[string]interface{}{
			"keys":       len(entries),
			"size_bytes": size,
		}
	}

	state, failures, retryIn := a.breaker.Stats()
	snapshot["circuit_breaker"] = map[string]interface{}{
		"state":            state.String(),
		"failures":         failures,
		"time_until_retry": retryIn.String(),
	}

	Respond(w, r).JSON(snapshot)
}

func (a *app) getCacheStatus(w http.ResponseWriter, r *http.Request) {
	if !a.authorized(r) {
		a.unauthorized(w, r)
		return
	}

	entries, err := cache.Entries(a.store)
	if err != nil {
		log.Errorf("%s Failed to list entries: %v", logcolors.LogCache, err)
		Respond(w, r).Error(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s := stats.Get()
	resp := CacheStatusResponse{
		NumberOfKeys: len(entries),
		Entries:      entries,
		Performance: CachePerformance{
			Hits:         s.CacheHits.Load(),
			Misses:       s.CacheMisses.Load(),
			NegativeHits: s.NegativeCacheHits.Load(),
			HitRate:      s.CacheHitRate(),
		},
	}
	for _, e := range entries {
		resp.SizeInBytes += e.SizeBytes
	}
	if resp.UserToken, err = a.userTokens.Status(); err != nil {
		log.Warnf("%s User token status: %v", logcolors.LogCache, err)
	}
	if resp.LyricsToken, err = a.lyricsTokens.Status(); err != nil {
		log.Warnf("%s Lyrics token status: %v", logcolors.LogCache, err)
	}

	if entry, err := a.resolver.Cached(); err != nil {
		log.Warnf("%s Lyric cache status: %v", logcolors.LogCache, err)
	} else if entry.TrackID != "" {
		resp.LyricCache = &CachedTrack{
			TrackID:   entry.TrackID,
			HasLyrics: entry.Lyrics != nil,
			Lines:     len(entry.Lyrics),
			SyncType:  entry.SyncType,
		}
	}

	Respond(w, r).JSON(resp)
}

func (a *app) clearCache(w http.ResponseWriter, r *http.Request) {
	if !a.authorized(r) {
		a.unauthorized(w, r)
		return
	}

	entries, _ := cache.Entries(a.store)
	if err := a.store.Reset(); err != nil {
		log.Errorf("%s Failed to clear cache: %v", logcolors.LogCacheClear, err)
		Respond(w, r).Error(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	log.Infof("%s Cache cleared (%d entries)", logcolors.LogCacheClear, len(entries))
	notifier.PublishCacheCleared(len(entries))
	Respond(w, r).JSON(map[string]interface{}{
		"message":         "Cache cleared successfully",
		"entries_removed": len(entries),
	})
}

func (a *app) getCircuitBreakerStatus(w http.ResponseWriter, r *http.Request) {
	if !a.authorized(r) {
		a.unauthorized(w, r)
		return
	}

	state, failures, retryIn := a.breaker.Stats()
	Respond(w, r).JSON(map[string]interface{}{
		"state":            state.String(),
		"failures":         failures,
		"threshold":        a.breaker.Threshold(),
		"time_until_retry": retryIn.String(),
	})
}

func (a *app) resetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	if !a.authorized(r) {
		a.unauthorized(w, r)
		return
	}

	a.breaker.Reset()
	Respond(w, r).JSON(map[string]string{"message": "Circuit breaker reset to CLOSED state"})
}

func (a *app) testNotifications(w http.ResponseWriter, r *http.Request) {
	if !a.authorized(r) {
		a.unauthorized(w, r)
		return
	}

	if len(a.notifiers) == 0 {
		Respond(w, r).Error(http.StatusBadRequest, map[string]interface{}{
			"error": "No notifiers configured",
			"help": map[string]string{
				"telegram": "Set NOTIFIER_TELEGRAM_BOT_TOKEN and NOTIFIER_TELEGRAM_CHAT_ID",
				"email":    "Set NOTIFIER_SMTP_HOST, NOTIFIER_SMTP_USERNAME, NOTIFIER_SMTP_PASSWORD, etc.",
				"ntfy":     "Set NOTIFIER_NTFY_TOPIC",
			},
		})
		return
	}

	results := make(map[string]string, len(a.notifiers))
	for _, n := range a.notifiers {
		name := notifierTypeName(n)
		if err := n.Send("🧪 Test Notification", "now-playing-api-go notifications are working."); err != nil {
			results[name] = err.Error()
			continue
		}
		results[name] = "sent"
	}

	Respond(w, r).JSON(map[string]interface{}{"results": results})
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(map[string]interface{}{
		"help": "Use /spotify/now-playing to get the currently playing track and its current lyric line. " +
			"Pass include_lyrics=false to skip the lyrics lookup.",
		"endpoints": map[string]string{
			"GET /spotify/now-playing":    "Currently playing track with current lyric line",
			"GET /health":                 "Service health",
			"GET /stats":                  "Server statistics (requires Authorization)",
			"GET /cache":                  "Cache keys, sizes and token status (requires Authorization)",
			"POST /cache/clear":           "Reset the cache store (requires Authorization)",
			"GET /circuit-breaker":        "Lyrics circuit breaker state (requires Authorization)",
			"POST /circuit-breaker/reset": "Close the lyrics circuit breaker (requires Authorization)",
			"POST /test-notifications":    "Send a test alert to every notifier (requires Authorization)",
		},
	})
}
