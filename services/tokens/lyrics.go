package tokens

import (
	"context"
	"sync"
	"time"

	"now-playing-api-go/cache"
	"now-playing-api-go/logcolors"
	"now-playing-api-go/services/notifier"
	"now-playing-api-go/stats"

	log "github.com/sirupsen/logrus"
)

// LyricsTokens caches the lyrics API session token until margin before the
// server-declared expiry.
type LyricsTokens struct {
	store     cache.Store
	refresher SessionTokenRefresher
	margin    time.Duration
	now       func() time.Time
	mu        sync.Mutex
}

func NewLyricsTokens(store cache.Store, refresher SessionTokenRefresher, margin time.Duration, opts ...Option) *LyricsTokens {
	if margin < 0 {
		margin = DefaultSafetyMargin
	}
	o := buildOptions(opts)
	return &LyricsTokens{
		store:     store,
		refresher: refresher,
		margin:    margin,
		now:       o.now,
	}
}

// Token returns the cached session token, refreshing it first when none is
// cached or it is within margin of expiring.
func (l *LyricsTokens) Token(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	token, _, err := cache.Get[string](l.store, cache.KeyLyricAPIToken)
	if err != nil {
		return "", err
	}
	expiresAt, _, err := cache.Get[int64](l.store, cache.KeyLyricAPITokenExpiresAt)
	if err != nil {
		return "", err
	}

	if !l.stale(token, expiresAt, l.now().UnixMilli()) {
		return token, nil
	}

	log.Infof("%s Refreshing lyrics session token", logcolors.LogLyricsToken)
	fresh, err := l.refresher.SessionToken(ctx)
	if err != nil {
		stats.Get().RecordTokenRefreshFailure(stats.TokenLyrics)
		notifier.PublishLyricsTokenRefreshFailed(err)
		log.Errorf("%s Refresh failed: %v", logcolors.LogLyricsToken, err)
		return "", err
	}
	stats.Get().RecordTokenRefresh(stats.TokenLyrics)

	// token before expiry: a failed second write leaves the entry stale, never falsely fresh
	if _, err := cache.Set(l.store, cache.KeyLyricAPIToken, fresh.AccessToken); err != nil {
		return "", err
	}
	if _, err := cache.Set(l.store, cache.KeyLyricAPITokenExpiresAt, fresh.ExpiresAtMs); err != nil {
		log.Warnf("%s Token saved but expiry was not: %v", logcolors.LogLyricsToken, err)
		return fresh.AccessToken, nil
	}
	log.Infof("%s Session token refreshed, expires at %s", logcolors.LogLyricsToken, time.UnixMilli(fresh.ExpiresAtMs).UTC().Format(time.RFC3339))
	return fresh.AccessToken, nil
}

func (l *LyricsTokens) stale(token string, expiresAtMs, nowMs int64) bool {
	return token == "" || nowMs > expiresAtMs-l.margin.Milliseconds()
}

// Status reports whether a session token is cached and when it expires
func (l *LyricsTokens) Status() (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	token, _, err := cache.Get[string](l.store, cache.KeyLyricAPIToken)
	if err != nil {
		return Status{}, err
	}
	expiresAt, _, err := cache.Get[int64](l.store, cache.KeyLyricAPITokenExpiresAt)
	if err != nil {
		return Status{}, err
	}

	return Status{
		Cached:       token != "",
		ExpiresAt:    msToTime(expiresAt),
		NeedsRefresh: l.stale(token, expiresAt, l.now().UnixMilli()),
	}, nil
}
