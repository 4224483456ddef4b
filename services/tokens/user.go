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

// UserTokens caches the playback API access token, refreshing it once
// window has elapsed since the last successful refresh.
type UserTokens struct {
	store     cache.Store
	refresher UserTokenRefresher
	window    time.Duration
	now       func() time.Time
	mu        sync.Mutex
}

func NewUserTokens(store cache.Store, refresher UserTokenRefresher, window time.Duration, opts ...Option) *UserTokens {
	if window <= 0 {
		window = DefaultRefreshWindow
	}
	o := buildOptions(opts)
	return &UserTokens{
		store:     store,
		refresher: refresher,
		window:    window,
		now:       o.now,
	}
}

// Token returns the cached access token, refreshing it first when none is
// cached or the refresh window has elapsed.
func (u *UserTokens) Token(ctx context.Context) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	token, _, err := cache.Get[string](u.store, cache.KeyUserToken)
	if err != nil {
		return "", err
	}
	lastRefreshed, _, err := cache.Get[int64](u.store, cache.KeyUserTokenLastRefreshed)
	if err != nil {
		return "", err
	}

	nowMs := u.now().UnixMilli()
	if !u.stale(token, lastRefreshed, nowMs) {
		return token, nil
	}

	log.Infof("%s Refreshing user access token (last refreshed %dms ago)", logcolors.LogUserToken, nowMs-lastRefreshed)
	fresh, err := u.refresher.RefreshAccessToken(ctx)
	if err != nil {
		stats.Get().RecordTokenRefreshFailure(stats.TokenUser)
		notifier.PublishUserTokenRefreshFailed(err)
		log.Errorf("%s Refresh failed: %v", logcolors.LogUserToken, err)
		return "", err
	}
	stats.Get().RecordTokenRefresh(stats.TokenUser)

	// token before timestamp: a failed second write leaves the entry stale, never falsely fresh
	if _, err := cache.Set(u.store, cache.KeyUserToken, fresh); err != nil {
		return "", err
	}
	if nowMs < lastRefreshed {
		nowMs = lastRefreshed
	}
	if _, err := cache.Set(u.store, cache.KeyUserTokenLastRefreshed, nowMs); err != nil {
		log.Warnf("%s Token saved but refresh time was not: %v", logcolors.LogUserToken, err)
	}
	return fresh, nil
}

func (u *UserTokens) stale(token string, lastRefreshedMs, nowMs int64) bool {
	return token == "" || nowMs-lastRefreshedMs > u.window.Milliseconds()
}

// Status reports whether a token is cached and when it was refreshed
func (u *UserTokens) Status() (Status, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	token, _, err := cache.Get[string](u.store, cache.KeyUserToken)
	if err != nil {
		return Status{}, err
	}
	lastRefreshed, _, err := cache.Get[int64](u.store, cache.KeyUserTokenLastRefreshed)
	if err != nil {
		return Status{}, err
	}

	return Status{
		Cached:       token != "",
		RefreshedAt:  msToTime(lastRefreshed),
		NeedsRefresh: u.stale(token, lastRefreshed, u.now().UnixMilli()),
	}, nil
}
