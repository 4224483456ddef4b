// Package tokens keeps the two upstream access tokens fresh in the cache store.
//
// The playback token is stale-by-window: it is refreshed once a fixed window
// has elapsed since the last refresh, whatever the server said about its
// lifetime. The lyrics token is stale-by-expiry: it is refreshed shortly
// before the absolute expiry the server declared.
package tokens

import (
	"context"
	"time"

	"now-playing-api-go/services/colorlyrics"
)

const (
	DefaultRefreshWindow = time.Hour
	DefaultSafetyMargin  = 10 * time.Second
)

// UserTokenRefresher exchanges the user's refresh credential for an access token.
type UserTokenRefresher interface {
	RefreshAccessToken(ctx context.Context) (string, error)
}

// SessionTokenRefresher mints a lyrics session token from browser cookies.
type SessionTokenRefresher interface {
	SessionToken(ctx context.Context) (*colorlyrics.SessionToken, error)
}

// Option configures a token manager
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Status describes a cached token without revealing it
type Status struct {
	Cached       bool       `json:"cached"`
	RefreshedAt  *time.Time `json:"refreshed_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	NeedsRefresh bool       `json:"needs_refresh"`
}

func msToTime(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
