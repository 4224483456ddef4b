// Package playback talks to the Spotify Web API: it exchanges the long-lived
// refresh token for access tokens and reads the user's current playback.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"now-playing-api-go/logcolors"

	log "github.com/sirupsen/logrus"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const currentlyPlayingPath = "/me/player/currently-playing"

// ErrNoActiveSession means the user is not playing anything right now.
var ErrNoActiveSession = errors.New("no active playback session")

// StatusError is returned when the upstream answers with a non-success status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Config holds the credentials and endpoints for the playback API
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string // defaults to the Spotify accounts token endpoint
	APIBaseURL   string
	HTTPClient   *http.Client
}

// Client calls the Spotify Web API on behalf of a single user
type Client struct {
	oauth        *oauth2.Config
	refreshToken string
	apiBaseURL   string
	httpClient   *http.Client
}

func NewClient(cfg Config) *Client {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyauth.AuthURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		refreshToken: cfg.RefreshToken,
		apiBaseURL:   strings.TrimSuffix(cfg.APIBaseURL, "/"),
		httpClient:   httpClient,
	}
}

// RefreshAccessToken performs the refresh_token grant with Basic client
// credentials and returns the new access token.
func (c *Client) RefreshAccessToken(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	// a token without an access token is always invalid, so this forces the grant
	token, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: c.refreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("refreshing user access token: %w", err)
	}
	if token.AccessToken == "" {
		return "", errors.New("refreshing user access token: response had no access_token")
	}

	log.Debugf("%s Token endpoint issued %s token, expires %s", logcolors.LogUserToken, token.Type(), token.Expiry.Format(time.RFC3339))
	return token.AccessToken, nil
}

// CurrentlyPlaying reads the user's current playback with the given bearer token.
// Empty or non-JSON responses yield ErrNoActiveSession.
func (c *Client) CurrentlyPlaying(ctx context.Context, accessToken string) (*Playback, error) {
	endpoint := c.apiBaseURL + currentlyPlayingPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building currently-playing request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	log.Debugf("%s GET %s", logcolors.LogHTTP, endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching currently playing: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading currently playing response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Endpoint: "currently-playing", StatusCode: resp.StatusCode, Body: string(body)}
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") || len(body) == 0 {
		return nil, ErrNoActiveSession
	}

	return parsePlayback(resp.StatusCode, body)
}
