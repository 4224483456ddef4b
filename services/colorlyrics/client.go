// Package colorlyrics is a client for the Spotify web player lyrics backend.
// Session tokens are minted from the sp_dc/sp_key browser cookies and used as
// bearer tokens for per-track lyric requests.
package colorlyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"now-playing-api-go/circuitbreaker"
	"now-playing-api-go/logcolors"
	"now-playing-api-go/services/notifier"

	log "github.com/sirupsen/logrus"
)

const (
	sessionTokenPath = "/get_access_token"
	trackLyricsPath  = "/color-lyrics/v2/track/"
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// ErrNotFound means the service has no lyrics for the requested track.
var ErrNotFound = errors.New("lyrics not found")

// StatusError is returned for non-success responses other than 404
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

// Config holds the session cookies and endpoints
type Config struct {
	SPDC          string
	SPKey         string
	WebBaseURL    string
	LyricsBaseURL string
	HTTPClient    *http.Client
	Breaker       *circuitbreaker.CircuitBreaker
}

type Client struct {
	spDC          string
	spKey         string
	webBaseURL    string
	lyricsBaseURL string
	httpClient    *http.Client
	breaker       *circuitbreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		spDC:          cfg.SPDC,
		spKey:         cfg.SPKey,
		webBaseURL:    strings.TrimSuffix(cfg.WebBaseURL, "/"),
		lyricsBaseURL: strings.TrimSuffix(cfg.LyricsBaseURL, "/"),
		httpClient:    httpClient,
		breaker:       cfg.Breaker,
	}
}

// Breaker returns the circuit breaker guarding upstream calls, or nil.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// SessionToken requests a web-player scoped access token using the session cookies.
func (c *Client) SessionToken(ctx context.Context) (*SessionToken, error) {
	params := url.Values{}
	params.Set("reason", "web-player")
	params.Set("productType", "web-player")
	endpoint := c.webBaseURL + sessionTokenPath + "?" + params.Encode()

	var token SessionToken
	err := c.guard(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", browserUserAgent)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Cookie", fmt.Sprintf("sp_dc=%s; sp_key=%s;", c.spDC, c.spKey))

		body, err := c.do(req, "get_access_token")
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &token)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching lyrics session token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("fetching lyrics session token: response had no accessToken")
	}
	if token.IsAnonymous {
		log.Warnf("%s Session token is anonymous, sp_dc cookie may have expired", logcolors.LogLyricsToken)
		notifier.PublishLyricsTokenAnonymous()
	}
	return &token, nil
}

// TrackLyrics fetches the lyric lines for trackID. A 404 yields ErrNotFound.
func (c *Client) TrackLyrics(ctx context.Context, accessToken, trackID string) (*Lyrics, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("vocalRemoval", "false")
	endpoint := c.lyricsBaseURL + trackLyricsPath + url.PathEscape(trackID) + "?" + params.Encode()

	var payload trackLyricsResponse
	err := c.guard(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("App-Platform", "WebPlayer")
		req.Header.Set("Authorization", "Bearer "+accessToken)
		// an empty User-Agent suppresses Go's default one
		req.Header.Set("User-Agent", "")

		body, err := c.do(req, "color-lyrics")
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &payload)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching lyrics for %s: %w", trackID, err)
	}

	return &payload.Lyrics, nil
}

func (c *Client) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn, func(err error) bool {
		return !errors.Is(err, ErrNotFound)
	})
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	log.Debugf("%s %s %s", logcolors.LogHTTP, req.Method, req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}
