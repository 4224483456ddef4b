package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

var conf = mustLoad()

type Config struct {
	Configuration struct {
		Port                       string `envconfig:"PORT" default:"7900"`
		RateLimitPerSecond         int    `envconfig:"RATE_LIMIT_PER_SECOND" default:"2"`
		RateLimitBurstLimit        int    `envconfig:"RATE_LIMIT_BURST_LIMIT" default:"5"`
		CacheDBPath                string `envconfig:"CACHE_DB_PATH" default:"./data/cache.db"`
		StatsDBPath                string `envconfig:"STATS_DB_PATH" default:"./data/stats.db"`
		StatsSaveIntervalSecs      int    `envconfig:"STATS_SAVE_INTERVAL_SECS" default:"300"` // 0 disables periodic saves
		CacheAccessToken           string `envconfig:"CACHE_ACCESS_TOKEN" default:""`
		APIKey                     string `envconfig:"API_KEY" default:""`
		APIKeyRequired             bool   `envconfig:"API_KEY_REQUIRED" default:"false"`
		CORSAllowedOrigins         string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
		UpstreamTimeoutSecs        int    `envconfig:"UPSTREAM_TIMEOUT_SECONDS" default:"10"`
		CircuitBreakerThreshold    int    `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`       // Consecutive failures before circuit opens
		CircuitBreakerCooldownSecs int    `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"300"` // Seconds to wait before retrying (default: 5 minutes)

		// Spotify Web API (playback)
		SpotifyClientID            string `envconfig:"SPOTIFY_CLIENT_ID" default:""`
		SpotifyClientSecret        string `envconfig:"SPOTIFY_CLIENT_SECRET" default:""`
		SpotifyRefreshToken        string `envconfig:"SPOTIFY_USER_REFRESH_TOKEN" default:""`
		SpotifyTokenURL            string `envconfig:"SPOTIFY_TOKEN_URL" default:""` // Empty means accounts.spotify.com
		SpotifyAPIBaseURL          string `envconfig:"SPOTIFY_API_BASE_URL" default:"https://api.spotify.com/v1"`
		UserTokenRefreshWindowSecs int    `envconfig:"USER_TOKEN_REFRESH_WINDOW_SECONDS" default:"3600"`

		// Spotify web player session (lyrics)
		SpotifySPDC              string `envconfig:"SPOTIFY_SP_DC" default:""`
		SpotifySPKey             string `envconfig:"SPOTIFY_SP_KEY" default:""`
		SpotifyWebBaseURL        string `envconfig:"SPOTIFY_WEB_BASE_URL" default:"https://open.spotify.com"`
		SpotifyLyricsBaseURL     string `envconfig:"SPOTIFY_LYRICS_BASE_URL" default:"https://spclient.wg.spotify.com"`
		LyricTokenSafetyMarginMs int64  `envconfig:"LYRIC_TOKEN_SAFETY_MARGIN_MS" default:"10000"`
	}
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Configuration.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// load loads the configuration from the environment.
func load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Warnf("Error loading env config: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}

func mustLoad() Config {
	c, err := load()
	if err != nil {
		log.WithError(err).Warnf("Unable to load configuration")
	}

	return c
}

func Get() Config {
	return conf
}
