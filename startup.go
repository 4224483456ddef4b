package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"now-playing-api-go/cache"
	"now-playing-api-go/circuitbreaker"
	"now-playing-api-go/config"
	"now-playing-api-go/logcolors"
	"now-playing-api-go/middleware"
	"now-playing-api-go/services/colorlyrics"
	"now-playing-api-go/services/lyrics"
	"now-playing-api-go/services/notifier"
	"now-playing-api-go/services/playback"
	"now-playing-api-go/services/tokens"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func notifierTypeName(n notifier.Notifier) string {
	switch n.(type) {
	case *notifier.EmailNotifier:
		return "email"
	case *notifier.TelegramNotifier:
		return "telegram"
	case *notifier.NtfyNotifier:
		return "ntfy"
	default:
		return "unknown"
	}
}

func setupNotifiers() []notifier.Notifier {
	var notifiers []notifier.Notifier

	if smtpHost := os.Getenv("NOTIFIER_SMTP_HOST"); smtpHost != "" {
		notifiers = append(notifiers, &notifier.EmailNotifier{
			SMTPHost:     smtpHost,
			SMTPPort:     getEnvOrDefault("NOTIFIER_SMTP_PORT", "587"),
			SMTPUsername: os.Getenv("NOTIFIER_SMTP_USERNAME"),
			SMTPPassword: os.Getenv("NOTIFIER_SMTP_PASSWORD"),
			FromEmail:    os.Getenv("NOTIFIER_FROM_EMAIL"),
			ToEmail:      os.Getenv("NOTIFIER_TO_EMAIL"),
		})
		log.Infof("%s Email notifier enabled", logcolors.LogNotifier)
	}

	if botToken := os.Getenv("NOTIFIER_TELEGRAM_BOT_TOKEN"); botToken != "" {
		notifiers = append(notifiers, &notifier.TelegramNotifier{
			BotToken: botToken,
			ChatID:   os.Getenv("NOTIFIER_TELEGRAM_CHAT_ID"),
		})
		log.Infof("%s Telegram notifier enabled", logcolors.LogNotifier)
	}

	if topic := os.Getenv("NOTIFIER_NTFY_TOPIC"); topic != "" {
		notifiers = append(notifiers, &notifier.NtfyNotifier{
			Topic:  topic,
			Server: getEnvOrDefault("NOTIFIER_NTFY_SERVER", "https://ntfy.sh"),
		})
		log.Infof("%s Ntfy.sh notifier enabled", logcolors.LogNotifier)
	}

	return notifiers
}

// startAlerting subscribes an alert handler to the global event bus when
// at least one notifier is configured
func startAlerting(notifiers []notifier.Notifier) {
	if len(notifiers) == 0 {
		log.Infof("%s No notifiers configured, alerting disabled", logcolors.LogNotifier)
		return
	}
	notifier.NewAlertHandler(notifier.AlertConfig{Notifiers: notifiers}).Start(notifier.GetEventBus())
}

// newApp wires the upstream clients, token managers and lyrics resolver onto store
func newApp(c config.Config, store cache.Store, notifiers []notifier.Notifier) *app {
	cfg := c.Configuration
	httpClient := &http.Client{Timeout: time.Duration(cfg.UpstreamTimeoutSecs) * time.Second}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:      "ColorLyrics",
		Threshold: cfg.CircuitBreakerThreshold,
		Cooldown:  time.Duration(cfg.CircuitBreakerCooldownSecs) * time.Second,
	})

	playbackClient := playback.NewClient(playback.Config{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		RefreshToken: cfg.SpotifyRefreshToken,
		TokenURL:     cfg.SpotifyTokenURL,
		APIBaseURL:   cfg.SpotifyAPIBaseURL,
		HTTPClient:   httpClient,
	})

	lyricsClient := colorlyrics.NewClient(colorlyrics.Config{
		SPDC:          cfg.SpotifySPDC,
		SPKey:         cfg.SpotifySPKey,
		WebBaseURL:    cfg.SpotifyWebBaseURL,
		LyricsBaseURL: cfg.SpotifyLyricsBaseURL,
		HTTPClient:    httpClient,
		Breaker:       breaker,
	})

	userTokens := tokens.NewUserTokens(store, playbackClient,
		time.Duration(cfg.UserTokenRefreshWindowSecs)*time.Second)
	lyricsTokens := tokens.NewLyricsTokens(store, lyricsClient,
		time.Duration(cfg.LyricTokenSafetyMarginMs)*time.Millisecond)

	return &app{
		store:        store,
		userTokens:   userTokens,
		lyricsTokens: lyricsTokens,
		playback:     playbackClient,
		resolver:     lyrics.NewResolver(store, lyricsTokens, lyricsClient),
		breaker:      breaker,
		accessToken:  cfg.CacheAccessToken,
		notifiers:    notifiers,
	}
}

// newHandler builds the router and wraps it in the middleware chain:
// rate limit -> CORS -> API key -> logging -> router
func newHandler(c config.Config, a *app) http.Handler {
	cfg := c.Configuration

	router := mux.NewRouter()
	setupRoutes(router, a)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: c.AllowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After", "X-Lyric-Status"},
	})

	loggedRouter := middleware.LoggingMiddleware(router)
	authed := middleware.APIKeyMiddleware(cfg.APIKey, cfg.APIKeyRequired, []string{"/health", "/"})(loggedRouter)
	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurstLimit)

	return middleware.RateLimitMiddleware(limiter, cfg.APIKey)(corsHandler.Handler(authed))
}

func logStartup(c config.Config) {
	cfg := c.Configuration
	log.Infof("%s Rate limit: %d req/s, burst %d", logcolors.LogConfig, cfg.RateLimitPerSecond, cfg.RateLimitBurstLimit)
	log.Infof("%s User token refresh window: %ds", logcolors.LogConfig, cfg.UserTokenRefreshWindowSecs)
	log.Infof("%s Lyrics token safety margin: %dms", logcolors.LogConfig, cfg.LyricTokenSafetyMarginMs)
	log.Infof("%s Circuit breaker: threshold %d, cooldown %ds", logcolors.LogConfig, cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldownSecs)

	for name, v := range map[string]string{
		"SPOTIFY_CLIENT_ID":          cfg.SpotifyClientID,
		"SPOTIFY_CLIENT_SECRET":      cfg.SpotifyClientSecret,
		"SPOTIFY_USER_REFRESH_TOKEN": cfg.SpotifyRefreshToken,
		"SPOTIFY_SP_DC":              cfg.SpotifySPDC,
	} {
		if v == "" {
			log.Warnf("%s %s is not set", logcolors.LogWarning, name)
		}
	}
	if cfg.CacheAccessToken == "" {
		log.Warnf("%s CACHE_ACCESS_TOKEN is not set, protected endpoints will refuse every request", logcolors.LogWarning)
	}
}

func listenAddr(port string) string {
	return fmt.Sprintf(":%s", port)
}
