package logcolors

// ANSI color codes for log prefixes
const (
	Reset  = "\033[0m"
	Green  = "\033[32m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	Red    = "\033[31m"
)

// Cache-related log prefixes
const (
	LogCacheInit     = Blue + "[Cache:Init]" + Reset
	LogCache         = Blue + "[Cache]" + Reset
	LogCacheClear    = Blue + "[Cache:Clear]" + Reset
	LogCacheLyrics   = Green + "[Cache:Lyrics]" + Reset
	LogCacheNegative = Cyan + "[Cache:Negative]" + Reset
)

// Rate limiting log prefixes
const (
	LogRateLimit = Purple + "[RateLimit]" + Reset
	LogAPIKey    = Purple + "[APIKey]" + Reset
)

// CircuitBreakerPrefix returns a colored circuit breaker prefix with the given name
func CircuitBreakerPrefix(name string) string {
	return Purple + "[CircuitBreaker:" + name + "]" + Reset
}

// Server/Init log prefixes
const (
	LogServer = Green + "[Server]" + Reset
	LogConfig = Cyan + "[Config]" + Reset
	LogStats  = Blue + "[Stats]" + Reset
)

// Upstream service log prefixes
const (
	LogHTTP       = Cyan + "[HTTP]" + Reset
	LogNowPlaying = Green + "[Now Playing]" + Reset
	LogLyrics     = Blue + "[Lyrics]" + Reset
	LogWarning    = Red + "[Warning]" + Reset
)

// Token log prefixes
const (
	LogUserToken   = Cyan + "[User Token]" + Reset
	LogLyricsToken = Cyan + "[Lyrics Token]" + Reset
	LogHealthCheck = Cyan + "[Health Check]" + Reset
)

// Alerting log prefixes
const (
	LogNotifier = Cyan + "[Notifier]" + Reset
)
