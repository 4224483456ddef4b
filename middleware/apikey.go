package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"now-playing-api-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// APIKeyMiddleware requires a matching X-API-Key header when required is true.
// An empty apiKey with required set is a misconfiguration: it is logged and
// requests pass. Paths in publicPaths never need a key; a trailing * matches
// by prefix.
func APIKeyMiddleware(apiKey string, required bool, publicPaths []string) func(http.Handler) http.Handler {
	exact := make(map[string]bool)
	var prefixes []string
	for _, p := range publicPaths {
		if strings.HasSuffix(p, "*") {
			prefixes = append(prefixes, strings.TrimSuffix(p, "*"))
		} else {
			exact[p] = true
		}
	}

	isPublic := func(path string) bool {
		if exact[path] {
			return true
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required {
				next.ServeHTTP(w, r)
				return
			}
			if apiKey == "" {
				log.Warnf("%s API key required but not configured, allowing request", logcolors.LogAPIKey)
				next.ServeHTTP(w, r)
				return
			}
			if isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			switch provided := r.Header.Get("X-API-Key"); {
			case provided == "":
				log.Warnf("%s Missing API key from %s for %s", logcolors.LogAPIKey, r.RemoteAddr, r.URL.Path)
				writeUnauthorized(w, "API key required", "Provide a valid API key via X-API-Key header")
			case provided != apiKey:
				log.Warnf("%s Invalid API key from %s for %s", logcolors.LogAPIKey, r.RemoteAddr, r.URL.Path)
				writeUnauthorized(w, "Invalid API key", "The provided API key is not valid")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": errMsg, "message": message})
}
