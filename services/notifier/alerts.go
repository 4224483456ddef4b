package notifier

import (
	"fmt"
	"sync"
	"time"

	"now-playing-api-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// Default cooldown between alerts of the same type
const DefaultAlertCooldown = 15 * time.Minute

// AlertHandler turns events into notifications, at most one per event type per cooldown
type AlertHandler struct {
	notifiers        []Notifier
	cooldowns        map[EventType]time.Time
	cooldownDuration time.Duration
	now              func() time.Time
	mu               sync.Mutex
}

// AlertConfig holds configuration for the alert handler
type AlertConfig struct {
	Notifiers        []Notifier
	CooldownDuration time.Duration
	Clock            func() time.Time
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(config AlertConfig) *AlertHandler {
	cooldown := config.CooldownDuration
	if cooldown == 0 {
		cooldown = DefaultAlertCooldown
	}
	now := config.Clock
	if now == nil {
		now = time.Now
	}

	return &AlertHandler{
		notifiers:        config.Notifiers,
		cooldowns:        make(map[EventType]time.Time),
		cooldownDuration: cooldown,
		now:              now,
	}
}

// Start subscribes the handler to bus
func (h *AlertHandler) Start(bus *EventBus) {
	bus.SubscribeAll(h.HandleEvent)
	log.Infof("%s Alert handler started (cooldown: %v, notifiers: %d)",
		logcolors.LogNotifier, h.cooldownDuration, len(h.notifiers))
}

// HandleEvent formats and sends event unless its type is cooling down
func (h *AlertHandler) HandleEvent(event *Event) {
	subject, message := formatAlert(event)
	if subject == "" {
		return
	}

	if !h.shouldAlert(event.Type) {
		log.Debugf("%s Skipping alert for %s (cooldown active)", logcolors.LogNotifier, event.Type)
		return
	}

	h.sendAlert(subject, message)
}

func (h *AlertHandler) shouldAlert(eventType EventType) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	last, exists := h.cooldowns[eventType]
	if !exists || h.now().Sub(last) >= h.cooldownDuration {
		h.cooldowns[eventType] = h.now()
		return true
	}
	return false
}

func formatAlert(event *Event) (subject, message string) {
	switch event.Type {
	case EventCircuitBreakerOpen:
		subject = "Circuit Breaker OPEN"
		message = fmt.Sprintf(
			"The %v circuit breaker has tripped after %v consecutive failures.\n\n"+
				"Lyrics lookups will fail for %v.\n\n"+
				"Action: Check the Spotify lyrics endpoint and the sp_dc cookie.",
			event.Data["name"], event.Data["failures"], event.Data["cooldown"])

	case EventUserTokenRefreshFailed:
		subject = "User Token Refresh Failed"
		message = fmt.Sprintf(
			"Could not exchange the refresh token for an access token.\n\n"+
				"Error: %v\n\n"+
				"Action: Check SPOTIFY_CLIENT_ID, SPOTIFY_CLIENT_SECRET and SPOTIFY_USER_REFRESH_TOKEN.",
			event.Data["error"])

	case EventLyricsTokenRefreshFailed:
		subject = "Lyrics Token Refresh Failed"
		message = fmt.Sprintf(
			"Could not mint a web player session token.\n\n"+
				"Error: %v\n\n"+
				"Action: The sp_dc cookie has probably expired. Log in to open.spotify.com and update SPOTIFY_SP_DC.",
			event.Data["error"])

	case EventServerStartupFailed:
		subject = "Server Startup FAILED"
		message = fmt.Sprintf(
			"The server failed to start.\n\nComponent: %v\nError: %v",
			event.Data["component"], event.Data["error"])

	case EventHighFailureRate:
		subject = "High Failure Rate Warning"
		message = fmt.Sprintf(
			"The %v circuit breaker has recorded %v/%v failures.\n\n"+
				"If failures continue, the circuit will open.",
			event.Data["name"], event.Data["failures"], event.Data["threshold"])

	case EventLyricsTokenAnonymous:
		subject = "Lyrics Token Anonymous"
		message = "The web player issued an anonymous session token.\n\n" +
			"Action: The sp_dc cookie is no longer recognised. Update SPOTIFY_SP_DC."

	case EventCircuitBreakerRecovered:
		subject = "Circuit Breaker Recovered"
		message = fmt.Sprintf("The %v circuit breaker has recovered and is now operational.", event.Data["name"])

	case EventServerStarted:
		subject = "Server Started"
		message = fmt.Sprintf("Server started successfully on port %v.", event.Data["port"])

	case EventCacheCleared:
		subject = "Cache Cleared"
		message = fmt.Sprintf("Cache has been cleared (%v entries removed).", event.Data["entries"])

	default:
		return "", ""
	}

	switch event.Severity {
	case SeverityCritical:
		subject = "🚨 " + subject
	case SeverityWarning:
		subject = "⚠️ " + subject
	case SeverityInfo:
		subject = "ℹ️ " + subject
	}

	return subject, message
}

func (h *AlertHandler) sendAlert(subject, message string) {
	if len(h.notifiers) == 0 {
		log.Warnf("%s No notifiers configured, skipping alert: %s", logcolors.LogNotifier, subject)
		return
	}

	log.Infof("%s Sending alert: %s", logcolors.LogNotifier, subject)

	sent := 0
	for _, n := range h.notifiers {
		if err := n.Send(subject, message); err != nil {
			log.Errorf("%s Failed to send alert via notifier: %v", logcolors.LogNotifier, err)
			continue
		}
		sent++
	}

	if sent > 0 {
		log.Infof("%s Alert sent via %d/%d notifiers", logcolors.LogNotifier, sent, len(h.notifiers))
	}
}

// ResetCooldown forgets when eventType last alerted
func (h *AlertHandler) ResetCooldown(eventType EventType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.cooldowns, eventType)
}
