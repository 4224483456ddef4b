package notifier

import (
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Critical
	EventCircuitBreakerOpen       EventType = "circuit_breaker_open"
	EventUserTokenRefreshFailed   EventType = "user_token_refresh_failed"
	EventLyricsTokenRefreshFailed EventType = "lyrics_token_refresh_failed"
	EventServerStartupFailed      EventType = "server_startup_failed"

	// Warning
	EventHighFailureRate      EventType = "high_failure_rate"
	EventLyricsTokenAnonymous EventType = "lyrics_token_anonymous"

	// Info
	EventCircuitBreakerRecovered EventType = "circuit_breaker_recovered"
	EventServerStarted           EventType = "server_started"
	EventCacheCleared            EventType = "cache_cleared"
)

// Severity represents the severity level of an event
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Event represents a system event
type Event struct {
	Type      EventType
	Severity  Severity
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, severity Severity, message string) *Event {
	return &Event{
		Type:      eventType,
		Severity:  severity,
		Message:   message,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now(),
	}
}

// WithData adds data to the event (chainable)
func (e *Event) WithData(key string, value interface{}) *Event {
	e.Data[key] = value
	return e
}

// EventHandler is a function that handles events
type EventHandler func(event *Event)

// EventBus fans events out to subscribers. Handlers run on their own goroutine.
type EventBus struct {
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
	mu          sync.RWMutex
}

var (
	globalBus *EventBus
	busOnce   sync.Once
)

// NewEventBus returns an empty bus
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[EventType][]EventHandler)}
}

// GetEventBus returns the global event bus instance
func GetEventBus() *EventBus {
	busOnce.Do(func() {
		globalBus = NewEventBus()
	})
	return globalBus
}

// Subscribe adds a handler for a specific event type
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll adds a handler that receives all events
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, handler)
}

// Publish sends an event to all subscribed handlers
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, handler := range b.handlers[event.Type] {
		go handler(event)
	}
	for _, handler := range b.allHandlers {
		go handler(event)
	}
}

// PublishCircuitBreakerOpen publishes a circuit breaker open event
func PublishCircuitBreakerOpen(name string, failures int, cooldown time.Duration) {
	GetEventBus().Publish(NewEvent(EventCircuitBreakerOpen, SeverityCritical,
		"Circuit breaker has opened due to consecutive failures").
		WithData("name", name).
		WithData("failures", failures).
		WithData("cooldown", cooldown.String()))
}

// PublishCircuitBreakerRecovered publishes a circuit breaker recovery event
func PublishCircuitBreakerRecovered(name string) {
	GetEventBus().Publish(NewEvent(EventCircuitBreakerRecovered, SeverityInfo,
		"Circuit breaker has recovered and is operational").
		WithData("name", name))
}

// PublishHighFailureRate publishes a warning before the breaker trips
func PublishHighFailureRate(name string, failures, threshold int) {
	GetEventBus().Publish(NewEvent(EventHighFailureRate, SeverityWarning,
		"High failure rate detected, circuit breaker may trip soon").
		WithData("name", name).
		WithData("failures", failures).
		WithData("threshold", threshold))
}

// PublishUserTokenRefreshFailed publishes when the refresh-token grant fails
func PublishUserTokenRefreshFailed(err error) {
	GetEventBus().Publish(NewEvent(EventUserTokenRefreshFailed, SeverityCritical,
		"Spotify user token refresh failed").
		WithData("error", err.Error()))
}

// PublishLyricsTokenRefreshFailed publishes when the web player session token cannot be minted
func PublishLyricsTokenRefreshFailed(err error) {
	GetEventBus().Publish(NewEvent(EventLyricsTokenRefreshFailed, SeverityCritical,
		"Lyrics session token refresh failed").
		WithData("error", err.Error()))
}

// PublishLyricsTokenAnonymous publishes when the session cookie was not recognised
func PublishLyricsTokenAnonymous() {
	GetEventBus().Publish(NewEvent(EventLyricsTokenAnonymous, SeverityWarning,
		"Lyrics session token is anonymous"))
}

// PublishCacheCleared publishes when the store is reset on demand
func PublishCacheCleared(entries int) {
	GetEventBus().Publish(NewEvent(EventCacheCleared, SeverityInfo,
		"Cache has been cleared").
		WithData("entries", entries))
}

// PublishServerStarted publishes when server starts successfully
func PublishServerStarted(port string) {
	GetEventBus().Publish(NewEvent(EventServerStarted, SeverityInfo,
		"Server started successfully").
		WithData("port", port))
}

// PublishServerStartupFailed publishes when server fails to start
func PublishServerStartupFailed(component string, err error) {
	GetEventBus().Publish(NewEvent(EventServerStartupFailed, SeverityCritical,
		"Server failed to start").
		WithData("component", component).
		WithData("error", err.Error()))
}
