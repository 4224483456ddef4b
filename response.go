package main

import (
	"encoding/json"
	"net/http"
)

// APIResponse sets the headers every response carries and writes JSON bodies
type APIResponse struct {
	w           http.ResponseWriter
	r           *http.Request
	lyricStatus string
}

// Respond creates a response helper for the request
func Respond(w http.ResponseWriter, r *http.Request) *APIResponse {
	return &APIResponse{w: w, r: r}
}

// SetLyricStatus sets the X-Lyric-Status header value
func (a *APIResponse) SetLyricStatus(status string) *APIResponse {
	a.lyricStatus = status
	return a
}

func (a *APIResponse) writeHeaders() {
	a.w.Header().Set("Content-Type", "application/json")
	a.w.Header().Set("Access-Control-Allow-Origin", "*")

	if a.lyricStatus != "" {
		a.w.Header().Set("X-Lyric-Status", a.lyricStatus)
	}
}

// JSON writes headers and encodes data as JSON (200 OK)
func (a *APIResponse) JSON(data interface{}) error {
	a.writeHeaders()
	return json.NewEncoder(a.w).Encode(data)
}

// Error writes headers, sets status code, and encodes data
func (a *APIResponse) Error(statusCode int, data interface{}) error {
	a.writeHeaders()
	a.w.WriteHeader(statusCode)
	return json.NewEncoder(a.w).Encode(data)
}
