package playback

import (
	"encoding/json"
	"fmt"

	"github.com/zmb3/spotify/v2"
)

// Playback is one currently-playing snapshot. Raw is the upstream document
// exactly as received; Snapshot is the typed view used to drive lyric lookup.
type Playback struct {
	StatusCode int
	Raw        json.RawMessage
	Snapshot   spotify.CurrentlyPlaying
}

// TrackID returns the id of the playing track
func (p *Playback) TrackID() string {
	if p.Snapshot.Item == nil {
		return ""
	}
	return string(p.Snapshot.Item.ID)
}

// ProgressMs returns the playback position in milliseconds
func (p *Playback) ProgressMs() int64 {
	return int64(p.Snapshot.Progress)
}

func parsePlayback(statusCode int, body []byte) (*Playback, error) {
	p := &Playback{StatusCode: statusCode, Raw: json.RawMessage(body)}
	if err := json.Unmarshal(body, &p.Snapshot); err != nil {
		return nil, fmt.Errorf("decoding currently playing response: %w", err)
	}

	// episodes and ads arrive without a track item
	if p.Snapshot.Item == nil || p.Snapshot.Item.ID == "" {
		return nil, ErrNoActiveSession
	}
	return p, nil
}
