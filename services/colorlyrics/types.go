package colorlyrics

// SessionToken is the get_access_token response
type SessionToken struct {
	ClientID    string `json:"clientId"`
	AccessToken string `json:"accessToken"`
	ExpiresAtMs int64  `json:"accessTokenExpirationTimestampMs"`
	IsAnonymous bool   `json:"isAnonymous"`
}

// Sync types reported by the lyrics backend
const (
	SyncTypeLine     = "LINE_SYNCED"
	SyncTypeSyllable = "SYLLABLE_SYNCED"
	SyncTypeUnsynced = "UNSYNCED"
)

// Line is one lyric line. Start times arrive as decimal strings.
type Line struct {
	StartTimeMs int64  `json:"startTimeMs,string"`
	Words       string `json:"words"`
}

// Lyrics is the lyrics object of a color-lyrics response
type Lyrics struct {
	SyncType string `json:"syncType"`
	Lines    []Line `json:"lines"`
	Provider string `json:"provider"`
	Language string `json:"language"`
}

type trackLyricsResponse struct {
	Lyrics Lyrics `json:"lyrics"`
}
