package cast

// PlayerState is the playback state reported by the receiver
// application. Devices report "STOP" rather than "STOPPED" and omit
// the field entirely when idle; normalization maps the absence to
// PlayerStateStop.
type PlayerState string

const (
	PlayerStatePlaying   PlayerState = "PLAYING"
	PlayerStatePaused    PlayerState = "PAUSED"
	PlayerStateBuffering PlayerState = "BUFFERING"
	PlayerStateIdle      PlayerState = "IDLE"
	PlayerStateStop      PlayerState = "STOP"
)

// StreamType distinguishes live streams from seekable content.
type StreamType string

const (
	StreamTypeLive     StreamType = "LIVE"
	StreamTypeBuffered StreamType = "BUFFERED"
)

// RepeatMode is the queue repeat mode of the receiver application.
type RepeatMode string

const (
	RepeatOff        RepeatMode = "REPEAT_OFF"
	RepeatAll        RepeatMode = "REPEAT_ALL"
	RepeatAllShuffle RepeatMode = "REPEAT_ALL_AND_SHUFFLE"
	RepeatSingle     RepeatMode = "REPEAT_SINGLE"
)

// Volume is a receiver or media volume block. Pointers model fields
// the device omitted.
type Volume struct {
	Level *float64 `json:"level,omitempty"`
	Muted *bool    `json:"muted,omitempty"`
}

// Metadata describes the content currently loaded.
type Metadata struct {
	Title         string   `json:"title,omitempty"`
	AlbumName     string   `json:"albumName,omitempty"`
	Artist        string   `json:"artist,omitempty"`
	Images        []string `json:"images,omitempty"`
	SeasonNumber  int      `json:"seasonNumber,omitempty"`
	EpisodeNumber int      `json:"episodeNumber,omitempty"`
}

// MediaInfo is the media descriptor of the loaded content.
type MediaInfo struct {
	ContentID   string     `json:"contentId,omitempty"`
	ContentType string     `json:"contentType,omitempty"`
	StreamType  StreamType `json:"streamType,omitempty"`
	Duration    float64    `json:"duration,omitempty"`
	Metadata    *Metadata  `json:"metadata,omitempty"`
}

// QueueItem is one entry in the receiver's playback queue.
type QueueItem struct {
	ItemID   int        `json:"itemId"`
	Media    *MediaInfo `json:"media,omitempty"`
	Autoplay bool       `json:"autoplay,omitempty"`
}

// MediaStatus is the raw status push from the receiver application.
// Fields are optional depending on idle/active state; use Normalize
// before acting on one.
type MediaStatus struct {
	MediaSessionID int         `json:"mediaSessionId"`
	PlayerState    string      `json:"playerState,omitempty"`
	CurrentTime    float64     `json:"currentTime,omitempty"`
	Volume         *Volume     `json:"volume,omitempty"`
	Media          *MediaInfo  `json:"media,omitempty"`
	CurrentItemID  int         `json:"currentItemId,omitempty"`
	Items          []QueueItem `json:"items,omitempty"`
	RepeatMode     string      `json:"repeatMode,omitempty"`
	IdleReason     string      `json:"idleReason,omitempty"`
}

// Application identifies a receiver application running on the device.
type Application struct {
	AppID        string `json:"appId"`
	SessionID    string `json:"sessionId"`
	DisplayName  string `json:"displayName,omitempty"`
	StatusText   string `json:"statusText,omitempty"`
	IsIdleScreen bool   `json:"isIdleScreen,omitempty"`
}

// ReceiverStatus is the device-level status (volume, running
// applications, HDMI input state).
type ReceiverStatus struct {
	Volume        *Volume       `json:"volume,omitempty"`
	Applications  []Application `json:"applications,omitempty"`
	IsActiveInput *bool         `json:"isActiveInput,omitempty"`
	IsStandBy     *bool         `json:"isStandBy,omitempty"`
}

// MediaRequest asks the receiver application to load content.
type MediaRequest struct {
	ContentID   string
	ContentType string
	StreamType  StreamType
	Title       string
	Autoplay    bool
	CurrentTime float64
}

// PlayerStatus is the normalized, immutable status snapshot derived
// from a MediaStatus. All optional fields carry their defaults.
type PlayerStatus struct {
	PlayerState   PlayerState
	CurrentTime   float64
	Volume        float64 // 0.0 - 1.0
	Muted         bool
	RepeatMode    RepeatMode
	Media         MediaInfo
	CurrentItemID int
	Items         []QueueItem
}

// Normalize applies field-by-field defaulting to a raw status. The
// same defaulting is used for unsolicited pushes and polled statuses.
func Normalize(raw *MediaStatus) PlayerStatus {
	s := PlayerStatus{
		PlayerState: PlayerStateStop,
		Volume:      1.0,
		RepeatMode:  RepeatOff,
	}
	if raw == nil {
		return s
	}
	if raw.PlayerState != "" {
		s.PlayerState = PlayerState(raw.PlayerState)
	}
	s.CurrentTime = raw.CurrentTime
	if raw.Volume != nil {
		if raw.Volume.Level != nil {
			s.Volume = *raw.Volume.Level
		}
		if raw.Volume.Muted != nil {
			s.Muted = *raw.Volume.Muted
		}
	}
	if raw.Media != nil {
		s.Media = *raw.Media
	}
	if raw.RepeatMode != "" {
		s.RepeatMode = RepeatMode(raw.RepeatMode)
	}
	s.CurrentItemID = raw.CurrentItemID
	s.Items = raw.Items
	return s
}
