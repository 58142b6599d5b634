package device

import (
	"fmt"
	"strconv"

	"github.com/strefethen/cast-hub-go/internal/cast"
	"github.com/strefethen/cast-hub-go/internal/statestore"
)

// Property leaves relative to the device id. The channel layout
// (status, player, playlist, media, metadata, exportedMedia) is part
// of the public naming contract and consumed by UIs, so it never
// changes shape.
const (
	leafAddress = "address"
	leafPort    = "port"

	leafConnected     = "status.connected"
	leafPlaying       = "status.playing"
	leafVolume        = "status.volume"
	leafMuted         = "status.muted"
	leafIsActiveInput = "status.isActiveInput"
	leafIsStandBy     = "status.isStandBy"
	leafDisplayName   = "status.displayName"
	leafStatusText    = "status.text"

	leafURL2Play     = "player.url2play"
	leafAnnouncement = "player.announcement"
	leafPlayerState  = "player.playerState"
	leafPaused       = "player.paused"
	leafCurrentTime  = "player.currentTime"
	leafPlayerVolume = "player.volume"
	leafPlayerMuted  = "player.muted"

	leafPlaylistRaw      = "playlist.raw"
	leafCurrentItemID    = "playlist.currentItemId"
	leafJump             = "playlist.jump"
	leafRepeatMode       = "playlist.repeatMode"
	leafRepeatOff        = "playlist.repeatOff"
	leafRepeatAll        = "playlist.repeatAll"
	leafRepeatAllShuffle = "playlist.repeatAllShuffle"
	leafRepeatSingle     = "playlist.repeatSingle"

	leafStreamType  = "media.streamType"
	leafDuration    = "media.duration"
	leafContentType = "media.contentType"
	leafContentID   = "media.contentId"

	leafTitle  = "metadata.title"
	leafAlbum  = "metadata.album"
	leafArtist = "metadata.artist"

	leafExportedMedia = "exportedMedia.mp3"
)

// url2playSeed gives fresh installations a working example command.
const url2playSeed = "http://example.org/playme.mp3"

func fptr(v float64) *float64 { return &v }

// declareProperties registers the full property set for one device.
// Declaration is idempotent; stored values survive restarts untouched.
func declareProperties(store *statestore.Store, id string, target cast.Target) error {
	props := map[string]statestore.Descriptor{
		leafAddress: {
			Type: statestore.TypeString, Read: true, Write: false, Role: "address",
			Desc: "Address of the device", Def: target.Host,
		},
		leafPort: {
			Type: statestore.TypeString, Read: true, Write: false, Role: "port",
			Desc: "Port of the device", Def: strconv.Itoa(target.Port),
		},
		leafConnected: {
			Type: statestore.TypeBoolean, Read: true, Write: true, Role: "status",
			Desc: "Hub connected to the device", Def: false,
		},
		leafPlaying: {
			Type: statestore.TypeBoolean, Read: true, Write: true, Role: "status",
			Desc: "Player loaded. Setting to false stops play.", Def: false,
		},
		leafVolume: {
			Type: statestore.TypeNumber, Read: true, Write: true, Role: "status",
			Desc: "volume in %", Min: fptr(0), Max: fptr(100), Def: float64(100),
		},
		leafMuted: {
			Type: statestore.TypeBoolean, Read: true, Write: true, Role: "status",
			Desc: "is muted?", Def: false,
		},
		leafIsActiveInput: {
			Type: statestore.TypeBoolean, Read: true, Write: false, Role: "status",
			Desc: "(HDMI only) TV is set to use this device as input", Def: true,
		},
		leafIsStandBy: {
			Type: statestore.TypeBoolean, Read: true, Write: false, Role: "status",
			Desc: "(HDMI only) TV is standby", Def: false,
		},
		leafDisplayName: {
			Type: statestore.TypeString, Read: true, Write: false, Role: "status",
			Desc: "Receiver application display name", Def: "",
		},
		leafStatusText: {
			Type: statestore.TypeString, Read: true, Write: false, Role: "status",
			Desc: "Receiver application status as text", Def: "",
		},
		leafURL2Play: {
			Type: statestore.TypeString, Read: true, Write: true, Role: "command",
			Desc: "URL that the device should play from",
		},
		leafAnnouncement: {
			Type: statestore.TypeString, Read: true, Write: true, Role: "command",
			Desc: "URL for an announcement to play now. Current playlist (if any) will be resumed afterwards", Def: "",
		},
		leafPlayerState: {
			Type: statestore.TypeString, Read: true, Write: false, Role: "status",
			Desc: "Player status", Def: "",
		},
		leafPaused: {
			Type: statestore.TypeBoolean, Read: true, Write: true, Role: "status",
			Desc: "is paused?", Def: false,
		},
		leafCurrentTime: {
			Type: statestore.TypeNumber, Read: true, Write: false, Role: "status",
			Desc: "Playing time", Unit: "s", Def: float64(0),
		},
		leafPlayerVolume: {
			Type: statestore.TypeNumber, Read: true, Write: true, Role: "status",
			Desc: "Player volume in %", Min: fptr(0), Max: fptr(100), Def: float64(100),
		},
		leafPlayerMuted: {
			Type: statestore.TypeBoolean, Read: true, Write: true, Role: "status",
			Desc: "Player is muted?", Def: false,
		},
		leafPlaylistRaw: {
			Type: statestore.TypeArray, Read: true, Write: false, Role: "status",
			Desc: "Json array with the playlist", Def: "[]",
		},
		leafCurrentItemID: {
			Type: statestore.TypeNumber, Read: true, Write: false, Role: "status",
			Desc: "ItemId of element being played", Def: float64(0),
		},
		leafJump: {
			Type: statestore.TypeNumber, Read: false, Write: true, Role: "command",
			Desc: "Number of items to jump in the playlist (it can be negative)", Def: float64(0),
		},
		leafRepeatMode: {
			Type: statestore.TypeString, Read: true, Write: false, Role: "status",
			Desc: "repeat mode for playing media", Def: "",
		},
		leafRepeatOff: {
			Type: statestore.TypeBoolean, Read: true, Write: true, Role: "status",
			Desc: "Items are played in order, and when the queue is completed (the last item has ended) the media session is terminated.", Def: false,
		},
		leafRepeatAll: {
			Type: statestore.TypeBoolean, Read: true, Write: true, Role: "status",
			Desc: "The items in the queue will be played indefinitely. When the last item has ended, the first item will be played again.", Def: false,
		},
		leafRepeatAllShuffle: {
			Type: statestore.TypeBoolean, Read: true, Write: true, Role: "status",
			Desc: "The items in the queue will be played indefinitely. When the last item has ended, the list of items will be randomly shuffled by the receiver, and the queue will continue to play starting from the first item of the shuffled items.", Def: false,
		},
		leafRepeatSingle: {
			Type: statestore.TypeBoolean, Read: true, Write: true, Role: "status",
			Desc: "The current item will be repeated indefinitely.", Def: false,
		},
		leafStreamType: {
			Type: statestore.TypeString, Read: true, Write: false, Role: "status",
			Desc: "Type of stream being played - LIVE or BUFFERED", Def: "",
		},
		leafDuration: {
			Type: statestore.TypeNumber, Read: true, Write: false, Role: "status",
			Desc: "Duration of media being played", Unit: "s", Def: float64(-1),
		},
		leafContentType: {
			Type: statestore.TypeString, Read: true, Write: false, Role: "status",
			Desc: "Type of media being played such as audio/mp3", Def: "",
		},
		leafContentID: {
			Type: statestore.TypeString, Read: true, Write: false, Role: "status",
			Desc: "id of content being played. Usually the URL.", Def: "",
		},
		leafTitle: {
			Type: statestore.TypeString, Read: true, Write: false, Role: "status",
			Desc: "Title", Def: "",
		},
		leafAlbum: {
			Type: statestore.TypeString, Read: true, Write: false, Role: "status",
			Desc: "Album", Def: "",
		},
		leafArtist: {
			Type: statestore.TypeString, Read: true, Write: false, Role: "status",
			Desc: "Artist", Def: "",
		},
		leafExportedMedia: {
			Type: statestore.TypeObject, Read: true, Write: false, Role: "web",
			Desc: "Media exported for the device, served under /state/<device>.exportedMedia.mp3",
		},
	}

	for leaf, desc := range props {
		if err := store.DeclareProperty(id+"."+leaf, desc); err != nil {
			return fmt.Errorf("declare %s.%s: %w", id, leaf, err)
		}
	}
	return nil
}
