// Package protocol holds the websocket message shapes shared by the server and pkg/syncclient.
package protocol

import "encoding/json"

// Inbound message types.
const (
	TypeAlive          = "alive"
	TypeClockSync      = "clock_sync"
	TypeLeave          = "leave"
	TypeSendMessage    = "send_message"
	TypeVideoPlay      = "video_play"
	TypeVideoPause     = "video_pause"
	TypeVideoSeek      = "video_seek"
	TypeVideoURLChange = "video_url_change"
	TypeGetVideoState  = "get_video_state"
	TypePlaylistAdd    = "playlist_add"
	TypePlaylistRemove = "playlist_remove"
)

// Outbound message types. video_* and clock_sync reuse the inbound names.
const (
	TypeJoinedRoom      = "joined_room"
	TypeUsersUpdated    = "users_updated"
	TypeSystemNotice    = "system_notice"
	TypeMessage         = "message"
	TypeVideoState      = "video_state"
	TypePlaylistUpdated = "playlist_updated"
	TypeError           = "error"
)

type SyncMode string

const (
	SyncModeImmediate SyncMode = "immediate"
	SyncModeScheduled SyncMode = "scheduled"
)

// Envelope is written to the socket.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// RawEnvelope is read from the socket.
type RawEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type VideoState struct {
	URL         string  `json:"url"`
	IsPlaying   bool    `json:"is_playing"`
	CurrentTime float64 `json:"current_time"`
	// LastUpdated is the server time in unix milliseconds.
	LastUpdated int64 `json:"last_updated"`
}

type Participant struct {
	ConnectionId string `json:"connection_id"`
	DisplayName  string `json:"display_name"`
	UserId       string `json:"user_id,omitempty"`
}

type VideoItem struct {
	VideoId     string `json:"video_id" validate:"required,max=64"`
	Title       string `json:"title" validate:"max=256"`
	Thumbnail   string `json:"thumbnail" validate:"max=2048"`
	Channel     string `json:"channel" validate:"max=256"`
	Description string `json:"description,omitempty" validate:"max=5000"`
	PublishDate string `json:"publish_date,omitempty" validate:"max=64"`
}

type ChatMessage struct {
	Id           string `json:"id"`
	RoomId       string `json:"room_id"`
	ConnectionId string `json:"connection_id"`
	UserId       string `json:"user_id,omitempty"`
	DisplayName  string `json:"display_name"`
	Text         string `json:"text"`
	SentAt       int64  `json:"sent_at"`
}

type JoinedRoomPayload struct {
	RoomId       string        `json:"room_id"`
	ConnectionId string        `json:"connection_id"`
	VideoState   VideoState    `json:"video_state"`
	Users        []Participant `json:"users"`
	Playlist     []VideoItem   `json:"playlist"`
	ServerTime   int64         `json:"server_time"`
	SyncMode     SyncMode      `json:"sync_mode"`
}

type UsersUpdatedPayload struct {
	Users []Participant `json:"users"`
}

type SystemNoticePayload struct {
	Text string `json:"text"`
}

// VideoCommandPayload is broadcast for video_play, video_pause and video_seek.
// ExecuteAt is set only in scheduled mode.
type VideoCommandPayload struct {
	CurrentTime float64 `json:"current_time"`
	LastUpdated int64   `json:"last_updated"`
	ExecuteAt   int64   `json:"execute_at,omitempty"`
}

type VideoURLChangePayload struct {
	URL         string `json:"url"`
	LastUpdated int64  `json:"last_updated"`
}

type VideoStatePayload struct {
	VideoState *VideoState `json:"video_state"`
}

type PlaylistUpdatedPayload struct {
	Playlist []VideoItem `json:"playlist"`
}

type ClockSyncPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Requests sent by clients. Validation tags are checked by the server.

type ClockSyncRequest struct {
	ClientTime int64 `json:"client_time"`
}

type SendMessageRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// VideoCommandRequest is sent for video_play, video_pause and video_seek.
// ExecuteAt (server unix milliseconds) is honoured only in scheduled mode.
type VideoCommandRequest struct {
	CurrentTime float64 `json:"current_time" validate:"min=0"`
	ExecuteAt   int64   `json:"execute_at,omitempty" validate:"min=0"`
}

type VideoURLChangeRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

type PlaylistRemoveRequest struct {
	VideoId string `json:"video_id" validate:"required,max=64"`
}
