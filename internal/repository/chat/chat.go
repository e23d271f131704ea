package chat

type Message struct {
	Id           string `json:"id"`
	RoomId       string `json:"room_id"`
	ConnectionId string `json:"connection_id"`
	UserId       string `json:"user_id,omitempty"`
	DisplayName  string `json:"display_name"`
	Text         string `json:"text"`
	SentAt       int64  `json:"sent_at"`
}
