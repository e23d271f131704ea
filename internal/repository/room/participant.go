package room

type Participant struct {
	ConnectionId string `redis:"-"`
	DisplayName  string `redis:"display_name"`
	UserId       string `redis:"user_id"`
	JoinedAt     int64  `redis:"joined_at"`
}

type AddParticipantParams struct {
	RoomId      string
	Participant Participant
}

type RemoveParticipantParams struct {
	RoomId       string
	ConnectionId string
}
