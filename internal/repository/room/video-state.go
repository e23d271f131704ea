package room

type VideoState struct {
	URL         string  `redis:"url"`
	IsPlaying   bool    `redis:"is_playing"`
	CurrentTime float64 `redis:"current_time"`
	LastUpdated int64   `redis:"last_updated"`
}

type SetVideoStateParams struct {
	RoomId     string
	VideoState VideoState
}
