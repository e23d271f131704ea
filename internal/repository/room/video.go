package room

type Video struct {
	VideoId     string `redis:"-"`
	Title       string `redis:"title"`
	Thumbnail   string `redis:"thumbnail"`
	Channel     string `redis:"channel"`
	Description string `redis:"description"`
	PublishDate string `redis:"publish_date"`
}

type AddVideoParams struct {
	RoomId string
	Video  Video
}

type RemoveVideoParams struct {
	RoomId  string
	VideoId string
}
