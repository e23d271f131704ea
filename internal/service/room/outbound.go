package room

import (
	"github.com/sharetube/watchsync/internal/repository/room"
	"github.com/sharetube/watchsync/pkg/protocol"
)

// Outbound is a message for Recipients (connection ids). The service delivers it through
// its broadcaster before the room lock is released.
type Outbound struct {
	Type       string
	Payload    any
	Recipients []string
}

func connectionIds(participants []room.Participant, exclude string) []string {
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.ConnectionId != exclude {
			ids = append(ids, p.ConnectionId)
		}
	}

	return ids
}

// toRoom addresses every participant.
func toRoom(participants []room.Participant, msgType string, payload any) Outbound {
	return Outbound{
		Type:       msgType,
		Payload:    payload,
		Recipients: connectionIds(participants, ""),
	}
}

func toRoomExcept(participants []room.Participant, senderId, msgType string, payload any) Outbound {
	return Outbound{
		Type:       msgType,
		Payload:    payload,
		Recipients: connectionIds(participants, senderId),
	}
}

func toSender(senderId, msgType string, payload any) Outbound {
	return Outbound{
		Type:       msgType,
		Payload:    payload,
		Recipients: []string{senderId},
	}
}

func mapVideoState(vs room.VideoState) protocol.VideoState {
	return protocol.VideoState{
		URL:         vs.URL,
		IsPlaying:   vs.IsPlaying,
		CurrentTime: vs.CurrentTime,
		LastUpdated: vs.LastUpdated,
	}
}

func mapParticipants(participants []room.Participant) []protocol.Participant {
	result := make([]protocol.Participant, 0, len(participants))
	for _, p := range participants {
		result = append(result, protocol.Participant{
			ConnectionId: p.ConnectionId,
			DisplayName:  p.DisplayName,
			UserId:       p.UserId,
		})
	}

	return result
}

func mapPlaylist(videos []room.Video) []protocol.VideoItem {
	result := make([]protocol.VideoItem, 0, len(videos))
	for _, v := range videos {
		result = append(result, protocol.VideoItem{
			VideoId:     v.VideoId,
			Title:       v.Title,
			Thumbnail:   v.Thumbnail,
			Channel:     v.Channel,
			Description: v.Description,
			PublishDate: v.PublishDate,
		})
	}

	return result
}
