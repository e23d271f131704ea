package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/watchsync/pkg/protocol"
)

func (c controller) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type timeResponse struct {
	ServerTime int64 `json:"server_time"`
}

func (c controller) getTime(w http.ResponseWriter, _ *http.Request) {
	if c.metrics != nil {
		c.metrics.RecordClockSync()
	}

	c.writeJSON(w, http.StatusOK, timeResponse{ServerTime: c.clockService.Now()})
}

type createRoomResponse struct {
	RoomId   string            `json:"room_id"`
	SyncMode protocol.SyncMode `json:"sync_mode"`
}

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	createRoomResp, err := c.roomService.CreateRoom(r.Context())
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to create room", "error", err)
		c.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	c.writeJSON(w, http.StatusCreated, createRoomResponse{
		RoomId:   createRoomResp.RoomId,
		SyncMode: c.roomService.SyncMode(),
	})
}

func (c controller) getVideoState(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	videoState, ok, err := c.roomService.GetVideoState(r.Context(), roomId)
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to get video state", "error", err)
		c.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	if !ok {
		c.writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found", Code: "ROOM_NOT_FOUND"})
		return
	}

	c.writeJSON(w, http.StatusOK, protocol.VideoStatePayload{VideoState: &videoState})
}
