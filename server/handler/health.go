package handler

import (
	"encoding/json"
	"net/http"

	"crossfire/server/relay"
)

// healthResponse は /health の応答です。
type healthResponse struct {
	Status string   `json:"status"`
	Rooms  []string `json:"rooms"`
}

// NewHealthHandler は稼働中のルーム一覧を返すヘルスチェックハンドラーを生成します。
func NewHealthHandler(rooms *relay.RoomManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Rooms: []string{}}
		for _, id := range rooms.Rooms() {
			resp.Rooms = append(resp.Rooms, id.String())
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
