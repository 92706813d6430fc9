package handler

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"crossfire/domain"
	"crossfire/server/relay"
	wstransport "crossfire/transport/websocket"
)

// AcceptHandler は websocket 接続を受け付け、セッションエンドポイントを起動します。
// クエリパラメーター room で参加するルームを指定します。
type AcceptHandler struct {
	pubsub      relay.PubSub
	rooms       *relay.RoomManager
	defaultRoom relay.RoomID
	cfg         relay.EndpointConfig
	logger      *slog.Logger
}

func NewAcceptHandler(pubsub relay.PubSub, rooms *relay.RoomManager, defaultRoom relay.RoomID, cfg relay.EndpointConfig) *AcceptHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AcceptHandler{
		pubsub:      pubsub,
		rooms:       rooms,
		defaultRoom: defaultRoom,
		cfg:         cfg,
		logger:      logger,
	}
}

func (h *AcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := relay.RoomID(r.URL.Query().Get("room"))
	if roomID == "" {
		roomID = h.defaultRoom
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // 開発用: Origin チェックをスキップ
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to accept", "err", err)
		return
	}

	_, release := h.rooms.Acquire(roomID)
	defer release()
	session := domain.NewSession()
	endpoint, err := relay.NewSessionEndpoint(session, wstransport.NewTransportFrom(conn), h.pubsub, roomID, h.cfg)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create session endpoint", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}
	h.logger.DebugContext(ctx, "accepted new connection", "sessionID", session.ID(), "room", roomID)
	if err := endpoint.Run(ctx); err != nil {
		h.logger.ErrorContext(ctx, "failed to run session endpoint", "err", err)
	}
}
