package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crossfire/server/handler"
	"crossfire/server/relay"
)

// Route はリレーの HTTP エンドポイントを登録します。
// /ws は ?room= で指定されたルーム (省略時は defaultRoom) に接続します。
func Route(pubsub relay.PubSub, rooms *relay.RoomManager, defaultRoom relay.RoomID, cfg relay.EndpointConfig, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", handler.NewAcceptHandler(pubsub, rooms, defaultRoom, cfg))
	mux.Handle("/health", handler.NewHealthHandler(rooms))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
