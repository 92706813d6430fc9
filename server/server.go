// Package server はリレーの HTTP サーバーです。
package server

import (
	"context"
	"net"
	"net/http"
)

type Server struct {
	HTTP *http.Server
}

// NewServer は ctx をリクエストの基底コンテキストとするサーバーを生成します。
// ctx がキャンセルされるとハイジャック済みの websocket セッションも終了します。
func NewServer(ctx context.Context, addr string, handler http.Handler) *Server {
	return &Server{
		HTTP: &http.Server{
			Addr:        addr,
			Handler:     handler,
			BaseContext: func(net.Listener) context.Context { return ctx },
		},
	}
}

func (s *Server) Serve() error                       { return s.HTTP.ListenAndServe() }
func (s *Server) Shutdown(ctx context.Context) error { return s.HTTP.Shutdown(ctx) }
func (s *Server) Close() error                       { return s.HTTP.Close() }
func (s *Server) Addr() string                       { return s.HTTP.Addr }
