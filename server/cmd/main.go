package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"crossfire/config"
	"crossfire/server"
	"crossfire/server/relay"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "crossfire-relay",
		Short: "Room relay for crossfire peers",
		Long: `crossfire-relay はピア間のイベントフレームをルーム単位で中継する WebSocket サーバーです。

設定は CROSSFIRE_* 環境変数から読み込まれ、フラグで上書きできます。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		addr        string
		defaultRoom string
		maxPeers    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadRelay()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("room") {
				cfg.DefaultRoom = defaultRoom
			}
			if cmd.Flags().Changed("max-peers") {
				cfg.MaxPeers = maxPeers
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides CROSSFIRE_ADDR)")
	cmd.Flags().StringVarP(&defaultRoom, "room", "r", "", "Room used when ?room= is absent")
	cmd.Flags().IntVar(&maxPeers, "max-peers", 0, "Maximum peers per room")

	return cmd
}

func runServe(ctx context.Context, cfg config.Relay) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := relay.NewMetrics(reg)

	pubsub := relay.NewSimplePubSub(cfg.WriteQueue)
	rooms := relay.NewRoomManager(ctx, pubsub, logger, metrics, relay.WithMaxPeers(cfg.MaxPeers))
	endpointCfg := relay.EndpointConfig{
		PingInterval: cfg.PingInterval,
		IdleTimeout:  cfg.IdleTimeout,
		WriteQueue:   cfg.WriteQueue,
		Logger:       logger,
		Metrics:      metrics,
	}

	handler := server.Route(pubsub, rooms, relay.RoomID(cfg.DefaultRoom), endpointCfg, reg)
	s := server.NewServer(ctx, cfg.Addr, handler)

	serveErr := make(chan error, 1)
	go func() {
		if err := s.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	logger.InfoContext(ctx, "server listening", "addr", s.Addr(), "room", cfg.DefaultRoom, "max_peers", cfg.MaxPeers)

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}
	logger.InfoContext(ctx, "shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(ctx, "graceful shutdown failed", "error", err)
		if err := s.Close(); err != nil {
			logger.ErrorContext(ctx, "forced close failed", "error", err)
		}
	}
	// ルームは ctx のキャンセルで停止する
	stop()
	if err := rooms.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorContext(ctx, "room stopped with error", "error", err)
	}
	logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
