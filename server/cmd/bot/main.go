package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"crossfire/config"
	"crossfire/dispatch"
	"crossfire/event"
	"crossfire/match"
	"crossfire/transport"
	wstransport "crossfire/transport/websocket"
)

const (
	tickInterval   = time.Second
	reconnectDelay = 2 * time.Second
	// killChance は1ティックあたりにキルを報告する確率です。
	killChance = 0.2
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "crossfire-bot",
		Short:         "Run demo peers against a crossfire relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		relayURL string
		room     string
		bots     int
	)
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadPeer()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("relay") {
			cfg.RelayURL = relayURL
		}
		if cmd.Flags().Changed("room") {
			cfg.Room = room
		}
		if cmd.Flags().Changed("bots") {
			cfg.Bots = bots
		}
		return runFleet(cmd.Context(), cfg)
	}
	rootCmd.Flags().StringVarP(&relayURL, "relay", "u", "", "Relay WebSocket URL (overrides CROSSFIRE_RELAY_URL)")
	rootCmd.Flags().StringVarP(&room, "room", "r", "", "Room to join")
	rootCmd.Flags().IntVarP(&bots, "bots", "n", 0, "Number of bots")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func runFleet(ctx context.Context, cfg config.Peer) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target, err := roomURL(cfg.RelayURL, cfg.Room)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "starting bots", "count", cfg.Bots, "relay", target)

	eg, ctx := errgroup.WithContext(ctx)
	for i := range cfg.Bots {
		eg.Go(func() error {
			runBot(ctx, target, fmt.Sprintf("bot-%d", i), cfg, logger.With("botID", i))
			return nil
		})
	}
	err = eg.Wait()
	logger.Info("all bots stopped")
	return err
}

func roomURL(relayURL, room string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	if room != "" {
		q := u.Query()
		q.Set("room", room)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func runBot(ctx context.Context, target, name string, cfg config.Peer, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := botSession(ctx, target, name, cfg, logger)
		if err != nil && ctx.Err() == nil {
			logger.WarnContext(ctx, "bot session ended, reconnecting", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}
}

func botSession(ctx context.Context, target, name string, cfg config.Peer, logger *slog.Logger) error {
	conn, err := wstransport.Dial(ctx, target)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	adapter := transport.NewAdapter(conn, transport.WithAdapterLogger(logger))
	defer adapter.Close()

	dispatcher := dispatch.New(adapter, dispatch.WithLogger(logger))
	adapter.OnEvent(dispatcher)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := adapter.Run(ctx); err != nil {
			return err
		}
		// 正常終了でもセッションを終わらせてティックループを止める
		return errSessionClosed
	})

	joinCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = adapter.WaitJoined(joinCtx)
	cancel()
	if err != nil {
		adapter.Close()
		_ = eg.Wait()
		return fmt.Errorf("wait joined: %w", err)
	}
	logger = logger.With("actor", adapter.ActorNumber())
	logger.InfoContext(ctx, "joined room", "master", adapter.IsMasterClient())

	manager := match.NewManager(dispatcher, adapter, name, match.Config{
		MatchLength: cfg.MatchLength,
		KillTarget:  cfg.KillTarget,
		MapIndex:    cfg.MapIndex,
		Perpetual:   cfg.Perpetual,
	}, logger)
	defer manager.Close()
	manager.Start(ctx)

	eg.Go(func() error {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				manager.Tick(ctx, tickInterval)
				playRound(ctx, manager, adapter.ActorNumber(), logger)
			}
		}
	})

	err = eg.Wait()
	if errors.Is(err, errSessionClosed) {
		return nil
	}
	return err
}

var errSessionClosed = errors.New("session closed")

// playRound はランダムに他のプレイヤーを1人倒したことにします。
func playRound(ctx context.Context, manager *match.Manager, self int32, logger *slog.Logger) {
	if manager.State() != event.MatchPlaying || rand.Float64() >= killChance {
		return
	}
	var victims []int32
	for _, p := range manager.Players() {
		if p.Actor != self {
			victims = append(victims, p.Actor)
		}
	}
	if len(victims) == 0 {
		return
	}
	victim := victims[rand.IntN(len(victims))]
	logger.DebugContext(ctx, "kill", "victim", victim)
	manager.ReportKill(ctx, self, victim)
}
