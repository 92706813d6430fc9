// Package config は環境変数から設定を読み込みます。
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Relay はリレーサーバーの設定です。
type Relay struct {
	Addr         string        `env:"CROSSFIRE_ADDR" envDefault:"localhost:9090"`
	LogLevel     slog.Level    `env:"CROSSFIRE_LOG_LEVEL" envDefault:"INFO"`
	DefaultRoom  string        `env:"CROSSFIRE_DEFAULT_ROOM" envDefault:"default"`
	PingInterval time.Duration `env:"CROSSFIRE_PING_INTERVAL" envDefault:"5s"`
	IdleTimeout  time.Duration `env:"CROSSFIRE_IDLE_TIMEOUT" envDefault:"30s"`
	WriteQueue   int           `env:"CROSSFIRE_WRITE_QUEUE" envDefault:"1024"`
	MaxPeers     int           `env:"CROSSFIRE_MAX_PEERS" envDefault:"16"`
}

// Peer はデモ用ピアの設定です。
type Peer struct {
	RelayURL    string        `env:"CROSSFIRE_RELAY_URL" envDefault:"ws://localhost:9090/ws"`
	LogLevel    slog.Level    `env:"CROSSFIRE_LOG_LEVEL" envDefault:"INFO"`
	Room        string        `env:"CROSSFIRE_ROOM" envDefault:"default"`
	Bots        int           `env:"CROSSFIRE_BOTS" envDefault:"4"`
	MatchLength time.Duration `env:"CROSSFIRE_MATCH_LENGTH" envDefault:"2m"`
	KillTarget  int32         `env:"CROSSFIRE_KILL_TARGET" envDefault:"10"`
	MapIndex    int32         `env:"CROSSFIRE_MAP_INDEX" envDefault:"0"`
	Perpetual   bool          `env:"CROSSFIRE_PERPETUAL" envDefault:"true"`
}

// Parse は環境変数から target を読み込みます。
func Parse(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadRelay はリレーの設定を読み込みます。
func LoadRelay() (Relay, error) {
	var cfg Relay
	if err := Parse(&cfg); err != nil {
		return Relay{}, err
	}
	if cfg.WriteQueue <= 0 {
		return Relay{}, fmt.Errorf("parse env: CROSSFIRE_WRITE_QUEUE must be positive, got %d", cfg.WriteQueue)
	}
	return cfg, nil
}

// LoadPeer はピアの設定を読み込みます。
func LoadPeer() (Peer, error) {
	var cfg Peer
	if err := Parse(&cfg); err != nil {
		return Peer{}, err
	}
	return cfg, nil
}
