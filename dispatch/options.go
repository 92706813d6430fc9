package dispatch

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"crossfire/event"
)

const tracerName = "crossfire/dispatch"

type config struct {
	decoders       map[event.Kind]event.Decoder
	logger         *slog.Logger
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
}

func defaultConfig() config {
	return config{
		decoders:       event.Decoders(),
		logger:         slog.Default(),
		tracerProvider: otel.GetTracerProvider(),
	}
}

// Option はディスパッチャーの設定を変更します。
type Option func(*config)

// WithDecoders は初期デコーダー表を差し替えます。nil を渡すと空の表から開始します。
func WithDecoders(decoders map[event.Kind]event.Decoder) Option {
	return func(c *config) {
		c.decoders = decoders
	}
}

// WithLogger はログ出力先を設定します。
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegisterer はメトリクスの登録先を設定します。
// 指定しない場合、メトリクスは集計されますがどこにも登録されません。
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}

// WithTracerProvider はスパンの発行元を設定します。デフォルトはグローバルプロバイダーです。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		if tp != nil {
			c.tracerProvider = tp
		}
	}
}
