package relay

import (
	"context"
	"log/slog"
	"time"

	"crossfire/domain"
	"crossfire/wire"
)

// HeartbeatService は定期的にpingフレームを送信する死活監視サービスです。
// ping は到達保証なしで、書き込みキューが満杯なら破棄されます。
type HeartbeatService struct {
	pingInterval time.Duration
	session      *domain.Session
	writeCh      chan<- []byte
	logger       *slog.Logger
}

// NewHeartbeatService は新しいHeartbeatServiceを生成します。
func NewHeartbeatService(pingInterval time.Duration, session *domain.Session, writeCh chan<- []byte, logger *slog.Logger) *HeartbeatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HeartbeatService{
		pingInterval: pingInterval,
		session:      session,
		writeCh:      writeCh,
		logger:       logger,
	}
}

// Run はpingInterval間隔でpingフレームをwriteChに送信します。
// ctxがキャンセルされると終了します。pingInterval が 0 以下の場合は何もしません。
func (h *HeartbeatService) Run(ctx context.Context) {
	if h.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case h.writeCh <- wire.EncodePingMessage():
				h.logger.DebugContext(ctx, "heartbeat: ping sent", "sessionID", h.session.ID())
			default:
				h.logger.WarnContext(ctx, "heartbeat: writeCh full, ping dropped", "sessionID", h.session.ID())
			}
		}
	}
}
