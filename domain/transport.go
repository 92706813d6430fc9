package domain

import (
	"context"
)

//go:generate go tool mockgen -destination=./mocks/transport_mock.go -package=mocks . Transport

// Transport はフレーム単位で読み書きする物理接続のI/O境界です。
// Read は1つのゴルーチンから呼ばれ、Write は並行に呼ばれても安全である必要があります。
type Transport interface {
	Read(ctx context.Context) (data []byte, err error)
	Write(ctx context.Context, data []byte) error
	Close(code int32, reason string) error
}

// 接続終了コード (websocket のステータスコードに準拠)
const (
	CloseNormal        int32 = 1000
	CloseGoingAway     int32 = 1001
	ClosePolicy        int32 = 1008
	CloseInternalError int32 = 1011
)
