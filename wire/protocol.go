// Package wire はイベントをトランスポート上のフレームへ変換するバイナリコーデックです。
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"crossfire/event"
)

// バイトオーダー: リトルエンディアン
var byteOrder = binary.LittleEndian

const (
	Version    = 1
	HeaderSize = 12
)

// システムイベントのコード。200 以上はトランスポートの予約領域です。
const (
	CodeJoin          byte = 255 // [actor int32, master int32]
	CodeLeave         byte = 254 // [actor int32]
	CodeMasterChanged byte = 253 // [actor int32]
	CodePing          byte = 252
	CodePong          byte = 251
)

var (
	ErrInvalidHeaderSize  = errors.New("invalid header size")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrShortBuffer        = errors.New("payload is truncated")
	ErrUnknownTag         = errors.New("unknown value tag")
	ErrUnsupportedValue   = errors.New("value type cannot be serialized")
	ErrPayloadTooLarge    = errors.New("payload has too many values")
	ErrNestingTooDeep     = errors.New("payload nesting is too deep")
	ErrTrailingBytes      = errors.New("frame has trailing bytes")
)

// Flags はフレームのフラグビットです。
type Flags uint8

const FlagReliable Flags = 1 << 0

// Header はフレームヘッダー (12バイト)
//
//	version   u8  (1)
//	code      u8  (1)
//	receivers u8  (1)
//	flags     u8  (1)
//	sender    i32 (4)  - 送信者のアクター番号 (0 はリレー)
//	seq       u16 (2)
//	count     u16 (2)  - ペイロードの値の数
type Header struct {
	Version   uint8
	Code      uint8
	Receivers event.ReceiverGroup
	Flags     Flags
	Sender    int32
	Seq       uint16
	Count     uint16
}

// ParseHeader はバイト列からHeaderをパースする
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrInvalidHeaderSize
	}
	if data[0] != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}

	return &Header{
		Version:   data[0],
		Code:      data[1],
		Receivers: event.ReceiverGroup(data[2]),
		Flags:     Flags(data[3]),
		Sender:    int32(byteOrder.Uint32(data[4:8])),
		Seq:       byteOrder.Uint16(data[8:10]),
		Count:     byteOrder.Uint16(data[10:12]),
	}, nil
}

// Encode はHeaderをバイト列にエンコードする
func (h *Header) Encode() []byte {
	return h.appendTo(make([]byte, 0, HeaderSize))
}

func (h *Header) appendTo(buf []byte) []byte {
	buf = append(buf, h.Version, h.Code, byte(h.Receivers), byte(h.Flags))
	buf = byteOrder.AppendUint32(buf, uint32(h.Sender))
	buf = byteOrder.AppendUint16(buf, h.Seq)
	return byteOrder.AppendUint16(buf, h.Count)
}

// Reliable は到達保証フラグが立っているかを返す
func (h *Header) Reliable() bool {
	return h.Flags&FlagReliable != 0
}

// Options はヘッダーの配送オプションを返す
func (h *Header) Options() event.DeliveryOptions {
	return event.DeliveryOptions{Receivers: h.Receivers, Reliable: h.Reliable()}
}

// Frame は1イベント分のフレームです。
type Frame struct {
	Header
	Payload event.Payload
}

// NewFrame は配送オプションからフレームを組み立てる
func NewFrame(code byte, payload event.Payload, opts event.DeliveryOptions) Frame {
	var flags Flags
	if opts.Reliable {
		flags |= FlagReliable
	}
	return Frame{
		Header: Header{
			Version:   Version,
			Code:      code,
			Receivers: opts.Receivers,
			Flags:     flags,
		},
		Payload: payload,
	}
}

// Encode はFrameをバイト列にエンコードする。Count はペイロードから設定される。
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload) > math.MaxUint16 {
		return nil, ErrPayloadTooLarge
	}
	h := f.Header
	h.Version = Version
	h.Count = uint16(len(f.Payload))

	buf := h.appendTo(make([]byte, 0, HeaderSize+len(f.Payload)*5))
	var err error
	for _, v := range f.Payload {
		if buf, err = appendValue(buf, v, 0); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// ParseFrame はバイト列からFrameをパースする
func ParseFrame(data []byte) (*Frame, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	r := &reader{data: data, off: HeaderSize}
	values, err := r.values(int(header.Count), 0)
	if err != nil {
		return nil, err
	}
	if r.off != len(data) {
		return nil, ErrTrailingBytes
	}
	return &Frame{Header: *header, Payload: event.Payload(values)}, nil
}

// SetSender はエンコード済みフレームの送信者フィールドを書き換える。
// リレーが転送時に送信者のアクター番号を刻印するために使用
func SetSender(data []byte, actor int32) error {
	if len(data) < HeaderSize {
		return ErrInvalidHeaderSize
	}
	byteOrder.PutUint32(data[4:8], uint32(actor))
	return nil
}

func encodeSystem(code byte, sender int32, payload event.Payload) []byte {
	f := NewFrame(code, payload, event.DeliveryOptions{Receivers: event.ReceiverOthers, Reliable: true})
	f.Sender = sender
	data, err := f.Encode()
	if err != nil {
		// システムイベントは int32 のみで構成されるため失敗しない
		panic(err)
	}
	return data
}

// EncodeJoinMessage はルーム参加通知をエンコードする
func EncodeJoinMessage(actor, master int32) []byte {
	return encodeSystem(CodeJoin, 0, event.Payload{actor, master})
}

// EncodeLeaveMessage はルーム離脱通知をエンコードする
func EncodeLeaveMessage(actor int32) []byte {
	return encodeSystem(CodeLeave, 0, event.Payload{actor})
}

// EncodeMasterChangedMessage はマスタークライアント交代通知をエンコードする
func EncodeMasterChangedMessage(actor int32) []byte {
	return encodeSystem(CodeMasterChanged, 0, event.Payload{actor})
}

// EncodePingMessage はPingメッセージをエンコードする
func EncodePingMessage() []byte {
	return encodeSystem(CodePing, 0, nil)
}

// EncodePongMessage はPongメッセージをエンコードする
func EncodePongMessage(actor int32) []byte {
	return encodeSystem(CodePong, actor, nil)
}
