// Package dispatch はイベントのハンドラー登録・送信・受信配送を担当するディスパッチャーです。
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crossfire/event"
)

//go:generate go tool mockgen -destination=./mocks/publisher_mock.go -package=mocks . Publisher

var (
	// ErrNoHandler は種別に対するハンドラーが1つも登録されていない場合のエラーです。
	ErrNoHandler = errors.New("no handler registered for event kind")
	// ErrNoDecoder は種別に対するデコーダーが登録されていない場合のエラーです。
	ErrNoDecoder = errors.New("no decoder registered for event kind")
	// ErrReservedKind は予約領域の種別を送信しようとした場合のエラーです。
	ErrReservedKind = errors.New("event kind is reserved for the transport")
	// ErrPublish はトランスポートへの送信に失敗した場合のエラーです。
	ErrPublish = errors.New("publish failed")
)

// Publisher はディスパッチャーが依存するトランスポートの送信境界です。
// 送信は fire-and-forget で、配送確認は行いません。
type Publisher interface {
	Publish(ctx context.Context, kind event.Kind, payload event.Payload, opts event.DeliveryOptions) error
}

// Handler は受信したイベントを処理するコールバックです。
// 配送ループ上で同期的に呼ばれるため、ブロックせずにすぐ戻る必要があります。
type Handler func(ctx context.Context, ev event.Event)

// Dispatcher は種別ごとのハンドラーとデコーダーを保持します。
// プロセスで1つ生成し、送信側・受信側の両方に明示的に渡して使います。
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Kind]map[uint64]Handler
	decoders map[event.Kind]event.Decoder
	nextID   uint64

	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics
	tracer    trace.Tracer
}

// New は publisher に送信するディスパッチャーを生成します。
// デコーダー表はイベントカタログから初期化されます。
func New(publisher Publisher, opts ...Option) *Dispatcher {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	decoders := make(map[event.Kind]event.Decoder, len(cfg.decoders))
	for k, dec := range cfg.decoders {
		decoders[k] = dec
	}
	return &Dispatcher{
		handlers:  make(map[event.Kind]map[uint64]Handler),
		decoders:  decoders,
		publisher: publisher,
		logger:    cfg.logger,
		metrics:   newMetrics(cfg),
		tracer:    cfg.tracerProvider.Tracer(tracerName),
	}
}

// RegisterHandler は kind に handler を追加し、登録解除用の Subscription を返します。
func (d *Dispatcher) RegisterHandler(kind event.Kind, handler Handler) *Subscription {
	if handler == nil {
		panic("dispatch: nil handler")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.handlers[kind]
	if !ok {
		set = make(map[uint64]Handler)
		d.handlers[kind] = set
	}
	d.nextID++
	id := d.nextID
	set[id] = handler
	return &Subscription{dispatcher: d, kind: kind, id: id}
}

func (d *Dispatcher) unregister(kind event.Kind, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.handlers[kind]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(d.handlers, kind)
	}
}

// RegisterDecoder は kind のデコーダーを明示的に登録します。既存の登録は置き換えられます。
func (d *Dispatcher) RegisterDecoder(kind event.Kind, decoder event.Decoder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decoders[kind] = decoder
}

// HasHandlers は kind に1つ以上ハンドラーが登録されているかを返します。
func (d *Dispatcher) HasHandlers(kind event.Kind) bool {
	return d.HandlerCount(kind) > 0
}

// HandlerCount は kind に登録されているハンドラー数を返します。
func (d *Dispatcher) HandlerCount(kind event.Kind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[kind])
}

// HasDecoder は kind のデコーダーが登録されているかを返します。
func (d *Dispatcher) HasDecoder(kind event.Kind) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.decoders[kind]
	return ok
}

// SendEvent は ev をトランスポートへ送信します。
// 失敗はすべてログに記録され、呼び出し元には伝播しません。
func (d *Dispatcher) SendEvent(ctx context.Context, ev event.Event) {
	kind := ev.Kind()
	ctx, span := d.tracer.Start(ctx, "dispatch.SendEvent",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("event.kind", kind.String())),
	)
	defer span.End()

	if err := d.send(ctx, ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.ErrorContext(ctx, "send event failed", "kind", kind, "err", err)
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (d *Dispatcher) send(ctx context.Context, ev event.Event) (err error) {
	kind := ev.Kind()
	if kind.IsReserved() {
		d.metrics.sent(kind, resultReserved)
		return fmt.Errorf("%w: %s", ErrReservedKind, kind)
	}

	d.mu.Lock()
	if len(d.handlers[kind]) == 0 {
		d.mu.Unlock()
		d.metrics.sent(kind, resultNoHandler)
		return fmt.Errorf("%w: %s", ErrNoHandler, kind)
	}
	if _, ok := d.decoders[kind]; !ok {
		if p, ok := event.Unwrap(ev).(event.DecoderProvider); ok {
			d.decoders[kind] = p.Decoder()
			d.logger.DebugContext(ctx, "decoder captured from first sent event", "kind", kind)
		}
	}
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			d.metrics.sent(kind, resultPublishError)
			err = fmt.Errorf("%w: %s: panic: %v", ErrPublish, kind, r)
		}
	}()
	if err := d.publisher.Publish(ctx, kind, ev.Payload(), ev.Options()); err != nil {
		d.metrics.sent(kind, resultPublishError)
		return fmt.Errorf("%w: %s: %w", ErrPublish, kind, err)
	}
	d.metrics.sent(kind, resultOK)
	return nil
}

// OnInboundEvent はトランスポートから受信した (code, payload) をデコードし、
// 登録されている全ハンドラーを呼び出し元のゴルーチン上で同期的に呼び出します。
// code が予約領域 (>= 200) の場合は何もせずに戻ります。
func (d *Dispatcher) OnInboundEvent(ctx context.Context, code byte, payload event.Payload) {
	kind := event.Kind(code)
	if kind.IsReserved() {
		return
	}
	ctx, span := d.tracer.Start(ctx, "dispatch.OnInboundEvent",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("event.kind", kind.String())),
	)
	defer span.End()

	d.mu.RLock()
	set := d.handlers[kind]
	handlers := make([]Handler, 0, len(set))
	for _, h := range set {
		handlers = append(handlers, h)
	}
	decoder, hasDecoder := d.decoders[kind]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		d.drop(ctx, span, kind, resultNoHandler, fmt.Errorf("%w: %s", ErrNoHandler, kind))
		return
	}
	if !hasDecoder {
		d.drop(ctx, span, kind, resultNoDecoder, fmt.Errorf("%w: %s", ErrNoDecoder, kind))
		return
	}
	ev, err := decoder(payload)
	if err != nil {
		d.drop(ctx, span, kind, resultDecodeError, fmt.Errorf("decode %s: %w", kind, err))
		return
	}

	d.metrics.received(kind, resultOK)
	span.SetAttributes(attribute.Int("event.handlers", len(handlers)))
	for _, h := range handlers {
		d.invoke(ctx, kind, h, ev)
	}
}

func (d *Dispatcher) drop(ctx context.Context, span trace.Span, kind event.Kind, result string, err error) {
	d.metrics.received(kind, result)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	d.logger.ErrorContext(ctx, "inbound event dropped", "kind", kind, "err", err)
}

func (d *Dispatcher) invoke(ctx context.Context, kind event.Kind, h Handler, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.handlerPanics.WithLabelValues(kind.String()).Inc()
			d.logger.ErrorContext(ctx, "event handler panicked", "kind", kind, "panic", r)
		}
	}()
	h(ctx, ev)
}

// Subscribe は T のゼロ値から種別を求めて型付きハンドラーを登録します。
// 受信したイベントが T でない場合は呼び出されません。
func Subscribe[T event.Event](d *Dispatcher, fn func(ctx context.Context, ev T)) *Subscription {
	var zero T
	return d.RegisterHandler(zero.Kind(), func(ctx context.Context, ev event.Event) {
		typed, ok := event.Unwrap(ev).(T)
		if !ok {
			d.logger.WarnContext(ctx, "unexpected event type for subscription", "kind", zero.Kind(), "type", fmt.Sprintf("%T", ev))
			return
		}
		fn(ctx, typed)
	})
}
