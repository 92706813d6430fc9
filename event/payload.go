package event

import (
	"errors"
	"fmt"
)

// ErrPayloadShape はペイロードの要素数や要素の型がスキーマと一致しない場合に返されます。
var ErrPayloadShape = errors.New("payload does not match event schema")

// Payload はトランスポートでシリアライズ可能なプリミティブ値の並びです。
type Payload []any

func (p Payload) expectLen(kind Kind, n int) error {
	if len(p) != n {
		return fmt.Errorf("%w: %s expects %d values, got %d", ErrPayloadShape, kind, n, len(p))
	}
	return nil
}

func (p Payload) at(i int) (any, error) {
	if i < 0 || i >= len(p) {
		return nil, fmt.Errorf("%w: index %d out of range (len %d)", ErrPayloadShape, i, len(p))
	}
	return p[i], nil
}

// StringAt は i 番目の値を string として取り出します。
func (p Payload) StringAt(i int) (string, error) {
	v, err := p.at(i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: value %d is %T, want string", ErrPayloadShape, i, v)
	}
	return s, nil
}

// Int32At は i 番目の値を int32 として取り出します。
func (p Payload) Int32At(i int) (int32, error) {
	v, err := p.at(i)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int32)
	if !ok {
		return 0, fmt.Errorf("%w: value %d is %T, want int32", ErrPayloadShape, i, v)
	}
	return n, nil
}

// ByteAt は i 番目の値を byte として取り出します。
func (p Payload) ByteAt(i int) (byte, error) {
	v, err := p.at(i)
	if err != nil {
		return 0, err
	}
	b, ok := v.(byte)
	if !ok {
		return 0, fmt.Errorf("%w: value %d is %T, want byte", ErrPayloadShape, i, v)
	}
	return b, nil
}

// BoolAt は i 番目の値を bool として取り出します。
func (p Payload) BoolAt(i int) (bool, error) {
	v, err := p.at(i)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: value %d is %T, want bool", ErrPayloadShape, i, v)
	}
	return b, nil
}
