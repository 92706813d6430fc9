package wire

import (
	"fmt"
	"math"

	"crossfire/event"
)

// tag はペイロード値の型タグ (1バイト) です。
type tag uint8

const (
	tagNil tag = iota
	tagBool
	tagByte
	tagInt16
	tagInt32
	tagInt64
	tagFloat32
	tagFloat64
	tagString      // u32 長さ + UTF-8
	tagBytes       // u32 長さ
	tagInt32Slice  // u16 要素数
	tagStringSlice // u16 要素数
	tagArray       // u16 要素数 + 入れ子の値
)

const maxNesting = 8

func appendValue(buf []byte, v any, depth int) ([]byte, error) {
	if depth > maxNesting {
		return nil, ErrNestingTooDeep
	}
	switch x := v.(type) {
	case nil:
		return append(buf, byte(tagNil)), nil
	case bool:
		b := byte(0)
		if x {
			b = 1
		}
		return append(buf, byte(tagBool), b), nil
	case byte:
		return append(buf, byte(tagByte), x), nil
	case int16:
		buf = append(buf, byte(tagInt16))
		return byteOrder.AppendUint16(buf, uint16(x)), nil
	case int32:
		buf = append(buf, byte(tagInt32))
		return byteOrder.AppendUint32(buf, uint32(x)), nil
	case int64:
		buf = append(buf, byte(tagInt64))
		return byteOrder.AppendUint64(buf, uint64(x)), nil
	case float32:
		buf = append(buf, byte(tagFloat32))
		return byteOrder.AppendUint32(buf, math.Float32bits(x)), nil
	case float64:
		buf = append(buf, byte(tagFloat64))
		return byteOrder.AppendUint64(buf, math.Float64bits(x)), nil
	case string:
		buf = append(buf, byte(tagString))
		buf = byteOrder.AppendUint32(buf, uint32(len(x)))
		return append(buf, x...), nil
	case []byte:
		buf = append(buf, byte(tagBytes))
		buf = byteOrder.AppendUint32(buf, uint32(len(x)))
		return append(buf, x...), nil
	case []int32:
		if len(x) > math.MaxUint16 {
			return nil, ErrPayloadTooLarge
		}
		buf = append(buf, byte(tagInt32Slice))
		buf = byteOrder.AppendUint16(buf, uint16(len(x)))
		for _, n := range x {
			buf = byteOrder.AppendUint32(buf, uint32(n))
		}
		return buf, nil
	case []string:
		if len(x) > math.MaxUint16 {
			return nil, ErrPayloadTooLarge
		}
		buf = append(buf, byte(tagStringSlice))
		buf = byteOrder.AppendUint16(buf, uint16(len(x)))
		for _, s := range x {
			buf = byteOrder.AppendUint32(buf, uint32(len(s)))
			buf = append(buf, s...)
		}
		return buf, nil
	case event.Payload:
		return appendArray(buf, x, depth)
	case []any:
		return appendArray(buf, x, depth)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func appendArray(buf []byte, values []any, depth int) ([]byte, error) {
	if len(values) > math.MaxUint16 {
		return nil, ErrPayloadTooLarge
	}
	buf = append(buf, byte(tagArray))
	buf = byteOrder.AppendUint16(buf, uint16(len(values)))
	var err error
	for _, v := range values {
		if buf, err = appendValue(buf, v, depth+1); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// reader はペイロード値を先頭から順に読み出します。
type reader struct {
	data []byte
	off  int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || len(r.data)-r.off < n {
		return nil, ErrShortBuffer
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint64(b), nil
}

func (r *reader) string() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) value(depth int) (any, error) {
	if depth > maxNesting {
		return nil, ErrNestingTooDeep
	}
	b, err := r.take(1)
	if err != nil {
		return nil, err
	}
	switch tag(b[0]) {
	case tagNil:
		return nil, nil
	case tagBool:
		v, err := r.take(1)
		if err != nil {
			return nil, err
		}
		return v[0] != 0, nil
	case tagByte:
		v, err := r.take(1)
		if err != nil {
			return nil, err
		}
		return v[0], nil
	case tagInt16:
		v, err := r.uint16()
		return int16(v), err
	case tagInt32:
		v, err := r.uint32()
		return int32(v), err
	case tagInt64:
		v, err := r.uint64()
		return int64(v), err
	case tagFloat32:
		v, err := r.uint32()
		return math.Float32frombits(v), err
	case tagFloat64:
		v, err := r.uint64()
		return math.Float64frombits(v), err
	case tagString:
		return r.string()
	case tagBytes:
		n, err := r.uint32()
		if err != nil {
			return nil, err
		}
		v, err := r.take(int(n))
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), v...), nil
	case tagInt32Slice:
		n, err := r.uint16()
		if err != nil {
			return nil, err
		}
		out := make([]int32, 0, n)
		for i := 0; i < int(n); i++ {
			v, err := r.uint32()
			if err != nil {
				return nil, err
			}
			out = append(out, int32(v))
		}
		return out, nil
	case tagStringSlice:
		n, err := r.uint16()
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, n)
		for i := 0; i < int(n); i++ {
			s, err := r.string()
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case tagArray:
		n, err := r.uint16()
		if err != nil {
			return nil, err
		}
		return r.values(int(n), depth+1)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, b[0])
	}
}

func (r *reader) values(n int, depth int) ([]any, error) {
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, err := r.value(depth)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
