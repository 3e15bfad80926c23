package amf

import (
	"unicode/utf8"

	"github.com/kokoavailable/flv2fmp4/utils/pio"
)

const maxDepth = 64

// Decode 는 큐 앞에서 AMF0 값 하나를 읽는다.
// 마커를 먼저 엿본 뒤 해당 파서에 넘기고, 각 파서는 자기 마커를 다시 확인하며 소비한다.
func Decode(q *pio.Queue) (Value, error) {
	return decodeValue(q, 0)
}

func decodeValue(q *pio.Queue, depth int) (Value, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	b, err := q.Peek(1)
	if err != nil {
		return nil, err
	}

	switch Marker(b[0]) {
	case NumberMarker:
		return decodeNumber(q)
	case BooleanMarker:
		return decodeBoolean(q)
	case StringMarker:
		return decodeString(q)
	case LongStringMarker:
		return decodeLongString(q)
	case ObjectMarker:
		return decodeObject(q, depth)
	case ECMAArrayMarker:
		return decodeECMAArray(q, depth)
	case StrictArrayMarker:
		return decodeStrictArray(q, depth)
	case DateMarker:
		return decodeDate(q)
	case ReferenceMarker:
		return decodeReference(q)
	case ObjectEndMarker:
		q.Skip(1)
		return ObjectEnd{}, nil
	case NullMarker:
		q.Skip(1)
		return Null{}, nil
	case UndefinedMarker:
		q.Skip(1)
		return Undefined{}, nil
	default:
		// 모르는 마커는 실패시키지 않고 마커만 소비한다.
		q.Skip(1)
		return NotImplemented{Type: Marker(b[0])}, nil
	}
}

func expectMarker(q *pio.Queue, m Marker) error {
	b, err := q.U8()
	if err != nil {
		return err
	}
	if Marker(b) != m {
		return ErrInvalidTypeMarker
	}
	return nil
}

func decodeNumber(q *pio.Queue) (Value, error) {
	if err := expectMarker(q, NumberMarker); err != nil {
		return nil, err
	}
	f, err := q.F64BE()
	if err != nil {
		return nil, err
	}
	return Number(f), nil
}

func decodeBoolean(q *pio.Queue) (Value, error) {
	if err := expectMarker(q, BooleanMarker); err != nil {
		return nil, err
	}
	b, err := q.U8()
	if err != nil {
		return nil, err
	}
	return Boolean(b != 0), nil
}

// 마커 없는 UTF-8 문자열. 오브젝트 키가 이 형식이다.
func decodeUTF8(q *pio.Queue) (string, error) {
	n, err := q.U16BE()
	if err != nil {
		return "", err
	}
	return readUTF8(q, int(n))
}

func readUTF8(q *pio.Queue, n int) (string, error) {
	b, err := q.Bytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidString
	}
	return string(b), nil
}

func decodeString(q *pio.Queue) (Value, error) {
	if err := expectMarker(q, StringMarker); err != nil {
		return nil, err
	}
	s, err := decodeUTF8(q)
	if err != nil {
		return nil, err
	}
	return String(s), nil
}

func decodeLongString(q *pio.Queue) (Value, error) {
	if err := expectMarker(q, LongStringMarker); err != nil {
		return nil, err
	}
	n, err := q.U32BE()
	if err != nil {
		return nil, err
	}
	s, err := readUTF8(q, int(n))
	if err != nil {
		return nil, err
	}
	return LongString(s), nil
}

// key/value 쌍 하나. 값이 종료 마커이면 end 가 true.
func decodeProperty(q *pio.Queue, depth int) (p Property, end bool, err error) {
	if p.Key, err = decodeUTF8(q); err != nil {
		return
	}
	if p.Value, err = decodeValue(q, depth+1); err != nil {
		return
	}
	_, end = p.Value.(ObjectEnd)
	return
}

func decodeObject(q *pio.Queue, depth int) (Value, error) {
	if err := expectMarker(q, ObjectMarker); err != nil {
		return nil, err
	}
	var obj Object
	for {
		p, end, err := decodeProperty(q, depth)
		if err != nil {
			return nil, err
		}
		obj.Properties = append(obj.Properties, p)
		if end {
			return obj, nil
		}
	}
}

// 선언된 개수와 종료 마커 중 먼저 오는 쪽에서 멈춘다.
func decodeECMAArray(q *pio.Queue, depth int) (Value, error) {
	if err := expectMarker(q, ECMAArrayMarker); err != nil {
		return nil, err
	}
	n, err := q.U32BE()
	if err != nil {
		return nil, err
	}
	arr := ECMAArray{Length: n}
	for i := uint32(0); i < n; i++ {
		p, end, err := decodeProperty(q, depth)
		if err != nil {
			return nil, err
		}
		arr.Properties = append(arr.Properties, p)
		if end {
			return arr, nil
		}
	}
	return arr, nil
}

func decodeStrictArray(q *pio.Queue, depth int) (Value, error) {
	if err := expectMarker(q, StrictArrayMarker); err != nil {
		return nil, err
	}
	n, err := q.U32BE()
	if err != nil {
		return nil, err
	}
	var arr StrictArray
	for i := uint32(0); i < n; i++ {
		v, err := decodeValue(q, depth+1)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	return arr, nil
}

func decodeDate(q *pio.Queue) (Value, error) {
	if err := expectMarker(q, DateMarker); err != nil {
		return nil, err
	}
	t, err := q.F64BE()
	if err != nil {
		return nil, err
	}
	off, err := q.I16BE()
	if err != nil {
		return nil, err
	}
	return Date{Time: t, Offset: off}, nil
}

func decodeReference(q *pio.Queue) (Value, error) {
	if err := expectMarker(q, ReferenceMarker); err != nil {
		return nil, err
	}
	idx, err := q.U16BE()
	if err != nil {
		return nil, err
	}
	return Reference(idx), nil
}
