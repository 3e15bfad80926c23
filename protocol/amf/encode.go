package amf

import (
	"bytes"
	"math"

	"github.com/kokoavailable/flv2fmp4/utils/pio"
)

// Encode 는 값을 AMF0 로 직렬화해 buf 뒤에 붙인다.
func Encode(buf *bytes.Buffer, v Value) error {
	var scratch [8]byte

	switch val := v.(type) {
	case Number:
		buf.WriteByte(byte(NumberMarker))
		pio.PutU64BE(scratch[:], math.Float64bits(float64(val)))
		buf.Write(scratch[:8])
	case Boolean:
		buf.WriteByte(byte(BooleanMarker))
		if val {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case String:
		buf.WriteByte(byte(StringMarker))
		encodeUTF8(buf, string(val))
	case LongString:
		buf.WriteByte(byte(LongStringMarker))
		pio.PutU32BE(scratch[:], uint32(len(val)))
		buf.Write(scratch[:4])
		buf.WriteString(string(val))
	case Object:
		buf.WriteByte(byte(ObjectMarker))
		return encodeProperties(buf, val.Properties)
	case ECMAArray:
		buf.WriteByte(byte(ECMAArrayMarker))
		pio.PutU32BE(scratch[:], val.Length)
		buf.Write(scratch[:4])
		return encodeProperties(buf, val.Properties)
	case StrictArray:
		buf.WriteByte(byte(StrictArrayMarker))
		pio.PutU32BE(scratch[:], uint32(len(val)))
		buf.Write(scratch[:4])
		for _, item := range val {
			if err := Encode(buf, item); err != nil {
				return err
			}
		}
	case Date:
		buf.WriteByte(byte(DateMarker))
		pio.PutU64BE(scratch[:], math.Float64bits(val.Time))
		buf.Write(scratch[:8])
		pio.PutI16BE(scratch[:], val.Offset)
		buf.Write(scratch[:2])
	case Reference:
		buf.WriteByte(byte(ReferenceMarker))
		pio.PutU16BE(scratch[:], uint16(val))
		buf.Write(scratch[:2])
	case ObjectEnd:
		buf.WriteByte(byte(ObjectEndMarker))
	case Null:
		buf.WriteByte(byte(NullMarker))
	case Undefined:
		buf.WriteByte(byte(UndefinedMarker))
	default:
		return ErrUnsupportedValue
	}
	return nil
}

func encodeUTF8(buf *bytes.Buffer, s string) {
	var l [2]byte
	pio.PutU16BE(l[:], uint16(len(s)))
	buf.Write(l[:])
	buf.WriteString(s)
}

// 종료 쌍이 없으면 붙여준다.
func encodeProperties(buf *bytes.Buffer, ps Properties) error {
	terminated := false
	for _, p := range ps {
		encodeUTF8(buf, p.Key)
		if err := Encode(buf, p.Value); err != nil {
			return err
		}
		if _, ok := p.Value.(ObjectEnd); ok {
			terminated = true
			break
		}
	}
	if !terminated {
		encodeUTF8(buf, "")
		buf.WriteByte(byte(ObjectEndMarker))
	}
	return nil
}

// Script 는 이름과 값으로 스크립트 태그 본문을 만든다.
func Script(name string, v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, String(name)); err != nil {
		return nil, err
	}
	if err := Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MetaData 는 onMetaData 스크립트 태그 본문을 만든다.
func MetaData(ps Properties) ([]byte, error) {
	return Script("onMetaData", ECMAArray{Length: uint32(len(ps)), Properties: ps})
}
