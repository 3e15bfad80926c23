// Package amf decodes and encodes the AMF0 values carried in FLV script data tags.
package amf

import (
	"fmt"

	"github.com/kokoavailable/flv2fmp4/av"
)

type Marker uint8

const (
	NumberMarker      Marker = 0x00
	BooleanMarker     Marker = 0x01
	StringMarker      Marker = 0x02
	ObjectMarker      Marker = 0x03
	MovieClipMarker   Marker = 0x04
	NullMarker        Marker = 0x05
	UndefinedMarker   Marker = 0x06
	ReferenceMarker   Marker = 0x07
	ECMAArrayMarker   Marker = 0x08
	ObjectEndMarker   Marker = 0x09
	StrictArrayMarker Marker = 0x0a
	DateMarker        Marker = 0x0b
	LongStringMarker  Marker = 0x0c
)

var (
	ErrInvalidTypeMarker = fmt.Errorf("%w: amf0 invalid type marker", av.ErrMalformed)
	ErrInvalidString     = fmt.Errorf("%w: amf0 string is not utf-8", av.ErrMalformed)
	ErrTooDeep           = fmt.Errorf("%w: amf0 nesting too deep", av.ErrMalformed)
	ErrUnsupportedValue  = fmt.Errorf("%w: amf0 value can not be encoded", av.ErrNotSupported)
)

// Value 는 AMF0 값 하나이다. 구체 타입으로 type switch 해서 쓴다.
type Value interface {
	Marker() Marker
}

type Number float64

type Boolean bool

type String string

type LongString string

// Object 는 key/value 쌍의 순서를 보존한다. 종료 마커를 만나면 그 쌍도 마지막에 들어간다.
type Object struct {
	Properties
}

// ECMAArray 는 선언된 개수(Length)와 실제 쌍을 함께 가진다.
type ECMAArray struct {
	Length uint32
	Properties
}

type StrictArray []Value

type Date struct {
	Time   float64 // unix epoch ms
	Offset int16   // timezone, 보통 0
}

type Reference uint16

type ObjectEnd struct{}

type Null struct{}

type Undefined struct{}

// NotImplemented 는 해석하지 않는 마커이다. 마커 바이트만 소비된다.
type NotImplemented struct {
	Type Marker
}

func (Number) Marker() Marker           { return NumberMarker }
func (Boolean) Marker() Marker          { return BooleanMarker }
func (String) Marker() Marker           { return StringMarker }
func (LongString) Marker() Marker       { return LongStringMarker }
func (Object) Marker() Marker           { return ObjectMarker }
func (ECMAArray) Marker() Marker        { return ECMAArrayMarker }
func (StrictArray) Marker() Marker      { return StrictArrayMarker }
func (Date) Marker() Marker             { return DateMarker }
func (Reference) Marker() Marker        { return ReferenceMarker }
func (ObjectEnd) Marker() Marker        { return ObjectEndMarker }
func (Null) Marker() Marker             { return NullMarker }
func (Undefined) Marker() Marker        { return UndefinedMarker }
func (v NotImplemented) Marker() Marker { return v.Type }

type Property struct {
	Key   string
	Value Value
}

type Properties []Property

// Get 은 key 에 해당하는 첫 값을 찾는다.
func (ps Properties) Get(key string) (Value, bool) {
	for _, p := range ps {
		if p.Key == key {
			if _, end := p.Value.(ObjectEnd); end {
				continue
			}
			return p.Value, true
		}
	}
	return nil, false
}

func (ps Properties) Number(key string) (float64, bool) {
	v, ok := ps.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(Number)
	return float64(n), ok
}

// String 은 String 과 LongString 을 모두 받는다.
func (ps Properties) String(key string) (string, bool) {
	v, ok := ps.Get(key)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case String:
		return string(s), true
	case LongString:
		return string(s), true
	}
	return "", false
}

func (ps Properties) Bool(key string) (bool, bool) {
	v, ok := ps.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(Boolean)
	return bool(b), ok
}

// PropertiesOf 는 Object 나 ECMAArray 의 쌍을 꺼낸다. 그 외 값이면 false.
func PropertiesOf(v Value) (Properties, bool) {
	switch o := v.(type) {
	case Object:
		return o.Properties, true
	case ECMAArray:
		return o.Properties, true
	}
	return nil, false
}
