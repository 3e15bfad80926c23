package flv

import (
	"errors"
	"fmt"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/protocol/amf"
	"github.com/kokoavailable/flv2fmp4/utils/bitio"
	"github.com/kokoavailable/flv2fmp4/utils/pio"
	"github.com/kokoavailable/flv2fmp4/utils/pool"

	log "github.com/sirupsen/logrus"
)

var (
	ErrFrameSizeMismatch = fmt.Errorf("%w: previous tag size mismatch", av.ErrMalformed)
	ErrDataSizeMismatch  = fmt.Errorf("%w: tag data size mismatch", av.ErrMalformed)
	ErrInvalidTagType    = fmt.Errorf("%w: invalid tag type", av.ErrMalformed)
	ErrMalformedScript   = fmt.Errorf("%w: script data malformed", av.ErrMalformed)
	ErrHeaderNotDecoded  = fmt.Errorf("%w: flv header not decoded", av.ErrSequence)
	ErrTruncated         = fmt.Errorf("%w: flv stream truncated", av.ErrMalformed)
	// 레코드 하나를 다 읽기엔 바이트가 부족하다. 아무것도 소비하지 않았다.
	ErrIncomplete = fmt.Errorf("%w: incomplete flv tag", av.ErrPending)
)

const prevTagSizeLen = 4

// Decoder 는 밀어 넣은 바이트에서 FLV 헤더와 태그를 잘라낸다.
// 태그는 완전히 버퍼에 들어왔을 때만 소비되므로, 청크 단위로 Push 해도 된다.
type Decoder struct {
	q        *pio.Queue
	pool     *pool.Pool
	header   *Header
	skip     uint32 // 헤더 뒤 확장 영역에서 아직 건너뛰지 않은 바이트
	prevSize uint32 // 다음 previous tag size 로 기대하는 값. 처음엔 0.
}

func NewDecoder() *Decoder {
	return &Decoder{
		q:    pio.NewQueue(nil),
		pool: pool.NewPool(),
	}
}

func (d *Decoder) Push(b []byte) {
	d.q.Push(b)
}

// 버퍼에 남은 바이트 수
func (d *Decoder) Len() int {
	return d.q.Len()
}

func (d *Decoder) Header() *Header {
	return d.header
}

// DecodeHeader 는 정확히 9 바이트를 소비한다.
func (d *Decoder) DecodeHeader() (*Header, error) {
	b, err := d.q.Peek(HeaderLen)
	if err != nil {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedHeader, HeaderLen, d.q.Len())
	}
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	d.q.Skip(HeaderLen)
	d.header = h
	d.skip = h.DataOffset - HeaderLen
	return h, nil
}

// DecodeTag 는 태그 헤더 11 바이트와 본문을 읽는다. previous tag size 는 읽지 않는다.
func (d *Decoder) DecodeTag() (*Tag, error) {
	hdr, err := d.q.Peek(TagHeaderLen)
	if err != nil {
		return nil, ErrIncomplete
	}
	dataSize := pio.U24BE(hdr[1:4])
	if d.q.Len() < TagHeaderLen+int(dataSize) {
		return nil, ErrIncomplete
	}

	flags := bitio.Byte(hdr[0])
	tag := &Tag{
		Filter:            flags.Bit(5),
		Type:              TagType(flags.Range(0, 4)),
		DataSize:          dataSize,
		TimestampBase:     pio.U24BE(hdr[4:7]),
		TimestampExtended: hdr[7],
		StreamID:          pio.U24BE(hdr[8:11]),
	}
	tag.Timestamp = ConcatTimestamp(tag.TimestampBase, tag.TimestampExtended)

	switch tag.Type {
	case TagAudio, TagVideo, TagScript:
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidTagType, uint8(tag.Type))
	}
	if tag.StreamID != 0 {
		log.Debugf("flv tag with stream id %d, ignored", tag.StreamID)
	}

	d.q.Skip(TagHeaderLen)
	data := d.pool.Get(int(dataSize))
	if err := d.q.Read(data); err != nil {
		return nil, err
	}
	if err := tag.parseData(data); err != nil {
		return nil, err
	}
	return tag, nil
}

// DecodeBody 는 버퍼에 완전히 들어온 태그를 모두 꺼낸다.
// 남은 바이트가 레코드 하나에 못 미치면 에러 없이 멈춘다.
func (d *Decoder) DecodeBody() ([]*Tag, error) {
	if d.header == nil {
		return nil, ErrHeaderNotDecoded
	}
	if d.skip > 0 {
		n := d.skip
		if int(n) > d.q.Len() {
			n = uint32(d.q.Len())
		}
		d.q.Skip(int(n))
		d.skip -= n
		if d.skip > 0 {
			return nil, nil
		}
	}

	var tags []*Tag
	for {
		start := d.q.Consumed()
		tag, err := d.decodeRecord()
		if errors.Is(err, ErrIncomplete) {
			return tags, nil
		}
		if err != nil {
			return tags, fmt.Errorf("%w (record at byte %d)", err, start)
		}
		tags = append(tags, tag)
	}
}

// previous tag size + 태그 하나.
func (d *Decoder) decodeRecord() (*Tag, error) {
	b, err := d.q.Peek(prevTagSizeLen + TagHeaderLen)
	if err != nil {
		return nil, ErrIncomplete
	}
	if prev := pio.U32BE(b); prev != d.prevSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFrameSizeMismatch, prev, d.prevSize)
	}
	dataSize := pio.U24BE(b[prevTagSizeLen+1 : prevTagSizeLen+4])
	if d.q.Len() < prevTagSizeLen+TagHeaderLen+int(dataSize) {
		return nil, ErrIncomplete
	}

	d.q.Skip(prevTagSizeLen)
	tag, err := d.DecodeTag()
	if err != nil {
		return nil, err
	}
	d.prevSize = tag.DataSize + TagHeaderLen
	return tag, nil
}

// Finish 는 입력이 끝났을 때 남은 바이트를 검사한다.
// 마지막 previous tag size 4 바이트만 남아 있어야 정상이다.
func (d *Decoder) Finish() error {
	if d.header == nil {
		if d.q.Len() == 0 {
			return nil
		}
		return ErrTruncated
	}
	if d.skip > 0 {
		return ErrTruncated
	}
	switch d.q.Len() {
	case 0:
		return nil
	case prevTagSizeLen:
		b, _ := d.q.Peek(prevTagSizeLen)
		if prev := pio.U32BE(b); prev != d.prevSize {
			return fmt.Errorf("%w: got %d, want %d", ErrFrameSizeMismatch, prev, d.prevSize)
		}
		d.q.Skip(prevTagSizeLen)
		return nil
	}
	return fmt.Errorf("%w: %d bytes left", ErrTruncated, d.q.Len())
}

func (tag *Tag) parseData(data []byte) error {
	if tag.Filter {
		// 암호화 헤더와 필터 파라미터는 자리만 잡아둔다. 본문은 원본 그대로 보관한다.
		tag.Encryption = &EncryptionTagHeader{}
		tag.FilterParams = &FilterParameters{}
		tag.Header = tag.Encryption
		tag.Body = &EncryptedBody{Data: data}
		return nil
	}

	switch tag.Type {
	case TagAudio:
		h := &AudioTagHeader{}
		n, err := h.parse(data)
		if err != nil {
			return err
		}
		tag.Header = h
		tag.Body = &AudioBody{Data: data[n:]}
	case TagVideo:
		h := &VideoTagHeader{}
		n, err := h.parse(data)
		if err != nil {
			return err
		}
		tag.Header = h
		tag.Body = &VideoBody{Data: data[n:]}
	case TagScript:
		body, err := parseScript(data)
		if err != nil {
			return err
		}
		tag.Header = ScriptTagHeader{}
		tag.Body = body
	}

	if n := tag.Header.headerLen() + len(tag.Data()); tag.Type != TagScript && uint32(n) != tag.DataSize {
		return fmt.Errorf("%w: header+body %d, data size %d", ErrDataSizeMismatch, n, tag.DataSize)
	}
	return nil
}

// 스크립트 태그 본문. 이름(String) 뒤에 값 하나.
// 태그 안에서 값 뒤에 남는 바이트(ECMA 배열 종료 마커 등)는 버린다.
func parseScript(data []byte) (*ScriptBody, error) {
	q := pio.NewQueue(data)

	name, err := decodeScriptValue(q)
	if err != nil {
		return nil, err
	}
	s, ok := name.(amf.String)
	if !ok {
		return nil, fmt.Errorf("%w: script name marker %d", ErrMalformedScript, name.Marker())
	}
	value, err := decodeScriptValue(q)
	if err != nil {
		return nil, err
	}

	// @setDataFrame 로 감싼 메타데이터는 한 번 더 벗긴다.
	if string(s) == "@setDataFrame" {
		if inner, ok := value.(amf.String); ok {
			s = inner
			if value, err = decodeScriptValue(q); err != nil {
				return nil, err
			}
		}
	}

	if q.Len() > 0 {
		log.Debugf("script tag %q: %d trailing bytes skipped", s, q.Len())
	}
	return &ScriptBody{Name: string(s), Value: value}, nil
}

func decodeScriptValue(q *pio.Queue) (amf.Value, error) {
	v, err := amf.Decode(q)
	if errors.Is(err, av.ErrPending) {
		// 본문 길이는 이미 확정돼 있으므로 모자란 것은 형식 오류이다.
		return nil, ErrMalformedScript
	}
	return v, err
}
