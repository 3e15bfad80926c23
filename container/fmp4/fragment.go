package fmp4

import (
	"io"

	"github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
)

const (
	trunFlagDataOffsetPreset                       = 0x01
	trunFlagSampleDurationPresent                  = 0x100
	trunFlagSampleSizePresent                      = 0x200
	trunFlagSampleFlagsPresent                     = 0x400
	trunFlagSampleCompositionTimeOffsetPresentOrV1 = 0x800
)

// SampleFlags 는 trun 의 sample_flags 필드이다. (ISO 14496-12 8.8.3.1)
type SampleFlags struct {
	IsLeading     uint8 // 2 bits
	DependsOn     uint8 // 2 bits. 1 다른 샘플 참조, 2 독립
	IsDependedOn  uint8 // 2 bits
	HasRedundancy uint8 // 2 bits
	IsNonSync     bool
}

// Encode 는 32 비트 값으로 만든다.
func (f SampleFlags) Encode() uint32 {
	v := uint32(f.IsLeading&0x3)<<26 |
		uint32(f.DependsOn&0x3)<<24 |
		uint32(f.IsDependedOn&0x3)<<22 |
		uint32(f.HasRedundancy&0x3)<<20
	if f.IsNonSync {
		v |= 1 << 16
	}
	return v
}

// Sample 은 mdat 에 들어갈 샘플 하나이다.
type Sample struct {
	Duration  uint32
	PTSOffset int32
	Flags     SampleFlags
	Payload   []byte
}

// Fragment 는 트랙 하나의 moof + mdat 이다.
type Fragment struct {
	SequenceNumber uint32
	TrackID        int
	BaseTime       uint64 // 트랙 타임스케일 단위의 첫 샘플 디코드 시간
	Samples        []*Sample
}

// Marshal 은 moof 와 mdat 을 쓴다.
func (f *Fragment) Marshal(w io.WriteSeeker) error {
	/*
		|moof|
		|    |mfhd|
		|    |traf|
		|    |    |tfhd|
		|    |    |tfdt|
		|    |    |trun|
		|mdat|
	*/

	mw := newMP4Writer(w)

	moofOffset, err := mw.writeBoxStart(&mp4.Moof{}) // <moof>
	if err != nil {
		return err
	}

	_, err = mw.writeBox(&mp4.Mfhd{ // <mfhd/>
		SequenceNumber: f.SequenceNumber,
	})
	if err != nil {
		return err
	}

	_, err = mw.writeBoxStart(&mp4.Traf{}) // <traf>
	if err != nil {
		return err
	}

	_, err = mw.writeBox(&mp4.Tfhd{ // <tfhd/>
		FullBox: mp4.FullBox{
			Flags: [3]byte{2, 0, 0}, // default-base-is-moof
		},
		TrackID: uint32(f.TrackID),
	})
	if err != nil {
		return err
	}

	_, err = mw.writeBox(&mp4.Tfdt{ // <tfdt/>
		FullBox: mp4.FullBox{
			Version: 1,
		},
		BaseMediaDecodeTimeV1: f.BaseTime,
	})
	if err != nil {
		return err
	}

	flags := trunFlagDataOffsetPreset |
		trunFlagSampleDurationPresent |
		trunFlagSampleSizePresent |
		trunFlagSampleFlagsPresent |
		trunFlagSampleCompositionTimeOffsetPresentOrV1

	trun := &mp4.Trun{ // <trun/>
		FullBox: mp4.FullBox{
			Version: 1,
			Flags:   [3]byte{0, byte(flags >> 8), byte(flags)},
		},
		SampleCount: uint32(len(f.Samples)),
	}

	dataSize := 0
	for _, sa := range f.Samples {
		trun.Entries = append(trun.Entries, mp4.TrunEntry{
			SampleDuration:                sa.Duration,
			SampleSize:                    uint32(len(sa.Payload)),
			SampleFlags:                   sa.Flags.Encode(),
			SampleCompositionTimeOffsetV1: sa.PTSOffset,
		})
		dataSize += len(sa.Payload)
	}

	trunOffset, err := mw.writeBox(trun)
	if err != nil {
		return err
	}

	err = mw.writeBoxEnd() // </traf>
	if err != nil {
		return err
	}

	err = mw.writeBoxEnd() // </moof>
	if err != nil {
		return err
	}

	moofEndOffset, err := mw.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	// mdat 헤더 8 바이트 뒤가 첫 샘플이다.
	trun.DataOffset = int32(moofEndOffset - int64(moofOffset) + 8)
	err = mw.rewriteBox(trunOffset, trun)
	if err != nil {
		return err
	}

	mdat := &mp4.Mdat{} // <mdat/>
	mdat.Data = make([]byte, 0, dataSize)
	for _, sa := range f.Samples {
		mdat.Data = append(mdat.Data, sa.Payload...)
	}

	_, err = mw.writeBox(mdat)
	return err
}

// Bytes 는 Marshal 결과를 바이트로 돌려준다.
func (f *Fragment) Bytes() ([]byte, error) {
	var buf seekablebuffer.Buffer
	if err := f.Marshal(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
