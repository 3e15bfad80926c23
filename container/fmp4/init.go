package fmp4

import (
	"fmt"
	"io"

	"github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
)

// mvhd 의 타임스케일. 밀리초.
const movieTimescale = 1000

var defaultBrands = [][4]byte{
	{'i', 's', 'o', 'm'},
	{'i', 's', 'o', '2'},
	{'a', 'v', 'c', '1'},
	{'m', 'p', '4', '1'},
}

// Init 은 초기화 세그먼트 (ftyp + moov) 이다.
type Init struct {
	MajorBrand       [4]byte
	MinorVersion     uint32
	CompatibleBrands [][4]byte // 비어 있으면 기본값
	Duration         uint64    // 밀리초, 모르면 0
	Tracks           []*InitTrack
}

// Marshal 은 초기화 세그먼트를 쓴다.
func (i *Init) Marshal(w io.WriteSeeker) error {
	if len(i.Tracks) == 0 {
		return fmt.Errorf("no tracks")
	}

	mw := newMP4Writer(w)

	majorBrand := i.MajorBrand
	if majorBrand == [4]byte{} {
		majorBrand = [4]byte{'i', 's', 'o', 'm'}
	}
	brands := i.CompatibleBrands
	if len(brands) == 0 {
		brands = defaultBrands
	}
	compatible := make([]mp4.CompatibleBrandElem, len(brands))
	for j, b := range brands {
		compatible[j] = mp4.CompatibleBrandElem{CompatibleBrand: b}
	}

	_, err := mw.writeBox(&mp4.Ftyp{ // <ftyp/>
		MajorBrand:       majorBrand,
		MinorVersion:     i.MinorVersion,
		CompatibleBrands: compatible,
	})
	if err != nil {
		return err
	}

	_, err = mw.writeBoxStart(&mp4.Moov{}) // <moov>
	if err != nil {
		return err
	}

	_, err = mw.writeBox(&mp4.Mvhd{ // <mvhd/>
		Timescale:   movieTimescale,
		DurationV0:  uint32(i.Duration),
		Rate:        65536,
		Volume:      256,
		Matrix:      [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
		NextTrackID: i.nextTrackID(),
	})
	if err != nil {
		return err
	}

	for _, track := range i.Tracks {
		err = track.marshal(mw)
		if err != nil {
			return err
		}
	}

	_, err = mw.writeBoxStart(&mp4.Mvex{}) // <mvex>
	if err != nil {
		return err
	}

	for _, track := range i.Tracks {
		_, err = mw.writeBox(&mp4.Trex{ // <trex/>
			TrackID:                       uint32(track.ID),
			DefaultSampleDescriptionIndex: 1,
		})
		if err != nil {
			return err
		}
	}

	err = mw.writeBoxEnd() // </mvex>
	if err != nil {
		return err
	}

	return mw.writeBoxEnd() // </moov>
}

// Bytes 는 Marshal 결과를 바이트로 돌려준다.
func (i *Init) Bytes() ([]byte, error) {
	var buf seekablebuffer.Buffer
	if err := i.Marshal(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// nextTrackID 는 쓰고 있는 가장 큰 트랙 ID 다음 값이다. 트랙 ID 는 고정이라 개수와 다를 수 있다.
func (i *Init) nextTrackID() uint32 {
	var max int
	for _, track := range i.Tracks {
		if track.ID > max {
			max = track.ID
		}
	}
	return uint32(max + 1)
}
