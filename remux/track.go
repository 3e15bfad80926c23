package remux

import (
	"github.com/kokoavailable/flv2fmp4/container/fmp4"
)

// 비디오 트랙 타임스케일. FLV 밀리초 타임스탬프에 90 을 곱한다.
const videoTimescale = 90000

// TrackContext 는 트랙 하나의 조각 헤더 상태이다. 샘플을 낼 때마다 바뀐다.
type TrackContext struct {
	ID             int
	TimeScale      uint32
	Codec          fmp4.Codec
	SequenceNumber uint32 // 다음 mfhd 에 쓸 값
	SampleDuration uint32 // 타임스케일 단위 기본 샘플 길이

	keyframeSeen bool
	align        align
}

func newTrackContext(id int, timescale uint32, codec fmp4.Codec, duration uint32) *TrackContext {
	return &TrackContext{
		ID:             id,
		TimeScale:      timescale,
		Codec:          codec,
		SequenceNumber: 1,
		SampleDuration: duration,
	}
}

// toTimescale 은 밀리초를 트랙 타임스케일로 바꾼다.
func (t *TrackContext) toTimescale(ms uint32) uint64 {
	return uint64(ms) * uint64(t.TimeScale) / timeScale
}

// SampleContext 는 샘플 하나를 만들 때마다 새로 만든다.
type SampleContext struct {
	DecodeTime        uint64 // 트랙 타임스케일 단위
	Size              uint32
	Duration          uint32
	CompositionOffset int32
	IsKeyframe        bool

	IsLeading     uint8
	DependsOn     uint8
	IsDependedOn  uint8
	HasRedundancy uint8
	IsNonSync     bool

	Data []byte
}

func (s *SampleContext) flags() fmp4.SampleFlags {
	return fmp4.SampleFlags{
		IsLeading:     s.IsLeading,
		DependsOn:     s.DependsOn,
		IsDependedOn:  s.IsDependedOn,
		HasRedundancy: s.HasRedundancy,
		IsNonSync:     s.IsNonSync,
	}
}
