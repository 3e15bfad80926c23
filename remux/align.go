package remux

const (
	syncms = 2 // ms
)

// 동기화의 허용 범위를 밀리초로 정의 한다. 두 타임 스탬프 간 차이가 syncms 이내면 성공으로 간주한다.
// FLV 의 밀리초 타임스탬프는 오디오 프레임 길이로 나누어 떨어지지 않으므로,
// 허용 범위 안이면 프레임 길이만큼 일정하게 증가하는 DTS 로 바꾼다.

type align struct {
	frameNum  uint64 // 현재 처리 중인 프레임 번호이다.
	frameBase uint64 // 기준이 되는 프레임의 시작 타임 스탬프이다. 동기화 실패시 새로 설정된다.
}

// dts 와 inc 는 트랙 타임스케일 단위, hz 는 밀리초당 틱 수.
func (a *align) align(dts *uint64, inc uint32, hz uint64) {
	aFrameDts := *dts
	estPts := a.frameBase + a.frameNum*uint64(inc) // 예상 DTS
	var dPts uint64

	if estPts >= aFrameDts {
		dPts = estPts - aFrameDts
	} else {
		dPts = aFrameDts - estPts
	}

	if dPts <= uint64(syncms)*hz { // 오차 범위 확인
		a.frameNum++
		*dts = estPts
		return
	}

	// 동기화 실패의 경우 현재 DTS 를 새 기준으로 잡는다.
	a.frameNum = 1
	a.frameBase = aFrameDts
}
