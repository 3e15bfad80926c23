package av

import "errors"

// 에러 분류. 패키지별 센티널 에러는 이 중 하나를 감싸며, 호출자는 errors.Is 로 분기한다.
var (
	// 입력 바이트가 형식에 맞지 않는다.
	ErrMalformed = errors.New("malformed input")
	// 형식상 유효하지만 아직 구현되지 않은 기능이다. (암호화 태그 등)
	ErrNotSupported = errors.New("not supported")
	// 레코드를 끝까지 읽기에 바이트가 부족하다. 다음 청크를 기다리면 된다.
	ErrPending = errors.New("more data needed")
	// 메시지 순서 위반. 세션을 계속할 수 없다.
	ErrSequence = errors.New("sequence violation")
)
