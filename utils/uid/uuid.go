package uid

import (
	"encoding/base64"

	uuid "github.com/satori/go.uuid"
)

// NewId 는 세션 식별에 쓰는 짧은 URL-safe 아이디를 만든다.
func NewId() string {
	id := uuid.NewV4()
	b64 := base64.URLEncoding.EncodeToString(id.Bytes()[:12])
	return b64
}
