package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kokoavailable/flv2fmp4/configure"
	"github.com/kokoavailable/flv2fmp4/protocol/httpfmp4"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/require"
)

type fakeStat []httpfmp4.StreamStat

func (f fakeStat) Streams() []httpfmp4.StreamStat { return f }

type result struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func do(t *testing.T, h http.Handler, target string, header map[string]string) (int, result) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var res result
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	}
	return rec.Code, res
}

func TestControl(t *testing.T) {
	keys := configure.NewLocalStreamKeys()
	h := NewServer(keys, fakeStat{{Channel: "room", Viewers: 2}}, configure.JWT{}).Handler()

	code, _ := do(t, h, "/control/get", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, res := do(t, h, "/control/get?room=room", nil)
	require.Equal(t, http.StatusOK, code)
	var key string
	require.NoError(t, json.Unmarshal(res.Data, &key))
	channel, err := keys.GetChannel(key)
	require.NoError(t, err)
	require.Equal(t, "room", channel)

	code, res = do(t, h, "/control/reset?room=room", nil)
	require.Equal(t, http.StatusOK, code)
	var reset string
	require.NoError(t, json.Unmarshal(res.Data, &reset))
	require.NotEqual(t, key, reset)

	code, _ = do(t, h, "/control/delete?room=room", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, h, "/control/delete?room=room", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, res = do(t, h, "/stat/streams", nil)
	require.Equal(t, http.StatusOK, code)
	var streams []httpfmp4.StreamStat
	require.NoError(t, json.Unmarshal(res.Data, &streams))
	require.Equal(t, []httpfmp4.StreamStat{{Channel: "room", Viewers: 2}}, streams)
}

func TestJWT(t *testing.T) {
	h := NewServer(configure.NewLocalStreamKeys(), fakeStat{}, configure.JWT{Secret: "secret", Algorithm: "HS256"}).Handler()

	code, _ := do(t, h, "/control/get?room=room", nil)
	require.Equal(t, http.StatusForbidden, code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	code, _ = do(t, h, "/control/get?room=room", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, h, "/stat/streams?jwt="+token, nil)
	require.Equal(t, http.StatusOK, code)

	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin"}).SignedString([]byte("other"))
	require.NoError(t, err)
	code, _ = do(t, h, "/control/get?room=room", map[string]string{"Authorization": "Bearer " + bad})
	require.Equal(t, http.StatusForbidden, code)

	// 메트릭은 토큰 없이 열린다.
	code, _ = do(t, h, "/metrics", nil)
	require.Equal(t, http.StatusOK, code)
}
