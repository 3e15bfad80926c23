// Package api is the management HTTP interface: stream keys, session stats
// and prometheus metrics.
package api

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/kokoavailable/flv2fmp4/configure"
	"github.com/kokoavailable/flv2fmp4/protocol/httpfmp4"

	jwtmiddleware "github.com/auth0/go-jwt-middleware"
	"github.com/dgrijalva/jwt-go"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type Response struct {
	w      http.ResponseWriter
	Status int         `json:"status"`
	Data   interface{} `json:"data"`
}

func (r *Response) SendJson() (int, error) {
	resp, _ := json.Marshal(r)
	r.w.Header().Set("Content-Type", "application/json")
	r.w.WriteHeader(r.Status)
	return r.w.Write(resp)
}

// StatGetter 는 업로드 세션 상태를 제공한다.
type StatGetter interface {
	Streams() []httpfmp4.StreamStat
}

type Server struct {
	keys *configure.StreamKeysType
	stat StatGetter
	jwt  configure.JWT
}

func NewServer(keys *configure.StreamKeysType, stat StatGetter, jwt configure.JWT) *Server {
	return &Server{
		keys: keys,
		stat: stat,
		jwt:  jwt,
	}
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())

	control := router.NewRoute().Subrouter()
	if mw := s.JWTMiddleware(); mw != nil {
		control.Use(mw)
	}
	control.HandleFunc("/control/get", s.handleGet)
	control.HandleFunc("/control/reset", s.handleReset)
	control.HandleFunc("/control/delete", s.handleDelete)
	control.HandleFunc("/stat/streams", s.handleStat)
	return router
}

func (s *Server) Serve(l net.Listener) error {
	return http.Serve(l, s.Handler())
}

// JWTMiddleware 는 jwt.secret 이 있을 때만 토큰을 검사하는 미들웨어를 만든다. 없으면 nil.
// 토큰은 Authorization 헤더나 jwt 쿼리 파라미터로 받는다.
func (s *Server) JWTMiddleware() mux.MiddlewareFunc {
	if len(s.jwt.Secret) == 0 {
		return nil
	}

	log.Info("Using JWT middleware")

	var algorithm jwt.SigningMethod
	if len(s.jwt.Algorithm) > 0 {
		algorithm = jwt.GetSigningMethod(s.jwt.Algorithm)
	}
	if algorithm == nil {
		algorithm = jwt.SigningMethodHS256
	}

	jwtMiddleware := jwtmiddleware.New(jwtmiddleware.Options{
		Extractor: jwtmiddleware.FromFirst(jwtmiddleware.FromAuthHeader, jwtmiddleware.FromParameter("jwt")),
		ValidationKeyGetter: func(token *jwt.Token) (interface{}, error) {
			return []byte(s.jwt.Secret), nil
		},
		SigningMethod: algorithm,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err string) {
			res := &Response{
				w:      w,
				Status: http.StatusForbidden,
				Data:   err,
			}
			res.SendJson()
		},
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jwtMiddleware.HandlerWithNext(w, r, next.ServeHTTP)
		})
	}
}

func room(r *http.Request) string {
	if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.Form.Get("room")
}

// http://127.0.0.1:8090/control/get?room=ROOM_NAME
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	res := &Response{
		w:      w,
		Data:   nil,
		Status: http.StatusOK,
	}
	defer res.SendJson()

	name := room(r)
	if len(name) == 0 {
		res.Status = http.StatusBadRequest
		res.Data = "url: /control/get?room=<ROOM_NAME>"
		return
	}

	msg, err := s.keys.GetKey(name)
	if err != nil {
		msg = err.Error()
		res.Status = http.StatusBadRequest
	}
	res.Data = msg
}

// http://127.0.0.1:8090/control/reset?room=ROOM_NAME
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	res := &Response{
		w:      w,
		Data:   nil,
		Status: http.StatusOK,
	}
	defer res.SendJson()

	name := room(r)
	if len(name) == 0 {
		res.Status = http.StatusBadRequest
		res.Data = "url: /control/reset?room=<ROOM_NAME>"
		return
	}

	msg, err := s.keys.SetKey(name)
	if err != nil {
		msg = err.Error()
		res.Status = http.StatusBadRequest
	}
	res.Data = msg
}

// http://127.0.0.1:8090/control/delete?room=ROOM_NAME
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	res := &Response{
		w:      w,
		Data:   nil,
		Status: http.StatusOK,
	}
	defer res.SendJson()

	name := room(r)
	if len(name) == 0 {
		res.Status = http.StatusBadRequest
		res.Data = "url: /control/delete?room=<ROOM_NAME>"
		return
	}

	if s.keys.DeleteChannel(name) {
		res.Data = "Ok"
		return
	}
	res.Status = http.StatusNotFound
	res.Data = "room not found"
}

// http://127.0.0.1:8090/stat/streams
func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	res := &Response{
		w:      w,
		Data:   nil,
		Status: http.StatusOK,
	}
	defer res.SendJson()

	streams := s.stat.Streams()
	if streams == nil {
		streams = []httpfmp4.StreamStat{}
	}
	res.Data = streams
}
