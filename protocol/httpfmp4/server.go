// Package httpfmp4 serves FLV ingest over HTTP POST and fMP4 playback over HTTP GET.
package httpfmp4

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/configure"
	"github.com/kokoavailable/flv2fmp4/pipeline"
	"github.com/kokoavailable/flv2fmp4/utils/uid"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoPublisher  = fmt.Errorf("no publisher")
	ErrPublishing   = fmt.Errorf("channel already publishing")
	ErrInvalidKey   = fmt.Errorf("invalid stream key")
	checkStopPeriod = 5 * time.Second
)

// crossdomain.xml 파일의 내용을 미리 정의한 바이트 배열이다.
var crossdomainxml = []byte(`<?xml version="1.0" ?>
<cross-domain-policy>
	<allow-access-from domain="*" />
	<allow-http-request-headers-from domain="*" headers="*"/>
</cross-domain-policy>`)

type Config struct {
	Pipeline  pipeline.Config
	ChunkSize int           // 업로드 본문을 읽는 단위
	Timeout   time.Duration // 활동이 없는 세션을 정리하기까지의 시간

	// FLVArchive 가 켜져 있으면 업로드를 FLVDir/CHANNEL_TIME.flv 로 보관한다.
	FLVArchive bool
	FLVDir     string
}

// 업로드 세션과 재생 연결을 관리하는 서버.
type Server struct {
	listener net.Listener
	conns    *sync.Map // 채널 이름 -> *Source
	keys     *configure.StreamKeysType
	cfg      Config
	done     chan struct{}
	once     sync.Once
}

func NewServer(cfg Config, keys *configure.StreamKeysType) *Server {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 64 * 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	ret := &Server{
		conns: &sync.Map{},
		keys:  keys,
		cfg:   cfg,
		done:  make(chan struct{}),
	}
	go ret.checkStop()
	return ret
}

// Handler 는 라우팅이 끝난 핸들러. 테스트에서도 쓴다.
func (server *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/crossdomain.xml", server.handleCrossdomain)
	router.HandleFunc("/live/{channel}.mp4", server.handlePlay).Methods(http.MethodGet)
	router.HandleFunc("/live/{key}", server.handlePublish).Methods(http.MethodPost, http.MethodPut)
	return router
}

func (server *Server) Serve(listener net.Listener) error {
	server.listener = listener
	return http.Serve(listener, server.Handler())
}

// Close 는 정리 루프를 멈추고 모든 세션을 닫는다.
func (server *Server) Close() {
	server.once.Do(func() {
		close(server.done)
		server.conns.Range(func(key, val interface{}) bool {
			val.(*Source).Close()
			server.conns.Delete(key)
			return true
		})
	})
}

func (server *Server) getConn(channel string) *Source {
	v, ok := server.conns.Load(channel)
	if !ok {
		return nil
	}
	return v.(*Source)
}

func (server *Server) checkStop() {
	for {
		select {
		case <-time.After(checkStopPeriod):
		case <-server.done:
			return
		}

		server.conns.Range(func(key, val interface{}) bool {
			v := val.(av.Alive)
			if !v.Alive() {
				s := val.(*Source)
				log.Debug("check stop and remove: ", s.Info())
				server.conns.Delete(key)
				go s.Close()
			}
			return true
		})
	}
}

// StreamStat 은 업로드 중인 세션 하나의 상태.
type StreamStat struct {
	Channel string `json:"channel"`
	UID     string `json:"uid"`
	URL     string `json:"url"`
	BytesIn uint64 `json:"bytes_in"`
	Viewers int    `json:"viewers"`
	Cached  int    `json:"cached_fragments"`
}

// Streams 는 채널 이름 순으로 정렬된 세션 상태.
func (server *Server) Streams() []StreamStat {
	var ret []StreamStat
	server.conns.Range(func(key, val interface{}) bool {
		s := val.(*Source)
		ret = append(ret, StreamStat{
			Channel: key.(string),
			UID:     s.info.UID,
			URL:     s.info.URL,
			BytesIn: s.Bytes(),
			Viewers: s.Viewers(),
			Cached:  s.cache.Len(),
		})
		return true
	})
	sort.Slice(ret, func(i, j int) bool { return ret[i].Channel < ret[j].Channel })
	return ret
}

func (server *Server) handleCrossdomain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml")
	w.Write(crossdomainxml)
}

// 업로드: POST /live/{key}. 본문이 끝나고 마지막 세그먼트가 나갈 때까지 응답하지 않는다.
func (server *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	channel, err := server.keys.GetChannel(key)
	if err != nil {
		log.Debugf("publish with %s: %v", key, err)
		http.Error(w, ErrInvalidKey.Error(), http.StatusForbidden)
		return
	}

	info := av.Info{Key: channel, URL: r.URL.String(), UID: uid.NewId()}
	if server.getConn(channel) != nil {
		http.Error(w, ErrPublishing.Error(), http.StatusConflict)
		return
	}
	pcfg := server.cfg.Pipeline
	var archive *os.File
	if server.cfg.FLVArchive {
		archive, err = server.openArchive(channel)
		if err != nil {
			// 보관 실패로 업로드를 막지는 않는다.
			log.Error("flv archive: ", err)
		} else {
			defer archive.Close()
			pcfg.Record = archive
		}
	}
	s, err := NewSource(info, pcfg, server.cfg.Timeout)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, loaded := server.conns.LoadOrStore(channel, s); loaded {
		s.Close()
		if archive != nil {
			os.Remove(archive.Name())
		}
		http.Error(w, ErrPublishing.Error(), http.StatusConflict)
		return
	}
	log.Infof("[%v] publish start", info)
	defer func() {
		server.conns.Delete(channel)
		s.Close()
		log.Infof("[%v] publish end, %d bytes", info, s.Bytes())
	}()

	if err := s.Ingest(r.Body, server.cfg.ChunkSize); err != nil {
		log.Warningf("[%v] ingest: %v", info, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	select {
	case <-s.Done():
	case <-r.Context().Done():
		return
	}
	if err := s.Err(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// digital video recorder. 타임스탬프를 붙여 같은 채널의 이전 파일을 덮어쓰지 않는다.
func (server *Server) openArchive(channel string) (*os.File, error) {
	fileName := fmt.Sprintf("%s_%d.flv", path.Join(server.cfg.FLVDir, channel), time.Now().Unix())
	if err := os.MkdirAll(path.Dir(fileName), 0755); err != nil {
		return nil, err
	}
	log.Debug("flv dvr save stream to: ", fileName)
	return os.OpenFile(fileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}

// 재생: GET /live/{channel}.mp4. 초기화 세그먼트부터 보낸다.
func (server *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	s := server.getConn(channel)
	if s == nil {
		http.Error(w, ErrNoPublisher.Error(), http.StatusForbidden)
		return
	}

	v := s.AddViewer(uid.NewId())
	defer s.RemoveViewer(v)
	log.Debugf("[%v] viewer %s joined", s.Info(), v.UID)

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Type", "video/mp4")
	flusher, _ := w.(http.Flusher)

	for {
		select {
		case b, ok := <-v.C:
			if !ok {
				return
			}
			if _, err := w.Write(b); err != nil {
				log.Debugf("viewer %s: %v", v.UID, err)
				return
			}
			v.RecBytes(len(b))
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}
