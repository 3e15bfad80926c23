package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path"
	"runtime"
	"syscall"
	"time"

	"github.com/kokoavailable/flv2fmp4/configure"
	"github.com/kokoavailable/flv2fmp4/pipeline"
	"github.com/kokoavailable/flv2fmp4/protocol/api"
	"github.com/kokoavailable/flv2fmp4/protocol/httpfmp4"

	log "github.com/sirupsen/logrus"
)

var VERSION = "master"

func pipelineConfig(cfg configure.ServerCfg) pipeline.Config {
	return pipeline.Config{
		QueueSize:  cfg.QueueSize,
		Audio:      cfg.Audio,
		Video:      cfg.Video,
		DefaultFPS: cfg.DefaultFPS,
	}
}

func startHTTPFmp4(cfg configure.ServerCfg) *httpfmp4.Server {
	httpListen, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatal(err)
	}

	server := httpfmp4.NewServer(httpfmp4.Config{
		Pipeline:  pipelineConfig(cfg),
		ChunkSize: cfg.ChunkSize,
		Timeout:   time.Duration(cfg.SessionTimeout) * time.Second,

		FLVArchive: cfg.FLVArchive,
		FLVDir:     cfg.FLVDir,
	}, configure.StreamKeys)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("HTTP-FMP4 server panic: ", r)
			}
		}()
		log.Info("HTTP-FMP4 listen On ", cfg.HTTPAddr)
		server.Serve(httpListen)
	}()
	return server
}

func startAPI(cfg configure.ServerCfg, stat api.StatGetter) {
	if cfg.APIAddr == "" {
		return
	}
	opListen, err := net.Listen("tcp", cfg.APIAddr)
	if err != nil {
		log.Fatal(err)
	}
	opServer := api.NewServer(configure.StreamKeys, stat, cfg.JWT)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("HTTP-API server panic: ", r)
			}
		}()
		log.Info("HTTP-API listen On ", cfg.APIAddr)
		opServer.Serve(opListen)
	}()
}

func convert(cfg configure.ServerCfg) error {
	var in io.Reader = os.Stdin
	if cfg.Input != "" && cfg.Input != "-" {
		f, err := os.Open(cfg.Input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var out io.Writer = os.Stdout
	if cfg.Output != "" && cfg.Output != "-" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	start := time.Now()
	if err := pipeline.Convert(ctx, in, out, pipelineConfig(cfg), cfg.ChunkSize); err != nil {
		return err
	}
	log.Infof("%s -> %s in %v", cfg.Input, cfg.Output, time.Since(start))
	return nil
}

// 택스트 포매터 구조체 포인터를 전달해 로거의 포매터를 설정한다.
// 호출 함수의 이름과 파일 이름 및 라인 번호를 짧게 보여준다.
func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			filename := path.Base(f.File) // 경로에서 마지막 파일 이름 추출.
			return fmt.Sprintf("%s()", f.Function), fmt.Sprintf(" %s:%d", filename, f.Line)
		},
	})
	// 변환 결과가 stdout 으로 나갈 수 있으므로 로그는 stderr 로.
	log.SetOutput(os.Stderr)
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Error("flv2fmp4 panic: ", r)
			time.Sleep(1 * time.Second)
		}
	}()

	if err := configure.Init(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
	cfg := configure.Get()

	if !cfg.Serve {
		if err := convert(cfg); err != nil {
			log.Fatal(err)
		}
		return
	}

	log.Infof(`
     __ _        ____  __                _  _   
    / _| |_   __|___ \/ _|_ __ ___  _ __| || |  
   | |_| \ \ / /  __) | |_| '_ ' _ \| '_ \ || |_ 
   |  _| |\ V /  / __/|  _| | | | | | |_) |__   _|
   |_| |_| \_/  |_____|_| |_| |_| |_| .__/   |_|  
                                    |_|         
        version: %s
	`, VERSION)

	if err := configure.InitStreamKeys(); err != nil {
		log.Fatal(err)
	}

	server := startHTTPFmp4(cfg)
	startAPI(cfg, server)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
	server.Close()
}
