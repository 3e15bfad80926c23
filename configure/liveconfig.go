package configure

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/kr/pretty"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

/*
flv2fmp4.yaml
level: debug
serve: true
http_addr: ":7001"
queue_size: 1024
jwt:
  secret: testing
  algorithm: HS256
*/

type JWT struct {
	Secret    string `mapstructure:"secret"`
	Algorithm string `mapstructure:"algorithm"`
}

// 변환기와 서버 설정. mapstructure 태그가 설정 파일, 플래그, 환경 변수의 키 이름이다.
type ServerCfg struct {
	Level      string `mapstructure:"level"`
	ConfigFile string `mapstructure:"config_file"`

	// 파일 변환
	Input     string `mapstructure:"input"`  // FLV 파일. "-" 이면 stdin
	Output    string `mapstructure:"output"` // fMP4 파일. "-" 이면 stdout
	ChunkSize int    `mapstructure:"chunk_size"`

	// 파이프라인
	QueueSize  int     `mapstructure:"queue_size"`
	Audio      bool    `mapstructure:"audio"`
	Video      bool    `mapstructure:"video"`
	DefaultFPS float64 `mapstructure:"default_fps"`

	// 서버
	Serve          bool   `mapstructure:"serve"`
	HTTPAddr       string `mapstructure:"http_addr"`
	APIAddr        string `mapstructure:"api_addr"`
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisPwd       string `mapstructure:"redis_pwd"`
	SessionTimeout int    `mapstructure:"session_timeout"` // 초
	FLVArchive     bool   `mapstructure:"flv_archive"`     // 업로드된 스트림을 FLV 로 보관
	FLVDir         string `mapstructure:"flv_dir"`
	JWT            JWT    `mapstructure:"jwt"`
}

// default config
var defaultConf = ServerCfg{
	Level:          "info",
	ConfigFile:     "flv2fmp4.yaml",
	Output:         "-",
	ChunkSize:      64 * 1024,
	QueueSize:      1024,
	Audio:          true,
	Video:          true,
	DefaultFPS:     25,
	HTTPAddr:       ":7001",
	APIAddr:        ":8090",
	SessionTimeout: 10,
	FLVDir:         "tmp",
	JWT: JWT{
		Algorithm: "HS256",
	},
}

// Config 는 Init 이 채운다. Init 전에는 비어 있다.
var Config = viper.New()

func initLog() {
	if l, err := log.ParseLevel(Config.GetString("level")); err == nil {
		log.SetLevel(l)
		log.SetReportCaller(l == log.DebugLevel)
	}
}

// Init 은 기본값, 명령행 인자, 설정 파일, 환경 변수 순으로 설정을 쌓는다.
// 뒤의 것이 앞의 것을 덮어쓴다. 인자가 남으면 첫 번째를 input 으로 쓴다.
func Init(args []string) error {
	Config = viper.New()

	// Default config
	b, err := json.Marshal(defaultConf)
	if err != nil {
		return err
	}
	defaults := viper.New()
	defaults.SetConfigType("json")
	if err := defaults.ReadConfig(bytes.NewReader(b)); err != nil {
		return err
	}
	Config.MergeConfigMap(defaults.AllSettings())

	// Flags
	// p flag는 POSIX 스타일 플래그를 파싱한다. P 가 붙은 메서드는 짧은 형식도 받는다.
	flags := pflag.NewFlagSet("flv2fmp4", pflag.ContinueOnError)
	flags.String("level", defaultConf.Level, "Log level")
	flags.String("config_file", defaultConf.ConfigFile, "configure filename")
	flags.StringP("input", "i", defaultConf.Input, "input flv file, - for stdin")
	flags.StringP("output", "o", defaultConf.Output, "output mp4 file, - for stdout")
	flags.Int("chunk_size", defaultConf.ChunkSize, "bytes pushed to the decoder at a time")
	flags.Int("queue_size", defaultConf.QueueSize, "worker mailbox size")
	flags.Bool("audio", defaultConf.Audio, "remux the audio track")
	flags.Bool("video", defaultConf.Video, "remux the video track")
	flags.Float64("default_fps", defaultConf.DefaultFPS, "frame rate when onMetaData has none")
	flags.Bool("serve", defaultConf.Serve, "run the HTTP ingest and playback servers")
	flags.String("http_addr", defaultConf.HTTPAddr, "HTTP fMP4 server listen address")
	flags.String("api_addr", defaultConf.APIAddr, "HTTP manage interface server listen address")
	flags.String("redis_addr", defaultConf.RedisAddr, "redis address for stream keys")
	flags.String("redis_pwd", defaultConf.RedisPwd, "redis password")
	flags.Int("session_timeout", defaultConf.SessionTimeout, "idle seconds before a session is closed")
	flags.Bool("flv_archive", defaultConf.FLVArchive, "archive published streams as flv")
	flags.String("flv_dir", defaultConf.FLVDir, "output flv file at flvDir/CHANNEL_TIME.flv")
	if err := flags.Parse(args); err != nil {
		return err
	}
	Config.BindPFlags(flags)
	if flags.NArg() > 0 && !flags.Changed("input") {
		Config.Set("input", flags.Arg(0))
	}

	// File
	if file := Config.GetString("config_file"); file != "" {
		Config.SetConfigFile(file)
		if err := Config.MergeInConfig(); err != nil {
			log.Debug(err)
			log.Debug("Using default config")
		}
	}

	// Environment
	replacer := strings.NewReplacer(".", "_")
	Config.SetEnvKeyReplacer(replacer)
	Config.AllowEmptyEnv(true)
	Config.AutomaticEnv()

	// Log
	initLog()

	// Print final config
	c := Get()
	log.Debugf("Current configurations: \n%# v", pretty.Formatter(c))
	return nil
}

// Get 은 현재 설정을 구조체로 돌려준다.
func Get() ServerCfg {
	c := ServerCfg{}
	Config.Unmarshal(&c)
	return c
}
