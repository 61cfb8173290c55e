package config

import (
	"os"
	"path"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Public  Public
	Private Private
}

type Public struct {
	MessageMaxLen      int           `yaml:"message_max_len"` // longest accepted message content, in runes
	PageSize           int           `yaml:"page_size"`       // default page size for list endpoints
	SessionSendTimeout time.Duration `yaml:"session_send_timeout"`
	NotifyTimeout      time.Duration `yaml:"notify_timeout"` // budget for the fire-and-forget notification step
	LogLevel           string        `yaml:"log_level"`
	LogJSON            bool          `yaml:"log_json"`
	AllowedOrigins     []string      `yaml:"allowed_origins"`
}

type Pg struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Dbname   string `yaml:"dbname"`
}

type Private struct {
	Pg      Pg            `yaml:"pg"`
	JwtKey  string        `yaml:"jwt_key"`
	JwtTTL  time.Duration `yaml:"jwt_ttl"`
	NatsURL string        `yaml:"nats_url"` // empty disables the NATS notifier
}

func (s *Config) JwtKey() string {
	return s.Private.JwtKey
}

func (s *Config) JwtTTL() time.Duration {
	return s.Private.JwtTTL
}

func mustLoadPath(configPath string, output interface{}) {
	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		panic("can't read config file")
	}

	err = yaml.Unmarshal(configFile, output)
	if err != nil {
		panic("can't unmarshal config file")
	}
}

func MustLoad(configFolder string) *Config {
	var public Public
	mustLoadPath(path.Join(configFolder, "public.yaml"), &public)

	var private Private
	mustLoadPath(path.Join(configFolder, "private.yaml"), &private)

	cfg := &Config{public, private}
	cfg.applyDefaults()
	return cfg
}

func (s *Config) applyDefaults() {
	if s.Public.MessageMaxLen == 0 {
		s.Public.MessageMaxLen = 10_000
	}
	if s.Public.PageSize == 0 {
		s.Public.PageSize = 20
	}
	if s.Public.SessionSendTimeout == 0 {
		s.Public.SessionSendTimeout = 5 * time.Second
	}
	if s.Public.NotifyTimeout == 0 {
		s.Public.NotifyTimeout = 10 * time.Second
	}
	if s.Public.LogLevel == "" {
		s.Public.LogLevel = "info"
	}
}
