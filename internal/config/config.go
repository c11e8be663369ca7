package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	SessionDriverFile   = "file"
	SessionDriverRedis  = "redis"
	SessionDriverMemory = "memory"
)

type Config struct {
	LogLevel string  `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort string  `yaml:"http-port" env:"HTTP_PORT" env-default:""`
	Server   Server  `yaml:"server"`
	Session  Session `yaml:"session"`
	Timers   Timers  `yaml:"timers"`
}

type Server struct {
	URL              string        `yaml:"url" env:"SERVER_URL" env-default:"ws://localhost:8080/ws"`
	HandshakeTimeout time.Duration `yaml:"handshake-timeout" env:"SERVER_HANDSHAKE_TIMEOUT" env-default:"5s"`
	WriteTimeout     time.Duration `yaml:"write-timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"5s"`
	SendBuffer       int           `yaml:"send-buffer" env:"SERVER_SEND_BUFFER" env-default:"32"`
}

type Session struct {
	Driver  string        `yaml:"driver" env:"SESSION_DRIVER" env-default:"file"`
	Path    string        `yaml:"path" env:"SESSION_PATH" env-default:".tictactoe/session.json"`
	Key     string        `yaml:"key" env:"SESSION_KEY" env-default:"gameState"`
	Timeout time.Duration `yaml:"timeout" env:"SESSION_TIMEOUT" env-default:"2s"`
	Redis   Redis         `yaml:"redis"`
}

type Redis struct {
	Host string `yaml:"host" env:"SESSION_REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"SESSION_REDIS_PORT" env-default:"6379"`
	DB   int    `yaml:"db" env:"SESSION_REDIS_DB" env-default:"0"`
}

// Timers holds the UI countdowns of the match flows.
type Timers struct {
	Search           time.Duration `yaml:"search" env:"TIMER_SEARCH" env-default:"4s"`
	WaitTurn         time.Duration `yaml:"wait-turn" env:"TIMER_WAIT_TURN" env-default:"3s"`
	DisconnectNotice time.Duration `yaml:"disconnect-notice" env:"TIMER_DISCONNECT_NOTICE" env-default:"3s"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

// MustLoadEnv - load configuration from the environment only, used when no config file exists.
func MustLoadEnv() *Config {
	config := &Config{}

	if err := cleanenv.ReadEnv(config); err != nil {
		panic(fmt.Errorf("unable to load config from environment: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
