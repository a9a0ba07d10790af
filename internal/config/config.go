package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerURL   string
	SocketPath  string
	TokenFile   string
	SessionID   string
	JoinTimeout time.Duration
	EmitTimeout time.Duration
	LogLevel    string
	LogFormat   string
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		SocketPath:  "/socket.io/",
		JoinTimeout: 5 * time.Second,
		EmitTimeout: 10 * time.Second,
		LogLevel:    "info",
		LogFormat:   "text",
	}

	cfg.ServerURL = env.Getenv("SANCTUARY_SERVER_URL")
	if cfg.ServerURL == "" {
		return Config{}, fmt.Errorf("SANCTUARY_SERVER_URL is required")
	}
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Config{}, fmt.Errorf("invalid SANCTUARY_SERVER_URL")
	}

	if raw := env.Getenv("SANCTUARY_SOCKET_PATH"); raw != "" {
		cfg.SocketPath = raw
	}

	cfg.TokenFile = env.Getenv("SANCTUARY_TOKEN_FILE")
	cfg.SessionID = env.Getenv("SANCTUARY_SESSION_ID")

	if raw := env.Getenv("SANCTUARY_JOIN_TIMEOUT_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid SANCTUARY_JOIN_TIMEOUT_SECONDS")
		}
		cfg.JoinTimeout = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("SANCTUARY_EMIT_TIMEOUT_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid SANCTUARY_EMIT_TIMEOUT_SECONDS")
		}
		cfg.EmitTimeout = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("SANCTUARY_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := env.Getenv("SANCTUARY_LOG_FORMAT"); raw != "" {
		cfg.LogFormat = raw
	}

	return cfg, nil
}
