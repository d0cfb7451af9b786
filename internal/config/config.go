package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultHTTPAddr       = ":8080"
	defaultJWTAccessTTL   = "24h"
	defaultJWTSecret      = "change-me-jwt-secret"
	defaultSweepInterval  = "5m"
	defaultGroupLookahead = "1h"
	defaultNotifRetention = "2160h" // 90 days
)

// Config is the process runtime configuration, loaded from the environment.
type Config struct {
	AppEnv      string
	HTTPAddr    string
	DatabaseURL string

	JWTSecret    string
	JWTAccessTTL time.Duration

	SweepInterval         time.Duration
	GroupLookahead        time.Duration
	NotificationRetention time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{}

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = getEnv("HTTP_ADDR", defaultHTTPAddr)
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))

	var err error
	cfg.JWTAccessTTL, err = parseDurationEnv("JWT_ACCESS_TTL", defaultJWTAccessTTL)
	if err != nil {
		return nil, err
	}
	cfg.SweepInterval, err = parseDurationEnv("SWEEP_INTERVAL", defaultSweepInterval)
	if err != nil {
		return nil, err
	}
	cfg.GroupLookahead, err = parseDurationEnv("GROUP_SWEEP_LOOKAHEAD", defaultGroupLookahead)
	if err != nil {
		return nil, err
	}
	cfg.NotificationRetention, err = parseDurationEnv("NOTIFICATION_RETENTION", defaultNotifRetention)
	if err != nil {
		return nil, err
	}

	if cfg.AppEnv == "prod" && cfg.JWTSecret == defaultJWTSecret {
		return nil, fmt.Errorf("JWT_SECRET must be set in prod")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func parseDurationEnv(key, fallback string) (time.Duration, error) {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
