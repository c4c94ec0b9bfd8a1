package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
)

const (
	storeMemory   = "memory"
	storePostgres = "postgres"
)

type serviceConfig struct {
	Service  string
	LogLevel string
	Port     string
	GRPCPort string

	Store       string
	DatabaseURL string
	RedisURL    string
	Brokers     string

	ReminderOffsets string
	SlotMinutes     int
	HoursCacheTTL   time.Duration

	RateLimit    int
	RateWindow   time.Duration
	RateFailOpen bool

	BodyLimit      int64
	RequestTimeout time.Duration
}

func loadServiceConfig() (serviceConfig, error) {
	cfg := serviceConfig{
		Service:         config.String("SERVICE_NAME", "booking-service"),
		LogLevel:        config.String("LOG_LEVEL", "info"),
		Store:           strings.ToLower(config.String("STORE", storePostgres)),
		DatabaseURL:     config.String("DATABASE_URL", ""),
		RedisURL:        config.String("REDIS_URL", ""),
		Brokers:         config.String("KAFKA_BROKERS", ""),
		ReminderOffsets: config.String("REMINDER_OFFSETS_MINUTES", "1440,60"),
		RateFailOpen:    config.Bool("RATE_LIMIT_FAIL_OPEN", true),
	}

	var err error
	if cfg.Port, err = config.Port("PORT", "8083"); err != nil {
		return cfg, err
	}
	if cfg.GRPCPort, err = config.Port("GRPC_PORT", "9093"); err != nil {
		return cfg, err
	}
	if cfg.SlotMinutes, err = config.Int("DEFAULT_SLOT_MINUTES", 30); err != nil {
		return cfg, err
	}
	if cfg.HoursCacheTTL, err = config.Duration("HOURS_CACHE_TTL", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.RateLimit, err = config.Int("RATE_LIMIT_PER_WINDOW", 120); err != nil {
		return cfg, err
	}
	if cfg.RateWindow, err = config.Duration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout, err = config.Duration("HTTP_REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	bodyLimit, err := config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		return cfg, err
	}
	cfg.BodyLimit = int64(bodyLimit)

	switch cfg.Store {
	case storeMemory:
	case storePostgres:
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required when STORE=%s", storePostgres)
		}
	default:
		return cfg, fmt.Errorf("STORE must be %q or %q, got %q", storeMemory, storePostgres, cfg.Store)
	}
	if cfg.SlotMinutes <= 0 {
		return cfg, fmt.Errorf("DEFAULT_SLOT_MINUTES must be positive")
	}
	return cfg, nil
}
