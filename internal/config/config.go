package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	DefaultRoomCapacity  = 2
	DefaultRoomLifetime  = 24 * time.Hour
	DefaultSweepInterval = time.Hour
	DefaultHistoryTTL    = 6 * time.Hour

	// DefaultCompactThreshold is the history length at which compaction
	// fires; DefaultCompactKeep is the tail retained afterwards. The
	// window boundary is a policy knob, not a constant.
	DefaultCompactThreshold = 10
	DefaultCompactKeep      = 5
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	RedisAddr      string
	SigningKey     []byte
	AllowedOrigins []string

	GeneratorURL     string
	GeneratorKey     string
	GeneratorModel   string
	RoomLifetime     time.Duration
	SweepInterval    time.Duration
	HistoryTTL       time.Duration
	CompactThreshold int
	CompactKeep      int
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, redisAddr, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if redisAddr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:       serverAddr,
		DatabaseDSN:      databaseDSN,
		RedisAddr:        redisAddr,
		SigningKey:       signingKey,
		AllowedOrigins:   allowedOrigins,
		RoomLifetime:     DefaultRoomLifetime,
		SweepInterval:    DefaultSweepInterval,
		HistoryTTL:       DefaultHistoryTTL,
		CompactThreshold: DefaultCompactThreshold,
		CompactKeep:      DefaultCompactKeep,
	}, nil
}
