package config

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

type Config struct {
	ServerAddr     string
	Store          string
	DatabaseDSN    string
	MongoDatabase  string
	SigningKey     []byte
	AllowedOrigins []string
	RedisAddr      string
	NatsURL        string
	MessageLimit   int
	MessageWindow  time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, store, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}

	switch store {
	case StorePostgres, StoreMongo:
		if databaseDSN == "" {
			return nil, fmt.Errorf("database DSN cannot be empty for %s store", store)
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("unknown store %q", store)
	}

	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		Store:          store,
		DatabaseDSN:    databaseDSN,
		MongoDatabase:  "medchat",
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		MessageLimit:   20,
		MessageWindow:  10 * time.Second,
	}, nil
}

// ParseRate parses a rate such as "20/10s" into a count and a window.
func ParseRate(rate string) (int, time.Duration, error) {
	countStr, windowStr, ok := strings.Cut(rate, "/")
	if !ok {
		return 0, 0, fmt.Errorf("rate %q: expected <count>/<window>", rate)
	}

	count, err := strconv.Atoi(strings.TrimSpace(countStr))
	if err != nil || count <= 0 {
		return 0, 0, fmt.Errorf("rate %q: invalid count", rate)
	}

	window, err := time.ParseDuration(strings.TrimSpace(windowStr))
	if err != nil || window <= 0 {
		return 0, 0, fmt.Errorf("rate %q: invalid window", rate)
	}

	return count, window, nil
}
