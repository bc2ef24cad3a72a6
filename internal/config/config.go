package config

import (
	"encoding/base64"
	"fmt"
)

type Config struct {
	ServerAddr         string
	DatabaseDSN        string
	SigningKey         []byte
	AllowedOrigins     []string
	RedisURL           string
	MaxAttachmentBytes int64
	AllowedExtensions  []string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string,
	redisURL string, maxAttachmentBytes int64, allowedExtensions []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if maxAttachmentBytes < 0 {
		return nil, fmt.Errorf("max attachment size cannot be negative")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:         serverAddr,
		DatabaseDSN:        databaseDSN,
		SigningKey:         signingKey,
		AllowedOrigins:     allowedOrigins,
		RedisURL:           redisURL,
		MaxAttachmentBytes: maxAttachmentBytes,
		AllowedExtensions:  allowedExtensions,
	}, nil
}
