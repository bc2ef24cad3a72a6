package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

func TestNewConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg, err := NewConfig("localhost:8000", "host=localhost", testSecret,
			[]string{"http://localhost:3000"}, "redis://localhost:6379", 0, nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost:8000", cfg.ServerAddr)
		assert.NotEmpty(t, cfg.SigningKey)
		assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	})

	t.Run("missing server address", func(t *testing.T) {
		_, err := NewConfig("", "host=localhost", testSecret, nil, "", 0, nil)
		assert.Error(t, err)
	})

	t.Run("missing database DSN", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "", testSecret, nil, "", 0, nil)
		assert.Error(t, err)
	})

	t.Run("missing signing secret", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "host=localhost", "", nil, "", 0, nil)
		assert.Error(t, err)
	})

	t.Run("invalid base64 secret", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "host=localhost", "not-base64!!!", nil, "", 0, nil)
		assert.Error(t, err)
	})

	t.Run("negative attachment size", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "host=localhost", testSecret, nil, "", -1, nil)
		assert.Error(t, err)
	})
}
