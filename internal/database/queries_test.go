package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastMessageUpdate(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sqlStr, args, err := lastMessageUpdate(7, "hello", at).ToSql()
	require.NoError(t, err)

	// a sender whose commit lost the race must match zero rows instead of
	// overwriting a newer preview with an older message
	assert.Contains(t, sqlStr, "last_message_at IS NULL OR last_message_at <=")
	assert.Contains(t, args, "hello")
	assert.Contains(t, args, 7)
	assert.Contains(t, args, at)
}
