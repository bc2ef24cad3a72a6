package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKey(t *testing.T) {
	// unordered: both argument orders produce the same key
	assert.Equal(t, "3:7", PairKey(3, 7))
	assert.Equal(t, "3:7", PairKey(7, 3))
	assert.Equal(t, "1:1", PairKey(1, 1))
}
