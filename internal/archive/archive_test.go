package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_ReturnsNilSinkWhenBucketEmpty(t *testing.T) {
	s, err := New(Config{})
	assert.NoError(t, err)
	assert.Nil(t, s)
}

func TestBuildKey_IsDatePartitionedAndRunScoped(t *testing.T) {
	at := time.Date(2026, 8, 3, 15, 0, 0, 0, time.UTC)
	key := buildKey(at, "run-123", "stats")
	assert.Equal(t, "runs/2026-08-03/run-123/stats.json", key)
}

func TestNewRunID_ProducesDistinctIDs(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
