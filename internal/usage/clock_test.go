package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStamp(t *testing.T) {
	// 2026-01-02 is a Friday
	assert.Equal(t, "Пт, 02.01.2026, 15:04", Stamp(time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)))
}

func TestSystemClock(t *testing.T) {
	c, err := NewSystemClock("Asia/Yekaterinburg")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Yekaterinburg", c.Now().Location().String())

	_, err = NewSystemClock("Mars/Olympus")
	require.Error(t, err)

	assert.False(t, SystemClock{}.Now().IsZero())
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	c.Advance(2 * time.Hour)
	assert.Equal(t, start.Add(2*time.Hour), c.Now())
	assert.NotEqual(t, dayKey(start), dayKey(c.Now()))
}
