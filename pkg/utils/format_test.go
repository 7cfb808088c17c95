package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{-5, "0 B"},
		{512, "512 B"},
		{1536, "1.50 KB"},
		{50 * MB, "50.00 MB"},
		{3 * GB / 2, "1.50 GB"},
		{2 * TB, "2.00 TB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFileSize(tt.in))
	}
	assert.Equal(t, "1.00 MB/s", FormatSpeed(MB))
	assert.Equal(t, "0 B/s", FormatSpeed(0))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(-time.Second))
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h 0m 1s", FormatDuration(time.Hour+time.Second))
	assert.Equal(t, "1d 2h 0m 0s", FormatDuration(26*time.Hour))
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "Unknown", FormatClock(0))
	assert.Equal(t, "0:07", FormatClock(7))
	assert.Equal(t, "3:25", FormatClock(205))
	assert.Equal(t, "1:00:05", FormatClock(3605))
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "999", FormatCount(999))
	assert.Equal(t, "1.2K", FormatCount(1234))
	assert.Equal(t, "3.4M", FormatCount(3_400_000))
	assert.Equal(t, "1.0B", FormatCount(1_000_000_000))
}

func TestFormatProgressBar(t *testing.T) {
	assert.Equal(t, "░░░░░░░░░░ 0.0%", FormatProgressBar(-3))
	assert.Equal(t, "█████░░░░░ 50.0%", FormatProgressBar(50))
	assert.Equal(t, "██████████ 100.0%", FormatProgressBar(140))

	assert.Equal(t, 0.0, Percent(10, 0))
	assert.Equal(t, 25.0, Percent(1, 4))
	assert.Equal(t, 100.0, Percent(9, 4))
}
