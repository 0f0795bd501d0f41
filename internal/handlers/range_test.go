package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRangeHeader(t *testing.T) {
	const length = 100

	tests := []struct {
		header    string
		wantStart int64
		wantEnd   int64
		wantOK    bool
	}{
		{"", 0, 0, false},
		{"bytes=0-49", 0, 49, true},
		{"bytes=50-", 50, 99, true},
		{"bytes=-10", 90, 99, true},
		{"bytes=-200", 0, 99, true},
		{"bytes=0-0", 0, 0, true},
		{"bytes=0-1000", 0, 1000, true}, // clamping happens downstream
		{"units=0-49", 0, 0, false},
		{"bytes=a-b", 0, 0, false},
		{"bytes=0-9,20-29", 0, 0, false},
		{"bytes=-", 0, 0, false},
		{"bytes=-0", 0, 0, false},
		{"bytes=5", 0, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.header, func(t *testing.T) {
			start, end, ok := parseRangeHeader(tc.header, length)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantStart, start)
				assert.Equal(t, tc.wantEnd, end)
			}
		})
	}
}

func TestDownloadFilename(t *testing.T) {
	assert.Equal(t, "My Beat.mp3", downloadFilename("My Beat", "audio/mpeg"))
	assert.Equal(t, "cleaned.wav", downloadFilename(`cle<a>n:e"d/\|?*`, "audio/wav"))
	assert.Equal(t, "download.bin", downloadFilename("", "application/zip"))
	assert.Equal(t, "x.bin", downloadFilename("x", "text/plain"))

	// Titles that already carry an extension keep it as-is
	assert.Equal(t, "Summer Vibes.mp3", downloadFilename("Summer Vibes.mp3", "audio/mpeg"))
	assert.Equal(t, "track.wav", downloadFilename("track.wav", "audio/mpeg"))
}
