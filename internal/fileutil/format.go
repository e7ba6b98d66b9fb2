package fileutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
)

// SecondsPerSegment is the rough synthesis cost of one chunk on a GPU.
const SecondsPerSegment = 7

// FormatDuration formats seconds as "45.2s", "5m 30.5s" or "1h 15m".
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remainingSeconds := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, remainingSeconds)
	}

	hours := int(seconds / secondsInHour)
	remainingMinutes := int((seconds - float64(hours*secondsInHour)) / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}

// FormatFileSize formats a byte count for display, e.g. "1.2 MB".
func FormatFileSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}

	return humanize.Bytes(uint64(bytes))
}

// EstimateProcessingTime returns the expected wall time for synthesizing
// the given number of segments.
func EstimateProcessingTime(segments int) time.Duration {
	return time.Duration(segments*SecondsPerSegment) * time.Second
}

// SanitizeFilename replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", "_",
		">", "_",
		":", "_",
		"\"", "_",
		"/", "_",
		"\\", "_",
		"|", "_",
		"?", "_",
		"*", "_",
	)

	return replacer.Replace(filename)
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}
