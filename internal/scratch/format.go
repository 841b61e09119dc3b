package scratch

import (
	"fmt"
	"strings"
	"time"
)

const (
	kilobyte = 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

var unsafeNameChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_",
	`\`, "_", "|", "_", "?", "_", "*", "_", " ", "_",
)

// FormatDuration renders d as "45.2s", "5m 30.5s" or "1h 15m".
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()

	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", seconds)
	case d < time.Hour:
		minutes := int(d / time.Minute)

		return fmt.Sprintf("%dm %.1fs", minutes, seconds-float64(minutes*60))
	default:
		hours := int(d / time.Hour)
		minutes := int((d - time.Duration(hours)*time.Hour) / time.Minute)

		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
}

// FormatFileSize renders a byte count as "1.2 GB", "3.4 MB", "5.6 KB" or "7 B".
func FormatFileSize(size int64) string {
	switch {
	case size >= gigabyte:
		return fmt.Sprintf("%.1f GB", float64(size)/gigabyte)
	case size >= megabyte:
		return fmt.Sprintf("%.1f MB", float64(size)/megabyte)
	case size >= kilobyte:
		return fmt.Sprintf("%.1f KB", float64(size)/kilobyte)
	default:
		return fmt.Sprintf("%d B", size)
	}
}

// SanitizeName replaces characters that are unsafe in file names and
// object keys.
func SanitizeName(name string) string {
	return unsafeNameChars.Replace(strings.TrimSpace(name))
}
