package handler

import "strconv"

// formatUploadLimit renders a byte limit for error messages, in MB when it
// is at least one MB and in KB otherwise.
func formatUploadLimit(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case bytes <= 0:
		return "0KB"
	case bytes >= mb:
		return strconv.FormatInt(bytes/mb, 10) + "MB"
	default:
		return strconv.FormatInt(max(bytes/kb, 1), 10) + "KB"
	}
}
