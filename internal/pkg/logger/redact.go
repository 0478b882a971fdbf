package logger

import "strings"

// RedactEmail masks a donor email address for safe logging.
// "jane.doe@example.org" → "ja***@example.org"
// Short local parts (≤2 chars) are fully masked: "jd@example.org" → "***@example.org"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
