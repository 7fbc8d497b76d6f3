package logutil

import (
	"net"
	"strconv"
	"strings"
)

// SanitizeForLog strips newlines and other control characters from
// user-provided strings so they cannot forge extra log entries.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 32 || r == 0x7f:
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Mask hides all but the last four characters of a secret. Short secrets are
// hidden completely.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) > 8 {
		return "****" + value[len(value)-4:]
	}
	return "****"
}

// Target renders user@host:port for log lines, sanitized.
func Target(username, host string, port uint16) string {
	addr := net.JoinHostPort(SanitizeForLog(host), strconv.Itoa(int(port)))
	if username == "" {
		return addr
	}
	return SanitizeForLog(username) + "@" + addr
}
