package logging

import (
	"log/slog"
	"strings"

	"github.com/waftester/wpscout/pkg/regexcache"
)

// Redacted replaces secret values.
const Redacted = "[REDACTED]"

var sensitiveKeys = []string{
	"token", "password", "passwd", "pwd", "secret",
	"api_key", "apikey", "authorization", "cookie", "set-cookie",
}

// Patterns applied to string values, each keeping group 1 and masking the rest.
var secretPatterns = []string{
	`(?i)(token["']?\s*[:=]\s*["']?)[^"'}\s&]+`,
	`(?i)(api[-_]?key["']?\s*[:=]\s*["']?)[^"'}\s&]+`,
	`(?i)(secret["']?\s*[:=]\s*["']?)[^"'}\s&]+`,
	`(?i)(pass(?:word|wd)?["']?\s*[:=]\s*["']?)[^"'}\s&]+`,
	`(?i)(bearer\s+)[A-Za-z0-9\-_.~+/]+=*`,
	`(?i)((?:set-)?cookie:\s*)[^\n]+`,
	`(?i)(authorization:\s*)[^\n]+`,
	`(://[^:/@\s]+:)[^@\s]+(@)`,
}

// Redact is a slog ReplaceAttr hook. Values under sensitive keys are
// replaced outright; other string values are scrubbed of inline secrets.
func Redact(_ []string, a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, Redacted)
	}
	if a.Value.Kind() == slog.KindString {
		if s := RedactString(a.Value.String()); s != a.Value.String() {
			return slog.String(a.Key, s)
		}
	}
	return a
}

// RedactString masks secrets embedded in free text.
func RedactString(s string) string {
	for i, p := range secretPatterns {
		re := regexcache.MustGet(p)
		repl := "${1}" + Redacted
		if i == len(secretPatterns)-1 {
			repl = "${1}" + Redacted + "${2}"
		}
		s = re.ReplaceAllString(s, repl)
	}
	return s
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if k == s || strings.HasSuffix(k, "_"+s) || strings.HasSuffix(k, "."+s) {
			return true
		}
	}
	return false
}
