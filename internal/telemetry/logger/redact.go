package logger

import (
	"log/slog"
	"strings"
)

const redactedValue = "***REDACTED***"

// sessionIDPrefix marks values minted by the session coordinator. They are
// masked rather than dropped so log lines about one session still line up.
const sessionIDPrefix = "cmss_"

// Keys containing one of these fragments are fully redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"session_id",
	"credential",
	"auth",
	"bearer",
}

// redactSensitive is installed as the handler's ReplaceAttr hook.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		switch {
		case strings.HasPrefix(v, sessionIDPrefix):
			return slog.String(a.Key, maskSessionID(v))
		case v == "":
		case hasBearer(v), sensitiveKey(a.Key):
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// RedactString masks a session id; any other value is returned unchanged.
func RedactString(v string) string {
	if strings.HasPrefix(v, sessionIDPrefix) {
		return maskSessionID(v)
	}
	return v
}

// maskSessionID keeps the prefix plus three characters from each end of
// the body: cmss_abc...xyz.
func maskSessionID(v string) string {
	body := v[len(sessionIDPrefix):]
	if len(body) <= 6 {
		return sessionIDPrefix + "***"
	}
	return sessionIDPrefix + body[:3] + "..." + body[len(body)-3:]
}

// hasBearer catches admin credentials logged under an innocuous key, such
// as a raw header dump.
func hasBearer(v string) bool {
	return len(v) > 7 && strings.EqualFold(v[:7], "bearer ")
}

func sensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, p := range sensitiveKeyPatterns {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}
