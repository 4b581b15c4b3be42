package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces secret values in log output.
const RedactedValue = "[REDACTED]"

// Keys compared lower-case. The handler masks these wherever they appear,
// so a stray slog.String("jwtSecret", ...) never reaches disk.
var secretKeys = map[string]struct{}{
	"jwtsecret":     {},
	"otelheaders":   {},
	"authorization": {},
	"token":         {},
}

// IsSecret reports whether values logged under key are masked.
func IsSecret(key string) bool {
	_, ok := secretKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Secret logs whether a secret is configured without its value.
func Secret(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, "")
	}
	return slog.String(key, RedactedValue)
}

// OTLPHeaders logs the header names of a key=value,... OTLP header string.
// Values often carry collector credentials and are dropped.
func OTLPHeaders(key, raw string) slog.Attr {
	var names []string
	for _, pair := range strings.Split(raw, ",") {
		name, _, found := strings.Cut(pair, "=")
		if name = strings.TrimSpace(name); found && name != "" {
			names = append(names, name+"="+RedactedValue)
		}
	}
	sort.Strings(names)
	return slog.String(key, strings.Join(names, ","))
}

// Bearer logs the scheme and the last four characters of an Authorization
// header under tokenHint so that rejected requests from one client can be
// correlated.
func Bearer(header string) slog.Attr {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	switch {
	case !found || token == "":
		return slog.String("tokenHint", RedactedValue)
	case len(token) <= 8:
		return slog.String("tokenHint", scheme+" "+RedactedValue)
	}
	return slog.String("tokenHint", scheme+" ..."+token[len(token)-4:])
}

func redactSecrets(attr slog.Attr) slog.Attr {
	if !IsSecret(attr.Key) || attr.Value.Kind() != slog.KindString {
		return attr
	}
	if value := attr.Value.String(); value == "" || strings.Contains(value, RedactedValue) {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
