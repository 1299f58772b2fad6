package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestIDKey stores the request correlation id on the context.
type RequestIDKey struct{}

// New builds the process logger. Production gets JSON output, everything
// else gets the console encoder. Callers own the returned logger; there is
// no package-level instance.
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProductionConfig().Build()
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

// MaskEmail hides the local part except for a short prefix, so log lines
// stay correlatable without exposing the address.
// "john.doe@example.com" becomes "joh***@example.com".
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}

	visible := at
	if visible > 3 {
		visible = 3
	}
	return email[:visible] + "***" + email[at:]
}

// MaskIP keeps enough of the address to distinguish networks. IPv4 keeps
// the first two octets, IPv6 the first four groups.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	if parts := strings.Split(ip, "."); len(parts) == 4 {
		return parts[0] + "." + parts[1] + ".*.*"
	}
	if parts := strings.Split(ip, ":"); len(parts) >= 4 {
		return strings.Join(parts[:4], ":") + ":*:*:*:*"
	}
	return "***"
}
