package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// parseEnv overlays the environment variables the service has always been
// deployed with. Unset or blank variables leave the current value alone.
// An unparsable expiry panics, like a malformed JSON file does.
//
//	ACCESS_TOKEN_SECRET, ACCESS_TOKEN_EXPIRY
//	REFRESH_TOKEN_SECRET, REFRESH_TOKEN_EXPIRY
//	NODE_ENV or APP_ENV ("production")
//	DATABASE_DSN, PORT, CORS_ORIGIN
func parseEnv(config *Config) {
	if v, ok := lookup("ACCESS_TOKEN_SECRET"); ok {
		config.AccessTokenSecret = v
	}
	if v, ok := lookup("REFRESH_TOKEN_SECRET"); ok {
		config.RefreshTokenSecret = v
	}
	if v, ok := lookup("ACCESS_TOKEN_EXPIRY"); ok {
		config.AccessTokenValidityDuration = mustExpiry("ACCESS_TOKEN_EXPIRY", v)
	}
	if v, ok := lookup("REFRESH_TOKEN_EXPIRY"); ok {
		config.RefreshTokenValidityDuration = mustExpiry("REFRESH_TOKEN_EXPIRY", v)
	}
	if v, ok := lookup("NODE_ENV"); ok {
		config.Production = v == "production"
	}
	if v, ok := lookup("APP_ENV"); ok {
		config.Production = v == "production"
	}
	if v, ok := lookup("DATABASE_DSN"); ok {
		config.DatabaseDSN = v
	}
	if v, ok := lookup("PORT"); ok {
		config.EndpointAddrHTTP = ":" + v
	}
	if v, ok := lookup("CORS_ORIGIN"); ok {
		config.CORSOrigin = v
	}
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func mustExpiry(key, v string) time.Duration {
	d, err := ParseExpiry(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	return d
}

// ParseExpiry parses a token lifetime. It accepts time.ParseDuration syntax
// ("15m", "1h30m"), a whole number of days ("10d") and a bare number of
// seconds ("900").
func ParseExpiry(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)

	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid expiry %q", v)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("invalid expiry %q", v)
		}
		return time.Duration(n) * time.Second, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry %q: %w", v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid expiry %q", v)
	}
	return d, nil
}
