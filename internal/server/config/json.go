package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for lifetimes, which accepts both strings such as
// "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. Pointer fields distinguish "absent" from "zero" so that a partial
// file only overrides what it names.
type JsonConfig struct {
	EndpointAddrHTTP             string          `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string          `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string          `json:"database_dsn"`
	Store                        string          `json:"store"`
	AccessTokenSecret            string          `json:"access_token_secret"`
	RefreshTokenSecret           string          `json:"refresh_token_secret"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	Production                   *bool           `json:"production"`
	LogFormat                    string          `json:"log_format"`
	CORSOrigin                   string          `json:"cors_origin"`
	RateLimitPerSecond           *float64        `json:"rate_limit_per_second"`
	RateLimitBurst               *int            `json:"rate_limit_burst"`
	PasswordMemoryKiB            *uint32         `json:"password_memory_kib"`
	PasswordIterations           *uint32         `json:"password_iterations"`
	PasswordParallelism          *uint8          `json:"password_parallelism"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags. If neither
// is set, no JSON file is loaded. If the file cannot be read or contains
// invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.Store, c.Store)
	setString(&config.AccessTokenSecret, c.AccessTokenSecret)
	setString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.CORSOrigin, c.CORSOrigin)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.Production != nil {
		config.Production = *c.Production
	}
	if c.RateLimitPerSecond != nil {
		config.RateLimitPerSecond = *c.RateLimitPerSecond
	}
	if c.RateLimitBurst != nil {
		config.RateLimitBurst = *c.RateLimitBurst
	}
	if c.PasswordMemoryKiB != nil {
		config.PasswordMemoryKiB = *c.PasswordMemoryKiB
	}
	if c.PasswordIterations != nil {
		config.PasswordIterations = *c.PasswordIterations
	}
	if c.PasswordParallelism != nil {
		config.PasswordParallelism = *c.PasswordParallelism
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
