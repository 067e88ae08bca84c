// Package config loads server configuration from file, environment and
// defaults via viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the authorization server.
// Tags use mapstructure for viper unmarshalling.
type ServerConfig struct {
	HTTPPort string `mapstructure:"HTTP_PORT"`

	// Issuer is the server's identity in iss parameters and the discovery
	// document. It must be an absolute URL without query or fragment; startup
	// fails otherwise.
	Issuer          string `mapstructure:"ISSUER"`
	VerificationURI string `mapstructure:"VERIFICATION_URI"`

	// Storage selects the repository backend: "memory" or "mongo".
	Storage     string `mapstructure:"STORAGE"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	// RedisAddr switches the token cache and PAR store to Redis when set.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	AccessTokenTTLMin     int `mapstructure:"ACCESS_TOKEN_TTL_MIN"`
	AuthCodeTTLMin        int `mapstructure:"AUTH_CODE_TTL_MIN"`
	DeviceCodeTTLMin      int `mapstructure:"DEVICE_CODE_TTL_MIN"`
	DevicePollIntervalSec int `mapstructure:"DEVICE_POLL_INTERVAL_SEC"`
	PARRequestTTLSec      int `mapstructure:"PAR_REQUEST_TTL_SEC"`
	PARMaxRequestBytes    int `mapstructure:"PAR_MAX_REQUEST_BYTES"`
	SweepIntervalMin      int `mapstructure:"SWEEP_INTERVAL_MIN"`
}

// LoadConfig reads configuration from file, environment variables and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/vauth/")
	v.AddConfigPath("$HOME/.vauth")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("ISSUER", "http://localhost:8080")
	v.SetDefault("VERIFICATION_URI", "http://localhost:8080/device")
	v.SetDefault("STORAGE", "memory")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/vauth_dev")
	v.SetDefault("MONGO_DB_NAME", "vauth_dev")
	v.SetDefault("REDIS_PREFIX", "vauth")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 60)
	v.SetDefault("AUTH_CODE_TTL_MIN", 10)
	v.SetDefault("DEVICE_CODE_TTL_MIN", 15)
	v.SetDefault("DEVICE_POLL_INTERVAL_SEC", 5)
	v.SetDefault("PAR_REQUEST_TTL_SEC", 60)
	v.SetDefault("PAR_MAX_REQUEST_BYTES", 8192)
	v.SetDefault("SWEEP_INTERVAL_MIN", 5)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults and env vars apply. Anything
		// else (malformed file, permissions) must surface.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.Storage != "memory" && c.Storage != "mongo" {
		return fmt.Errorf("unsupported storage backend %q", c.Storage)
	}
	if c.AccessTokenTTLMin <= 0 || c.AuthCodeTTLMin <= 0 || c.DeviceCodeTTLMin <= 0 {
		return fmt.Errorf("token and code TTLs must be positive")
	}
	if c.DevicePollIntervalSec <= 0 {
		return fmt.Errorf("device poll interval must be positive")
	}
	if c.PARRequestTTLSec <= 0 {
		return fmt.Errorf("PAR request TTL must be positive")
	}
	return nil
}
