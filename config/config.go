// Package config loads the server's structured configuration via viper
// (file + environment + defaults). It only applies defaults and types;
// it does not validate values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CORS holds the cross-origin settings.
type CORS struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowedMethods  []string `mapstructure:"allowed_methods"`
	AllowedHeaders  []string `mapstructure:"allowed_headers"`
	AllowCredentials bool    `mapstructure:"allow_credentials"`
	MaxAge          int      `mapstructure:"max_age"`
}

// Config is the complete set of server options.
type Config struct {
	Host            string   `mapstructure:"host"`
	Port            int      `mapstructure:"port"`
	Debug           bool     `mapstructure:"debug"`
	MaxMessageSize  int      `mapstructure:"max_message_size"`
	CORS            CORS     `mapstructure:"cors"`
	AuthKey         string   `mapstructure:"auth_key"`
	QueueFile       string   `mapstructure:"queue_file"`
	HealthCheckPath string   `mapstructure:"health_check_path"`
	TrustedProxies  []string `mapstructure:"trusted_proxies"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	QueuePollInterval time.Duration `mapstructure:"queue_poll_interval"`
	ReadinessTimeout time.Duration `mapstructure:"readiness_timeout"`
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Default returns a Config populated with the server's documented
// defaults.
func Default() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           6001,
		Debug:          false,
		MaxMessageSize: 65536,
		CORS: CORS{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			AllowCredentials: false,
			MaxAge:         86400,
		},
		QueueFile:         "duplexsock_queue.jsonl",
		HandshakeTimeout:  10 * time.Second,
		QueuePollInterval: 200 * time.Millisecond,
		ReadinessTimeout:  200 * time.Millisecond,
	}
}

// Load reads configuration from an optional YAML file at path, then
// environment variables prefixed DWS_ (e.g. DWS_PORT), layered over
// Default(). path may be empty to skip file loading.
func Load(path string) (*Config, error) {
	v := viper.New()
	def := Default()
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("debug", def.Debug)
	v.SetDefault("max_message_size", def.MaxMessageSize)
	v.SetDefault("cors.allowed_origins", def.CORS.AllowedOrigins)
	v.SetDefault("cors.allowed_methods", def.CORS.AllowedMethods)
	v.SetDefault("cors.allowed_headers", def.CORS.AllowedHeaders)
	v.SetDefault("cors.allow_credentials", def.CORS.AllowCredentials)
	v.SetDefault("cors.max_age", def.CORS.MaxAge)
	v.SetDefault("auth_key", def.AuthKey)
	v.SetDefault("queue_file", def.QueueFile)
	v.SetDefault("health_check_path", def.HealthCheckPath)
	v.SetDefault("trusted_proxies", def.TrustedProxies)
	v.SetDefault("handshake_timeout", def.HandshakeTimeout)
	v.SetDefault("queue_poll_interval", def.QueuePollInterval)
	v.SetDefault("readiness_timeout", def.ReadinessTimeout)

	v.SetEnvPrefix("DWS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
