package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret        string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer        string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience      string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL           time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	AccessCookieName string        `mapstructure:"access_cookie_name" yaml:"access_cookie_name"`

	// Socket gateway tuning.
	MaxMessageBytes  int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	SendBuffer       int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	InboundRateLimit int           `mapstructure:"inbound_rate_limit" yaml:"inbound_rate_limit"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" yaml:"log_json"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "chatline.db",
		JWTSecret:         "change-me",
		JWTIssuer:         "chatline",
		JWTAudience:       "chatline-clients",
		JWTTTL:            24 * time.Hour,
		AccessCookieName:  "accessToken",
		MaxMessageBytes:   64 * 1024,
		WriteTimeout:      5 * time.Second,
		SendBuffer:        64,
		InboundRateLimit:  120,
		LogLevel:          "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if other.AccessCookieName != "" {
		c.AccessCookieName = other.AccessCookieName
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.SendBuffer != 0 {
		c.SendBuffer = other.SendBuffer
	}
	if other.InboundRateLimit != 0 {
		c.InboundRateLimit = other.InboundRateLimit
	}
	if len(other.AllowedOrigins) > 0 {
		c.AllowedOrigins = other.AllowedOrigins
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogJSON {
		c.LogJSON = true
	}
}
