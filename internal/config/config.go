// Package config provides Viper-based configuration loading for the Tak server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds top-level server settings.
type ServerConfig struct {
	// Name is the server identity announced to clients at connect time.
	Name string `mapstructure:"name"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings for the rating event stream.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g. redis://localhost:6379).
	URL string `mapstructure:"url"`
	// Stream is the stream key game-completion events are appended to.
	Stream string `mapstructure:"stream"`
	// PoolSize is the connection pool size.
	PoolSize int `mapstructure:"pool_size"`
}

// TelnetConfig holds line-protocol acceptor settings.
type TelnetConfig struct {
	// Host is the bind address for the TCP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-read timeout for client connections.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout for client connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (t TelnetConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// GameConfig holds session and game-session policy settings.
type GameConfig struct {
	// AuthRetryLimit is the number of failed login attempts before the
	// connection is closed.
	AuthRetryLimit int `mapstructure:"auth_retry_limit"`
	// LivenessWindow is the duration without input (including PING) after
	// which a connection is considered disconnected.
	LivenessWindow time.Duration `mapstructure:"liveness_window"`
	// DisconnectGrace is the window after a disconnect during which a
	// reconnecting player resumes their game without forfeiting.
	DisconnectGrace time.Duration `mapstructure:"disconnect_grace"`
	// PauseClockOnDisconnect pauses the disconnected player's clock for the
	// duration of the grace window. When false the clock keeps running, which
	// matches the legacy server's behavior.
	PauseClockOnDisconnect bool `mapstructure:"pause_clock_on_disconnect"`
	// PendingTimeout voids a freshly matched game if no move arrives.
	PendingTimeout time.Duration `mapstructure:"pending_timeout"`
	// RematchWindow is how long a completed game stays addressable for
	// rematch offers before being swept.
	RematchWindow time.Duration `mapstructure:"rematch_window"`
	// PresetsPath points at the board preset YAML content file. Empty uses
	// the built-in presets.
	PresetsPath string `mapstructure:"presets_path"`
	// RulesScript points at a Lua rules-engine script. Empty selects the
	// permissive engine.
	RulesScript string `mapstructure:"rules_script"`
}

// IdentityConfig holds credential verification settings.
type IdentityConfig struct {
	// TokenSigningKey is the HMAC key for session token verification.
	// Empty disables token login.
	TokenSigningKey string `mapstructure:"token_signing_key"`
	// AllowGuests permits "Login Guest" sessions.
	AllowGuests bool `mapstructure:"allow_guests"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Telnet   TelnetConfig   `mapstructure:"telnet"`
	Game     GameConfig     `mapstructure:"game"`
	Identity IdentityConfig `mapstructure:"identity"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateRedis(c.Redis); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTelnet(c.Telnet); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	if s.Name == "" {
		return errors.New("server.name must not be empty")
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRedis(r RedisConfig) error {
	var errs []string
	if r.URL == "" {
		errs = append(errs, "redis.url must not be empty")
	}
	if r.Stream == "" {
		errs = append(errs, "redis.stream must not be empty")
	}
	if r.PoolSize < 1 {
		errs = append(errs, fmt.Sprintf("redis.pool_size must be >= 1, got %d", r.PoolSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTelnet(t TelnetConfig) error {
	var errs []string
	if t.Port < 1 || t.Port > 65535 {
		errs = append(errs, fmt.Sprintf("telnet.port must be 1-65535, got %d", t.Port))
	}
	if t.ReadTimeout < 0 {
		errs = append(errs, "telnet.read_timeout must not be negative")
	}
	if t.WriteTimeout < 0 {
		errs = append(errs, "telnet.write_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.AuthRetryLimit < 1 {
		errs = append(errs, fmt.Sprintf("game.auth_retry_limit must be >= 1, got %d", g.AuthRetryLimit))
	}
	if g.LivenessWindow <= 0 {
		errs = append(errs, "game.liveness_window must be positive")
	}
	if g.DisconnectGrace <= 0 {
		errs = append(errs, "game.disconnect_grace must be positive")
	}
	if g.PendingTimeout <= 0 {
		errs = append(errs, "game.pending_timeout must be positive")
	}
	if g.RematchWindow <= 0 {
		errs = append(errs, "game.rematch_window must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with TAK_ prefix
	v.SetEnvPrefix("TAK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "takserver")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tak")
	v.SetDefault("database.password", "tak")
	v.SetDefault("database.name", "tak")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.url", "redis://localhost:6379")
	v.SetDefault("redis.stream", "tak:game_completed")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("telnet.host", "0.0.0.0")
	v.SetDefault("telnet.port", 10000)
	v.SetDefault("telnet.read_timeout", "5m")
	v.SetDefault("telnet.write_timeout", "30s")

	v.SetDefault("game.auth_retry_limit", 3)
	v.SetDefault("game.liveness_window", "2m")
	v.SetDefault("game.disconnect_grace", "30s")
	v.SetDefault("game.pause_clock_on_disconnect", true)
	v.SetDefault("game.pending_timeout", "30s")
	v.SetDefault("game.rematch_window", "5m")
	v.SetDefault("game.presets_path", "")
	v.SetDefault("game.rules_script", "")

	v.SetDefault("identity.token_signing_key", "")
	v.SetDefault("identity.allow_guests", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
