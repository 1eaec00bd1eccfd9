package config

import "time"

// Config represents the core Casevine configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Email     EmailConfig     `mapstructure:"email"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the Casevine web server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SchedulerConfig configures the deferred job engine
type SchedulerConfig struct {
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds"` // How often to check for due jobs (default: 1)
}

// EmailConfig configures outbound mail delivery
type EmailConfig struct {
	SMTPHost    string `mapstructure:"smtp_host"`
	SMTPPort    int    `mapstructure:"smtp_port"`
	FromAddress string `mapstructure:"from_address"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

// LogConfig configures structured logging output
type LogConfig struct {
	JSON bool `mapstructure:"json"` // machine-readable output for deployed instances
}

// TickerInterval returns the engine polling interval as a duration.
// Values <= 0 fall back to 1 second.
func (c *SchedulerConfig) TickerInterval() time.Duration {
	if c.TickerIntervalSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.TickerIntervalSeconds) * time.Second
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "casevine.db" // Fallback default
	}
	return c.Database.Path
}
