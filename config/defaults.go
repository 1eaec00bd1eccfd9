package config

import "github.com/spf13/viper"

// DefaultServerPort is the Casevine HTTP/WebSocket listen port
const DefaultServerPort = 8085

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "casevine.db")

	// Scheduler defaults
	v.SetDefault("scheduler.ticker_interval_seconds", 1) // How often to check for due jobs

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})

	// Email defaults
	v.SetDefault("email.smtp_host", "localhost")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.from_address", "noreply@casevine.example")

	// Logging defaults
	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "CASEVINE_DATABASE_PATH")
	v.BindEnv("email.username", "CASEVINE_EMAIL_USERNAME")
	v.BindEnv("email.password", "CASEVINE_EMAIL_PASSWORD")
}
