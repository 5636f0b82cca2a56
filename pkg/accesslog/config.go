package accesslog

import (
	"log/slog"
)

// Config controls access logging.
type Config struct {
	Enabled bool       // Whether the middleware logs at all
	Level   slog.Level // Level of non-5xx requests; 5xx are always logged at Error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Level:   slog.LevelInfo,
	}
}
