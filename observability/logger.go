package observability

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel   = "SPECTRO_LOG_LEVEL"
	EnvLogJSON    = "SPECTRO_LOG_JSON"
	EnvLogNoColor = "SPECTRO_LOG_NOCOLOR"
)

type LogConfig struct {
	Level   string `toml:"level"`
	JSON    bool   `toml:"json"`
	NoColor bool   `toml:"no_color"`
}

func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info"}
}

// InitLogger builds the process logger, applies environment overrides and
// installs it as the zerolog global.
func InitLogger(app string, cfg LogConfig) zerolog.Logger {
	applyEnvOverrides(&cfg)
	return initLogger(os.Stdout, app, cfg)
}

func initLogger(out io.Writer, app string, cfg LogConfig) zerolog.Logger {
	level, ok := ParseLevel(cfg.Level)
	if !ok {
		level = zerolog.InfoLevel
	}
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor,
		}
	}
	logger := zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

func applyEnvOverrides(cfg *LogConfig) {
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		if _, ok := ParseLevel(raw); ok {
			cfg.Level = raw
		}
	}
	if v, ok := parseBool(os.Getenv(EnvLogJSON)); ok {
		cfg.JSON = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// ParseLevel accepts the usual level names plus "off" and friends.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "", "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
