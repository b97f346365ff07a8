package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Xolot-32/lax-clock/go/internal/gameclock"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds process settings read from the environment.
type Config struct {
	Port           string
	LogLevel       string
	RulesFile      string
	AllowedOrigins []string
	NATS           NATSConfig
}

// NATSConfig holds JetStream settings for the game event feed.
// An empty URL disables publishing to NATS.
type NATSConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration
}

// NewConfigFromEnv reads environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RulesFile:      getEnv("RULES_FILE", ""),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			StreamName:    getEnv("NATS_STREAM", "GAME_EVENTS"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "game.events"),
			MaxReconnects: getEnvAsInt("NATS_MAX_RECONNECTS", -1),
			ReconnectWait: time.Duration(getEnvAsInt("NATS_RECONNECT_WAIT_SEC", 2)) * time.Second,
			MaxAge:        time.Duration(getEnvAsInt("NATS_MAX_AGE_HOURS", 24)) * time.Hour,
		},
	}
}

// Level returns the zerolog level for LogLevel, falling back to info.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

type rulesFile struct {
	Game gameclock.Rules `yaml:"game"`
}

// LoadRules reads game rules from a YAML file. Keys missing from the file
// keep their default values; an empty path returns the defaults.
func LoadRules(path string) (gameclock.Rules, error) {
	file := rulesFile{Game: gameclock.DefaultRules()}
	if path == "" {
		return file.Game, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return gameclock.Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}

	if err := yaml.Unmarshal(data, &file); err != nil {
		return gameclock.Rules{}, fmt.Errorf("failed to parse rules file: %w", err)
	}

	if err := file.Game.Validate(); err != nil {
		return gameclock.Rules{}, fmt.Errorf("invalid rules in %s: %w", path, err)
	}

	return file.Game, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
