package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
	_ "time/tzdata" // Hosts without zoneinfo still resolve TIMEZONE.

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const DefaultInterval = 60 * time.Second

type Config struct {
	CredentialsPath string        `env:"CREDENTIALS_PATH" envDefault:"credentials.json"`
	SessionPath     string        `env:"SESSION_PATH"     envDefault:"session.json"`
	DBPath          string        `env:"DB_PATH"          envDefault:"stories.db"`
	DownloadDir     string        `env:"DOWNLOAD_DIR"     envDefault:"."`
	ExportDir       string        `env:"EXPORT_DIR"       envDefault:"."`
	Interval        time.Duration `env:"INTERVAL"`
	Timezone        string        `env:"TIMEZONE"         envDefault:"Europe/Stockholm"`
	IncludeHidden   bool          `env:"INCLUDE_HIDDEN"`
	LogLevel        slog.Level    `env:"LOG_LEVEL"        envDefault:"info"`
	NotifyBotToken  string        `env:"NOTIFY_BOT_TOKEN"`
	NotifyChatID    int64         `env:"NOTIFY_CHAT_ID"`
}

// Load reads an optional .env file and then the process environment.
func Load(dotenvPaths ...string) (Config, error) {
	if err := godotenv.Load(dotenvPaths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env file: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", c.Timezone, err)
	}

	return loc, nil
}

func (c Config) NotificationsEnabled() bool {
	return c.NotifyBotToken != "" && c.NotifyChatID != 0
}
