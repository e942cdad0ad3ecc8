package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// config holds gridlab-client's runtime configuration, loaded from an
// optional .env file and then the process environment.
type config struct {
	ServerURL string `env:"GRIDLAB_SERVER_URL" envDefault:"ws://127.0.0.1:8080/"`
	GridID    string `env:"GRIDLAB_GRID_ID" envDefault:"demo"`
	ClientID  string `env:"GRIDLAB_CLIENT_ID" envDefault:""`
	LogLevel  string `env:"GRIDLAB_LOG_LEVEL" envDefault:"info"`
}

// loadConfig reads .env (if present) then the environment into config.
func loadConfig(logger *zerolog.Logger) (*config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, using environment variables only")
	}

	cfg := &config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
