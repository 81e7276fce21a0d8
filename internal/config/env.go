// Package config reads process settings from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds settings that deployments override without touching flags.
type Env struct {
	LogLevel        string `env:"TMG_LOG_LEVEL" envDefault:"info"`
	LogFormat       string `env:"TMG_LOG_FORMAT" envDefault:"json"`
	EnableAdminHTTP bool   `env:"TMG_ENABLE_ADMIN_HTTP" envDefault:"false"`
	// Seed overrides -seed when non-zero.
	Seed int64 `env:"TMG_SEED"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func Load() (Env, error) {
	var e Env
	err := ParseEnv(&e)
	return e, err
}
