// Package config parses service configuration out of the process environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load fills cfg from environment variables according to its `env` struct
// tags. Defaults come from `envDefault`; list values split on `envSeparator`.
//
//	type Config struct {
//	    Port    int      `env:"HTTP_PORT" envDefault:"8080"`
//	    Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
