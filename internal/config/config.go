// Package config contains the configuration loading logic of the frontbill service.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the runtime parameters of the frontbill service.
//
// CashVarianceHigh and LargeVarianceBps tune the reconciliation anomaly
// policy; the defaults are a starting policy, not a business rule.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	IdentityAddress  string `env:"IDENTITY_SYSTEM_ADDRESS"`
	AuthSecret       string `env:"AUTH_SECRET" envDefault:"frontbill-secret"`
	KafkaBrokers     string `env:"KAFKA_BROKERS"`
	CashVarianceHigh int64  `env:"CASH_VARIANCE_HIGH" envDefault:"10000"`
	LargeVarianceBps int64  `env:"LARGE_VARIANCE_BPS" envDefault:"100"`
}

// Parse reads the configuration from command-line flags and environment
// variables; environment values take precedence over flags.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envIdentityAddress := cfg.IdentityAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI (empty runs the in-memory development store)")
	flag.StringVar(&cfg.IdentityAddress, "r", "", "identity system address for approval role checks")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envIdentityAddress != "" {
		cfg.IdentityAddress = envIdentityAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
