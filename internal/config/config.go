// Package config содержит логику чтения конфигурации ассистента.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации ассистента.
type Config struct {
	RunAddress      string `env:"RUN_ADDRESS"`
	DatabaseURI     string `env:"DATABASE_URI"`
	ResolverAddress string `env:"RESOLVER_ADDRESS"`
	NotifyAddress   string `env:"NOTIFY_ADDRESS"`
	NotifyToken     string `env:"NOTIFY_TOKEN"`
	WebhookSecret   string `env:"WEBHOOK_SECRET"`
	SuperAdminID    int64  `env:"SUPER_ADMIN_ID"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envResolverAddress := cfg.ResolverAddress
	envNotifyAddress := cfg.NotifyAddress
	envSuperAdminID := cfg.SuperAdminID

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ResolverAddress, "r", "", "product resolver address")
	flag.StringVar(&cfg.NotifyAddress, "n", "", "chat gateway address")
	flag.Int64Var(&cfg.SuperAdminID, "s", 0, "super admin chat id")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envResolverAddress != "" {
		cfg.ResolverAddress = envResolverAddress
	}
	if envNotifyAddress != "" {
		cfg.NotifyAddress = envNotifyAddress
	}
	if envSuperAdminID != 0 {
		cfg.SuperAdminID = envSuperAdminID
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
