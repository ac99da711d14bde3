package config

import (
	"github.com/rs/zerolog/log"
)

// Database configuration. The cache tables are optional: without DB_USER and DB_NAME
// the data proxy handlers that need them answer 503.
var (
	DatabaseEnabled bool
	DBHost          string
	DBPort          int
	DBUser          string
	DBPassword      string
	DBName          string
	DBSSLMode       string
)

func loadDatabaseConfig() error {
	var err error

	DBHost = getEnvOrDefault("DB_HOST", "localhost")
	DBPort, err = getEnvAsIntOrDefault("DB_PORT", 5432)
	if err != nil {
		return err
	}
	DBUser = getEnvOrDefault("DB_USER", "")
	DBPassword = getEnvOrDefault("DB_PASSWORD", "")
	DBName = getEnvOrDefault("DB_NAME", "")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")
	DatabaseEnabled = DBUser != "" && DBName != ""

	log.Debug().
		Bool("DatabaseEnabled", DatabaseEnabled).
		Str("DBHost", DBHost).
		Int("DBPort", DBPort).
		Str("DBName", DBName).
		Msg("Database configuration loaded successfully.")
	return nil
}
