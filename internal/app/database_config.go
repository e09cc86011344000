package app

import (
	"strings"

	"github.com/charlesng35/get2knowme/internal/database"
)

// ConnectionConfig converts DatabaseConfig into the parameters expected by database.Open.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	cfg := database.Config{
		Driver:          driver,
		Path:            c.Path,
		DSN:             strings.TrimSpace(c.DSN),
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	var auth DBAuthConfig
	switch driver {
	case "postgres", "postgresql":
		auth = c.Postgres
	case "mysql":
		auth = c.MySQL
	default:
		return cfg
	}

	cfg.Host = auth.Host
	cfg.Port = auth.Port
	cfg.Name = auth.Database
	cfg.User = auth.Username
	cfg.Password = auth.Password
	return cfg
}

// ConnectionConfig converts MongoConfig into the database package representation.
func (c MongoConfig) ConnectionConfig() database.MongoConfig {
	return database.MongoConfig{
		URI:            strings.TrimSpace(c.URI),
		Database:       strings.TrimSpace(c.Database),
		ConnectTimeout: c.ConnectTimeout,
	}
}
