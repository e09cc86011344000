package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the Get2KnowMe backend.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Mongo        MongoConfig        `mapstructure:"mongo"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Registration RegistrationConfig `mapstructure:"registration"`
	Security     SecurityConfig     `mapstructure:"security"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Email        EmailConfig        `mapstructure:"email"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
	Maintenance  MaintenanceConfig  `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	LogLevel        string          `mapstructure:"log_level"`
	LogFormat       string          `mapstructure:"log_format"`
	CORSOrigins     []string        `mapstructure:"cors_origins"`
	TrustedProxies  []string        `mapstructure:"trusted_proxies"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds requests per client on the public endpoints.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
// Driver "mongo" selects the document store configured under MongoConfig.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	Postgres        DBAuthConfig  `mapstructure:"postgres"`
	MySQL           DBAuthConfig  `mapstructure:"mysql"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MongoConfig holds the MongoDB connection settings.
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RegistrationConfig controls pending record lifetimes and the links mailed out.
type RegistrationConfig struct {
	PublicURL           string              `mapstructure:"public_url"`
	ConfirmationTTL     time.Duration       `mapstructure:"confirmation_ttl"`
	ConsentTTL          time.Duration       `mapstructure:"consent_ttl"`
	ConfirmEmailPath    string              `mapstructure:"confirm_email_path"`
	ParentalConsentPath string              `mapstructure:"parental_consent_path"`
	TokenBytes          int                 `mapstructure:"token_bytes"`
	BcryptCost          int                 `mapstructure:"bcrypt_cost"`
	PasswordReset       PasswordResetConfig `mapstructure:"password_reset"`
}

// PasswordResetConfig controls reset token lifetime and link path.
type PasswordResetConfig struct {
	TTL  time.Duration `mapstructure:"ttl"`
	Path string        `mapstructure:"path"`
}

// SecurityConfig carries the field encryption secrets.
type SecurityConfig struct {
	FieldEncryptionKey  string `mapstructure:"field_encryption_key"`
	FieldEncryptionSalt string `mapstructure:"field_encryption_salt"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	Provider     string         `mapstructure:"provider"`
	From         string         `mapstructure:"from"`
	ProductName  string         `mapstructure:"product_name"`
	SupportEmail string         `mapstructure:"support_email"`
	Postmark     PostmarkConfig `mapstructure:"postmark"`
	SMTP         SMTPConfig     `mapstructure:"smtp"`
}

// PostmarkConfig configures the Postmark transactional API.
type PostmarkConfig struct {
	ServerToken   string        `mapstructure:"server_token"`
	MessageStream string        `mapstructure:"message_stream"`
	Endpoint      string        `mapstructure:"endpoint"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MaintenanceConfig schedules the expired record sweep.
type MaintenanceConfig struct {
	SweepEnabled  bool          `mapstructure:"sweep_enabled"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	SweepTimeout  time.Duration `mapstructure:"sweep_timeout"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("GET2KNOWME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit.requests", 20)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/get2knowme.sqlite")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "0s")

	v.SetDefault("mongo.uri", "mongodb://127.0.0.1:27017")
	v.SetDefault("mongo.database", "get2knowme")
	v.SetDefault("mongo.connect_timeout", "10s")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("registration.public_url", "http://localhost:3000")
	v.SetDefault("registration.confirmation_ttl", "24h")
	v.SetDefault("registration.consent_ttl", "24h")
	v.SetDefault("registration.confirm_email_path", "/confirm-email")
	v.SetDefault("registration.parental_consent_path", "/parental-consent")
	v.SetDefault("registration.token_bytes", 48)
	v.SetDefault("registration.bcrypt_cost", 0)
	v.SetDefault("registration.password_reset.ttl", "1h")
	v.SetDefault("registration.password_reset.path", "/reset-password")

	v.SetDefault("security.field_encryption_key", "")
	v.SetDefault("security.field_encryption_salt", "")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "get2knowme")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")

	v.SetDefault("email.provider", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.product_name", "Get2KnowMe")
	v.SetDefault("email.support_email", "")
	v.SetDefault("email.postmark.server_token", "")
	v.SetDefault("email.postmark.message_stream", "outbound")
	v.SetDefault("email.postmark.endpoint", "")
	v.SetDefault("email.postmark.timeout", "10s")
	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("maintenance.sweep_enabled", true)
	v.SetDefault("maintenance.sweep_schedule", "@every 5m")
	v.SetDefault("maintenance.sweep_timeout", "30s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// UsesMongo reports whether the document store backend is selected.
func (c DatabaseConfig) UsesMongo() bool {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	return driver == "mongo" || driver == "mongodb"
}
