package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/identity-gateway/utils"
)

// AuthMode selects which identity path the gateway serves.
type AuthMode string

const (
	// AuthModeBearer verifies RS256 bearer tokens against the issuer's JWKS
	AuthModeBearer AuthMode = "bearer"
	// AuthModePrincipal trusts the platform-injected client principal header
	AuthModePrincipal AuthMode = "principal"
)

// Config represents the complete application configuration
type Config struct {
	Environment   string `validate:"required"`
	Server        ServerConfig
	Auth          AuthConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int           `validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	RequestTimeout  time.Duration `validate:"gt=0"`
}

// AuthConfig holds the identity provider settings. Tenant, audience and
// issuer are only required in bearer mode.
type AuthConfig struct {
	Mode             AuthMode      `validate:"oneof=bearer principal"`
	TenantID         string        `validate:"required_if=Mode bearer"`
	AuthorityHost    string        `validate:"required,url"`
	Audience         string        `validate:"required_if=Mode bearer"`
	Issuer           string        `validate:"required_if=Mode bearer"`
	JWKSURL          string        `validate:"required,url"`
	JWKSCacheTTL     time.Duration `validate:"gte=0"` // 0 keeps the first fetched key set for the process lifetime
	JWKSFetchTimeout time.Duration `validate:"gt=0"`
	JWKSPrefetch     bool
	Leeway           time.Duration `validate:"gte=0"`
	PrincipalHeader  string        `validate:"required"`
}

// CORSConfig holds the cross-origin policy
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	MaxAge           int `validate:"gte=0"`
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `validate:"oneof=debug info warn error"`
	LogFormat      string `validate:"oneof=json console text"` // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	authority := strings.TrimRight(getEnv("AUTHORITY_HOST", "https://login.microsoftonline.com"), "/")
	tenantID := getEnv("TENANT_ID", "")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			Mode:             AuthMode(strings.ToLower(getEnv("AUTH_MODE", string(AuthModeBearer)))),
			TenantID:         tenantID,
			AuthorityHost:    authority,
			Audience:         getEnv("AUDIENCE", ""),
			Issuer:           getEnv("ISSUER", defaultIssuer(tenantID)),
			JWKSURL:          getEnv("JWKS_URL", fmt.Sprintf("%s/%s/discovery/v2.0/keys", authority, tenantID)),
			JWKSCacheTTL:     getEnvAsDuration("JWKS_CACHE_TTL", 0),
			JWKSFetchTimeout: getEnvAsDuration("JWKS_FETCH_TIMEOUT", 10*time.Second),
			JWKSPrefetch:     getEnvAsBool("JWKS_PREFETCH", false),
			Leeway:           getEnvAsDuration("JWT_LEEWAY", 0),
			PrincipalHeader:  getEnv("PRINCIPAL_HEADER", "X-MS-CLIENT-PRINCIPAL"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 300),
		},
		Observability: ObservabilityConfig{
			LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
			LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "json")),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	if c.IsProduction() && c.Auth.Mode == AuthModeBearer && strings.HasPrefix(c.Auth.JWKSURL, "http://") {
		return fmt.Errorf("JWKS URL must use https in production")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// defaultIssuer is the v1 token issuer of an Entra ID tenant.
func defaultIssuer(tenantID string) string {
	if tenantID == "" {
		return ""
	}
	return fmt.Sprintf("https://sts.windows.net/%s/", tenantID)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice splits a comma separated list, dropping blank entries.
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
