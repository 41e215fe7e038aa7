package config

import (
	"strings"
	"time"
)

// Config is the complete typed configuration for the vimarsh service.
// Values resolve from (highest precedence first) process environment,
// then struct defaults. Each section is validated independently so a
// broken non-critical section degrades instead of refusing startup.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"   validate:"required"`
	Auth      AuthConfig      `koanf:"auth"`
	LLM       LLMConfig       `koanf:"llm"`
	Vector    VectorConfig    `koanf:"vector"`
	Budget    BudgetConfig    `koanf:"budget"`
	Admin     AdminConfig     `koanf:"admin"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Runtime   RuntimeConfig   `koanf:"runtime"`
	App       AppConfig       `koanf:"app"`
}

// ServerConfig contains the HTTP edge configuration.
type ServerConfig struct {
	Host        string        `koanf:"host"         env:"SERVER_HOST"`
	Port        int           `koanf:"port"         env:"SERVER_PORT"    validate:"min=1,max=65535"`
	Timeout     time.Duration `koanf:"timeout"      env:"SERVER_TIMEOUT"`
	CORSOrigins string        `koanf:"cors_origins" env:"CORS_ORIGINS"`
}

// AllowedOrigins splits the comma-separated CORS_ORIGINS value.
func (s ServerConfig) AllowedOrigins() []string {
	return splitCSV(s.CORSOrigins)
}

// StorageConfig covers both halves of the dual store.
type StorageConfig struct {
	LocalDir       string          `koanf:"local_dir"       env:"STORAGE_LOCAL_DIR"`
	RemoteDSN      SensitiveString `koanf:"remote_dsn"      env:"STORAGE_REMOTE_DSN"   sensitive:"true"`
	RemoteEndpoint string          `koanf:"remote_endpoint" env:"COSMOS_DB_ENDPOINT"`
	RemoteKey      SensitiveString `koanf:"remote_key"      env:"COSMOS_DB_KEY"        sensitive:"true"`
}

// RemoteConfigured reports whether a remote document store can be reached.
func (s StorageConfig) RemoteConfigured() bool {
	return s.RemoteDSN != "" || (s.RemoteEndpoint != "" && s.RemoteKey != "")
}

// AuthConfig selects the token-validation path.
type AuthConfig struct {
	Enabled   bool   `koanf:"enabled"   env:"ENABLE_AUTH"`
	Mode      string `koanf:"mode"      env:"AUTH_MODE"       validate:"omitempty,oneof=development production"`
	TenantID  string `koanf:"tenant_id" env:"AZURE_TENANT_ID"`
	ClientID  string `koanf:"client_id" env:"ENTRA_CLIENT_ID"`
	Authority string `koanf:"authority" env:"AUTH_AUTHORITY"`
}

// LLMConfig carries provider credentials and generation defaults.
type LLMConfig struct {
	APIKey      SensitiveString `koanf:"api_key"     env:"GEMINI_API_KEY" sensitive:"true"`
	Model       string          `koanf:"model"       env:"LLM_MODEL"`
	MaxTokens   int             `koanf:"max_tokens"  env:"MAX_TOKENS"     validate:"min=1"`
	Temperature float64         `koanf:"temperature" env:"LLM_TEMPERATURE"`
}

// VectorConfig configures the personality-partitioned index.
type VectorConfig struct {
	Provider  string `koanf:"provider"  env:"VECTOR_PROVIDER" validate:"omitempty,oneof=memory remote"`
	Dimension int    `koanf:"dimension" env:"VECTOR_DIMENSION" validate:"min=1"`
	Endpoint  string `koanf:"endpoint"  env:"VECTOR_ENDPOINT"`
}

// BudgetConfig supplies the default per-user caps materialized on first use.
type BudgetConfig struct {
	DefaultMonthlyUSD float64 `koanf:"default_monthly" env:"DEFAULT_MONTHLY_BUDGET" validate:"min=0"`
	DefaultDailyUSD   float64 `koanf:"default_daily"   env:"DEFAULT_DAILY_BUDGET"   validate:"min=0"`
	DefaultRequestUSD float64 `koanf:"default_request" env:"DEFAULT_REQUEST_BUDGET" validate:"min=0"`
}

// AdminConfig holds the role allow-lists (comma-separated, case-insensitive).
type AdminConfig struct {
	AdminEmails      string `koanf:"admin_emails"       env:"ADMIN_EMAILS"`
	SuperAdminEmails string `koanf:"super_admin_emails" env:"SUPER_ADMIN_EMAILS"`
}

func (a AdminConfig) AdminList() []string      { return splitCSV(a.AdminEmails) }
func (a AdminConfig) SuperAdminList() []string { return splitCSV(a.SuperAdminEmails) }

// RateLimitConfig sets the sliding-window request ceilings per minute.
type RateLimitConfig struct {
	GeneralPerMinute int           `koanf:"general_per_minute" env:"RATELIMIT_GENERAL" validate:"min=1"`
	AdminPerMinute   int           `koanf:"admin_per_minute"   env:"RATELIMIT_ADMIN"   validate:"min=1"`
	AuthPerMinute    int           `koanf:"auth_per_minute"    env:"RATELIMIT_AUTH"    validate:"min=1"`
	BlockDuration    time.Duration `koanf:"block_duration"     env:"RATELIMIT_BLOCK_DURATION"`
}

// RuntimeConfig holds process-level behavior.
type RuntimeConfig struct {
	Environment string `koanf:"environment"  env:"ENVIRONMENT" validate:"omitempty,oneof=development staging production"`
	LogLevel    string `koanf:"log_level"    env:"LOG_LEVEL"   validate:"omitempty,oneof=debug info warn error"`
	HostingSite string `koanf:"hosting_site" env:"WEBSITE_SITE_NAME"`
}

// AppConfig holds application defaults.
type AppConfig struct {
	DefaultLanguage    string `koanf:"default_language"    env:"DEFAULT_LANGUAGE"`
	SupportedLanguages string `koanf:"supported_languages" env:"SUPPORTED_LANGUAGES"`
	DefaultPersonality string `koanf:"default_personality" env:"DEFAULT_PERSONALITY"`
}

func (a AppConfig) Languages() []string { return splitCSV(a.SupportedLanguages) }

// Default returns the configuration used when no environment overrides exist.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Timeout:     60 * time.Second,
			CORSOrigins: "http://localhost:3000",
		},
		Storage: StorageConfig{
			LocalDir: "vimarsh-db",
		},
		Auth: AuthConfig{
			Mode: "development",
		},
		LLM: LLMConfig{
			Model:       "gemini-2.5-flash",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Vector: VectorConfig{
			Provider:  "memory",
			Dimension: 384,
		},
		Budget: BudgetConfig{
			DefaultMonthlyUSD: 50.0,
			DefaultDailyUSD:   5.0,
			DefaultRequestUSD: 0.50,
		},
		RateLimit: RateLimitConfig{
			GeneralPerMinute: 100,
			AdminPerMinute:   50,
			AuthPerMinute:    20,
			BlockDuration:    15 * time.Minute,
		},
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
		},
		App: AppConfig{
			DefaultLanguage:    "en",
			SupportedLanguages: "en,hi",
			DefaultPersonality: "krishna",
		},
	}
}

// IsProduction reports whether the resolved mode is production. Either an
// explicit ENVIRONMENT=production or a production hosting site forces it.
func (c *Config) IsProduction() bool {
	if strings.EqualFold(c.Runtime.Environment, "production") {
		return true
	}
	return c.Runtime.HostingSite != ""
}

// ApplyMode finalizes auto-detected settings: production always enforces
// authentication regardless of ENABLE_AUTH.
func (c *Config) ApplyMode() {
	if c.IsProduction() {
		c.Auth.Enabled = true
		if c.Auth.Mode == "" || c.Auth.Mode == "development" {
			c.Auth.Mode = "production"
		}
	}
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
