package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// EnvPrefix prefixes every environment variable read by LoadSettings.
const EnvPrefix = "BOOKWORM_MCP"

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// BookwormSettings configuration for the remote counting service
type BookwormSettings struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Database       string        `mapstructure:"database"`
	CountType      []string      `mapstructure:"counttype"`
	WordsCollation string        `mapstructure:"words_collation"`
	VerifyFields   bool          `mapstructure:"verify_fields"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CacheDir       string        `mapstructure:"cache_dir"`
	MaxRows        int           `mapstructure:"max_rows"`
}

// Settings application settings
type Settings struct {
	Transport string           `mapstructure:"transport"`
	Host      string           `mapstructure:"host"`
	Port      int              `mapstructure:"port"`
	Auth      AuthSettings     `mapstructure:"auth"`
	Bookworm  BookwormSettings `mapstructure:"bookworm"`
}

// flagBindings maps config keys to CLI flag names.
var flagBindings = map[string]string{
	"transport":                "transport",
	"host":                     "host",
	"port":                     "port",
	"auth.type":                "auth-type",
	"auth.basic.username":      "auth-basic-username",
	"auth.basic.password":      "auth-basic-password",
	"auth.api_keys":            "auth-api-keys",
	"bookworm.endpoint":        "endpoint",
	"bookworm.database":        "database",
	"bookworm.counttype":       "counttype",
	"bookworm.words_collation": "words-collation",
	"bookworm.verify_fields":   "verify-fields",
	"bookworm.timeout":         "timeout",
	"bookworm.cache_dir":       "cache-dir",
	"bookworm.max_rows":        "max-rows",
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// Flags missing from the set are skipped, so subcommands may register a subset.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("auth.type", AuthTypeNone)

	// Bookworm defaults
	v.SetDefault("bookworm.endpoint", "")
	v.SetDefault("bookworm.database", "")
	v.SetDefault("bookworm.counttype", []string{"TextCount", "WordCount"})
	v.SetDefault("bookworm.words_collation", "Case_Sensitive")
	v.SetDefault("bookworm.verify_fields", true)
	v.SetDefault("bookworm.timeout", 30*time.Second)
	v.SetDefault("bookworm.cache_dir", defaultCacheDir())
	v.SetDefault("bookworm.max_rows", 50)

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind nested keys explicitly; AutomaticEnv alone does not reach them on Unmarshal
	for key := range flagBindings {
		_ = v.BindEnv(key, envName(key))
	}

	if flags != nil {
		for key, flag := range flagBindings {
			if f := flags.Lookup(flag); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	settings.Auth.APIKeys = splitList(settings.Auth.APIKeys, os.Getenv(envName("auth.api_keys")))
	settings.Bookworm.CountType = splitList(settings.Bookworm.CountType, os.Getenv(envName("bookworm.counttype")))
	settings.Bookworm.Endpoint = strings.TrimSpace(settings.Bookworm.Endpoint)
	settings.Bookworm.CacheDir = expandHomeDir(settings.Bookworm.CacheDir)

	return &settings, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// splitList handles comma-separated env values that viper hands over as a
// single element, then trims and drops empty entries.
func splitList(values []string, env string) []string {
	if env != "" && (len(values) == 0 || (len(values) == 1 && strings.Contains(values[0], ","))) {
		values = strings.Split(env, ",")
	}
	var result []string
	for _, s := range values {
		if s = strings.TrimSpace(s); s != "" {
			result = append(result, s)
		}
	}
	return result
}

// defaultCacheDir returns the default directory for cached field values
func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bookworm-mcp"
	}
	return filepath.Join(home, ".bookworm-mcp")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete config.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	if err := ValidateAuthSettings(&s.Auth); err != nil {
		return err
	}

	return ValidateBookwormSettings(&s.Bookworm)
}

// ValidateAuthSettings checks that the auth type and credentials agree.
func ValidateAuthSettings(a *AuthSettings) error {
	hasBasicCreds := a.Basic.Username != "" || a.Basic.Password != ""
	hasAPIKeys := len(a.APIKeys) > 0

	switch a.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if a.Basic.Username == "" || a.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + a.Type)
	}
	return nil
}

// ValidateBookwormSettings validates the counting service configuration
func ValidateBookwormSettings(b *BookwormSettings) error {
	if b.Endpoint == "" {
		return errors.New("endpoint is required (--endpoint or " + envName("bookworm.endpoint") + ")")
	}
	if !strings.HasPrefix(b.Endpoint, "http://") && !strings.HasPrefix(b.Endpoint, "https://") {
		return errors.New("endpoint must be an http or https URL, got: " + b.Endpoint)
	}
	if len(b.CountType) == 0 {
		return errors.New("counttype requires at least one count type")
	}
	if b.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if b.MaxRows <= 0 {
		return errors.New("max-rows must be positive")
	}
	if b.CacheDir == "" {
		return errors.New("cache-dir cannot be empty")
	}
	return nil
}
