package config

import (
	"context"
	"log/slog"
)

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == "sse" {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}

	logger.InfoContext(ctx, "Config: auth.type", "value", s.Auth.Type)
	switch s.Auth.Type {
	case AuthTypeBasic:
		logger.InfoContext(ctx, "Config: auth.basic.username", "value", s.Auth.Basic.Username)
		logger.InfoContext(ctx, "Config: auth.basic.password", "value", "****")
	case AuthTypeAPIKey:
		logger.InfoContext(ctx, "Config: auth.api_keys", "count", len(s.Auth.APIKeys))
	}

	logger.InfoContext(ctx, "Config: bookworm", "value", BookwormSettingsLogValue(s.Bookworm))
}

// AuthSettingsLogValue returns a slog.Value for AuthSettings with masked data
func AuthSettingsLogValue(s AuthSettings) slog.Value {
	keys := make([]string, len(s.APIKeys))
	for i := range s.APIKeys {
		keys[i] = "****"
	}
	return slog.GroupValue(
		slog.String("type", s.Type),
		slog.String("username", s.Basic.Username),
		slog.String("password", "****"),
		slog.Any("api_keys", keys),
	)
}

// BookwormSettingsLogValue returns a slog.Value for BookwormSettings
func BookwormSettingsLogValue(s BookwormSettings) slog.Value {
	attrs := []slog.Attr{
		slog.String("endpoint", s.Endpoint),
		slog.Any("counttype", s.CountType),
		slog.Bool("verify_fields", s.VerifyFields),
		slog.Duration("timeout", s.Timeout),
		slog.String("cache_dir", s.CacheDir),
		slog.Int("max_rows", s.MaxRows),
	}
	if s.Database != "" {
		attrs = append(attrs, slog.String("database", s.Database))
	}
	return slog.GroupValue(attrs...)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.Any("auth", AuthSettingsLogValue(s.Auth)),
		slog.Any("bookworm", BookwormSettingsLogValue(s.Bookworm)),
	)
}
