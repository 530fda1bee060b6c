package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-bookworm-server/internal/bookworm"
	"github.com/sha1n/mcp-bookworm-server/internal/config"
	mcputil "github.com/sha1n/mcp-bookworm-server/internal/mcp"
	"github.com/spf13/pflag"
)

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(*mcp.Server, *config.Settings) error
	CreateServer      func(*config.Settings) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// stdout belongs to the stdio transport
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting MCP Bookworm server", "version", version)
	config.Log(settings)

	mcpServer, cleanup, err := params.CreateServer(settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	switch settings.Transport {
	case "sse":
		slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
		return params.StartSSEServer(mcpServer, settings)
	default:
		// Custom transports are injected by tests
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}
}

// CreateMCPServer creates the MCP server with the bookworm tools registered.
// The default database's field catalog is loaded up front when field
// verification is on; a failure there is logged and the catalog is fetched
// again on first use.
func CreateMCPServer(settings *config.Settings) (*mcp.Server, func(), error) {
	svc, err := bookworm.NewService(&settings.Bookworm)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bookworm service: %w", err)
	}

	if settings.Bookworm.VerifyFields && settings.Bookworm.Database != "" {
		preloadCatalog(svc, settings.Bookworm.Timeout)
	}

	cleanup := func() {
		if err := svc.Close(); err != nil {
			slog.Error("Failed to close bookworm service", "error", err)
		}
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:        "bookworm-mcp",
		Version:     "1.0.0",
		BookwormSvc: svc,
	})

	return server, cleanup, nil
}

func preloadCatalog(svc *bookworm.Service, timeout time.Duration) {
	if timeout <= 0 {
		timeout = bookworm.DefaultTimeout
	}
	// Not tied to any request context
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if _, err := svc.Catalog(ctx, ""); err != nil {
		slog.Warn("Field catalog preload failed", "database", svc.GetSettings().Database, "error", err)
	}
}
