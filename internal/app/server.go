package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-bookworm-server/internal/auth"
	"github.com/sha1n/mcp-bookworm-server/internal/config"
	"github.com/sha1n/mcp-bookworm-server/internal/metrics"
)

const readHeaderTimeout = 10 * time.Second

// StartSSEServer starts the HTTP server with authentication
func StartSSEServer(s *mcp.Server, settings *config.Settings) error {
	srv, err := NewSSEServer(s, settings)
	if err != nil {
		return err
	}

	slog.Info("Server listening (HTTP)", "addr", srv.Addr, "auth_type", settings.Auth.Type)
	return srv.ListenAndServe()
}

// NewSSEServer creates the HTTP server. MCP is served over SSE on /sse and
// streamable HTTP on /mcp; /metrics exposes fetch metrics behind the same
// authentication, and /health stays open.
func NewSSEServer(s *mcp.Server, settings *config.Settings) (*http.Server, error) {
	getServer := func(*http.Request) *mcp.Server { return s }

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/sse", mcp.NewSSEHandler(getServer, nil))
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(getServer, nil))

	authMiddleware, err := auth.NewMiddleware(settings.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth middleware: %w", err)
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", settings.Host, settings.Port),
		Handler:           authMiddleware(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}, nil
}
