package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-bookworm-server/internal/bookworm"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name        string
	Version     string
	BookwormSvc *bookworm.Service
}

// CreateServer creates and configures the MCP server. Tools are registered
// only when a counting service is configured.
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.BookwormSvc != nil {
		bookworm.RegisterQueryTool(s, cfg.BookwormSvc)
		bookworm.RegisterFieldTools(s, cfg.BookwormSvc)
	}

	return s
}
