package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sha1n/mcp-bookworm-server/internal/bookworm"
	"github.com/sha1n/mcp-bookworm-server/internal/config"
	"github.com/sha1n/mcp-bookworm-server/internal/results"
	"github.com/spf13/pflag"
)

// openService loads the counting service settings for the client
// subcommands. Only warnings are logged so stdout stays clean for output.
func openService(flags *pflag.FlagSet) (*bookworm.Service, error) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	settings, err := config.LoadSettingsWithFlags(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := config.ValidateBookwormSettings(&settings.Bookworm); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return bookworm.NewService(&settings.Bookworm)
}

func closeService(svc *bookworm.Service) {
	if err := svc.Close(); err != nil {
		slog.Error("Failed to close bookworm service", "error", err)
	}
}

// writeFrame renders the first limit rows of frame (all when limit is not
// positive).
func writeFrame(w io.Writer, frame *results.Frame, format string, limit int) error {
	shown := frame
	if limit > 0 {
		shown = frame.Head(limit)
	}

	switch strings.ToLower(format) {
	case "", bookworm.FormatTable:
		return shown.WriteTable(w)
	case bookworm.FormatCSV:
		return shown.WriteCSV(w)
	case bookworm.FormatJSON:
		data, err := shown.JSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		return fmt.Errorf("unsupported format %q (use table, csv, or json)", format)
	}
}

func validFormat(format string) error {
	switch strings.ToLower(format) {
	case "", bookworm.FormatTable, bookworm.FormatCSV, bookworm.FormatJSON:
		return nil
	}
	return fmt.Errorf("unsupported format %q (use table, csv, or json)", format)
}
