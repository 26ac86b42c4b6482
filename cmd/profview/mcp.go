package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/profview/profview/internal/api"
	"github.com/profview/profview/internal/config"
	"github.com/profview/profview/internal/logging"
	"github.com/profview/profview/internal/profiler"
	"github.com/profview/profview/internal/storage"
	"github.com/profview/profview/internal/viewcache"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP interface on stdio",
	Long: `Serve the MCP interface on stdio.

Exposes runs and reports to MCP clients over the local store. Intended
to be launched by an MCP host; stdout carries the protocol, logs go to
stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	presets, err := loadPresets(cfg.Presets.Path)
	if err != nil {
		return err
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:    store,
		Reports:  viewcache.NewManager(store),
		Profiler: profiler.New(profilerOptions(cfg), slog.Default()),
		Presets:  presets,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stdio := server.NewStdioServer(mcpSrv)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
