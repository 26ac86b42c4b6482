package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/profview/profview/internal/api"
	"github.com/profview/profview/internal/config"
	"github.com/profview/profview/internal/ingest"
	"github.com/profview/profview/internal/logging"
	"github.com/profview/profview/internal/preset"
	"github.com/profview/profview/internal/profiler"
	"github.com/profview/profview/internal/storage"
	"github.com/profview/profview/internal/viewcache"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the profview server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return runServer(addr)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running profview server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show profview server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "profview.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func profilerOptions(cfg config.Config) profiler.Options {
	opts := profiler.Options{
		SampleSize:     cfg.Profiler.SampleSize,
		ChunkSize:      cfg.Profiler.ChunkSize,
		Workers:        cfg.Profiler.Workers,
		QuantileGroups: cfg.Profiler.QuantileGroups,
		HistogramBins:  cfg.Profiler.HistogramBins,
	}
	if cfg.Profiler.Seed > 0 {
		opts.Seed = uint64(cfg.Profiler.Seed)
	}
	return opts
}

func loadPresets(path string) (*preset.Library, error) {
	if path == "" {
		return preset.Builtin(), nil
	}
	lib, err := preset.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading presets: %w", err)
	}
	return lib, nil
}

func runServer(addrOverride string) error {
	fmt.Fprintf(os.Stderr, "profview version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	// Write PID file. Check if a server is already running via the health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := baseURLFromAddr(cfg.Server.Addr) + "/health"
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("profview is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("profview is already running on %s", cfg.Server.Addr)
		return fmt.Errorf("server already running on %s", cfg.Server.Addr)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	presets, err := loadPresets(cfg.Presets.Path)
	if err != nil {
		return err
	}

	prof := profiler.New(profilerOptions(cfg), slog.Default())
	cache := viewcache.NewManager(store)

	handler := api.NewAppHandler(api.AppDeps{
		Store:        store,
		Cache:        cache,
		Presets:      presets,
		Token:        cfg.Server.Token,
		DataDir:      cfg.Storage.DataDir,
		MaxBodyBytes: int64(cfg.Server.MaxBodyMB) << 20,
	})

	// Profiling jobs run in-process next to the server.
	worker := ingest.NewWorker(store, prof, ingest.OpenRunSource, 500*time.Millisecond)
	if n, err := store.CountPendingJobs(ingest.JobType); err == nil && n > 0 {
		slog.Info("resuming queued profile jobs", "count", n)
	}
	go worker.Run(ctx)

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Addr, err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	srv := &http.Server{Handler: handler}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("profview listening", "addr", cfg.Server.Addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("profview is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop profview (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to profview (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	base := baseURLFromAddr(cfg.Server.Addr)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(base + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on %s", cfg.Server.Addr)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Server.Token == "" {
		printStatus("Auth", "disabled (no token configured)")
	} else {
		printStatus("Auth", "bearer token")
	}

	// Show run counts if the server is up.
	if running {
		runsResp, err := apiGet(client, base+"/runs?limit=100", cfg.Server.Token)
		if err == nil {
			var runs []json.RawMessage
			if json.NewDecoder(runsResp.Body).Decode(&runs) == nil {
				printStatus("Runs", "%s", countLabel(len(runs), 100))
			}
			runsResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return client.Do(req)
}
