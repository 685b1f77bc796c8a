package main

import (
	"context"
	"errors"
	"fmt"
	"io"
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

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/pal/internal/api"
	"github.com/kalambet/pal/internal/chat"
	"github.com/kalambet/pal/internal/composer"
	"github.com/kalambet/pal/internal/config"
	"github.com/kalambet/pal/internal/history"
	"github.com/kalambet/pal/internal/llm"
	"github.com/kalambet/pal/internal/profile"
	"github.com/kalambet/pal/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pal server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running pal server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pal system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "pal.pid")
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

// setupLogging installs the default slog logger. Debug is enabled by the
// "debug" level; everything else logs at info.
func setupLogging(level string, w io.Writer) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})))
}

// app is the wired core shared by the HTTP server and the MCP server.
type app struct {
	backend  storage.Backend
	profiles *profile.Manager
	history  *history.Log
	llm      *llm.Client
	chat     *chat.Service
}

func openApp(cfg config.Config) (*app, error) {
	backend, err := storage.OpenBackend(cfg.Storage.Backend, cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	profiles := profile.NewManager(backend)
	log := history.NewLog(backend, cfg.History.MaxSize)
	client := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	comp := composer.New(cfg.LLM.MaxTokens, cfg.LLM.Temperature)
	svc := chat.NewService(profiles, log, client, comp, chat.Options{
		Timeout:         cfg.LLM.TimeoutDuration(),
		RelevantResults: cfg.Chat.RelevantResults,
		RecentResults:   cfg.Chat.RecentResults,
	})

	if cfg.LLM.APIKey == "" {
		slog.Warn("no LLM API key configured; chat requests will fail until one is set")
	}

	return &app{
		backend:  backend,
		profiles: profiles,
		history:  log,
		llm:      client,
		chat:     svc,
	}, nil
}

func (a *app) Close() error {
	return a.backend.Close()
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "pal version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level, os.Stderr)

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("pal is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("pal is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	handler := api.NewHandler(api.Deps{
		Profiles:          a.profiles,
		History:           a.history,
		Chat:              a.chat,
		Token:             apiToken,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		Analytics:         cfg.Features.Analytics,
		Export:            cfg.Features.Export,
		Logger:            slog.Default(),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "pal listening on %s (storage: %s, model: %s)\n", addr, cfg.Storage.Backend, a.llm.Model())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")

		// Graceful shutdown with timeout.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	setupLogging(cfg.Log.Level, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Profiles: a.profiles,
		History:  a.history,
		Chat:     a.chat,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	slog.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
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
		printError("pal is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop pal (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to pal (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s", llmLabel(cfg))
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := llm.NewClient(llm.Config{APIKey: cfg.LLM.APIKey, BaseURL: cfg.LLM.BaseURL, Model: cfg.LLM.Model}).Ping(pingCtx)
	printStatus("LLM API", "%s", pingLabel(n, err))

	apiToken, tokenErr := config.GetAPIToken(config.NewKeychain())
	if tokenErr == nil && running {
		convResp, err := apiGet(client, serverURL+"/api/conversations", apiToken)
		if err == nil {
			var records []history.Record
			if decodeJSON(convResp, &records) == nil {
				printStatus("Conversations", "%s", countLabel(len(records), cfg.History.MaxSize))
			}
		}
		profResp, err := apiGet(client, serverURL+"/api/profile", apiToken)
		if err == nil {
			var p *profile.Profile
			if decodeJSON(profResp, &p) == nil {
				if p == nil {
					printStatus("Profile", "not set")
				} else {
					printStatus("Profile", "%s (%s)", p.Name, p.Role)
				}
			}
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func llmLabel(cfg config.Config) string {
	model := cfg.LLM.Model
	if model == "" {
		model = llm.DefaultModel
	}
	if cfg.LLM.BaseURL == "" {
		return model
	}
	return fmt.Sprintf("%s at %s", model, cfg.LLM.BaseURL)
}

func pingLabel(models int, err error) string {
	var ese *llm.ExternalServiceError
	switch {
	case err == nil:
		return fmt.Sprintf("reachable (%d models)", models)
	case errors.Is(err, llm.ErrNoAPIKey):
		return "no API key configured"
	case errors.As(err, &ese) && ese.Auth():
		return "API key rejected"
	default:
		return fmt.Sprintf("unreachable (%v)", err)
	}
}

// countLabel marks a count that reached the log cap.
func countLabel(count, limit int) string {
	if limit > 0 && count >= limit {
		return fmt.Sprintf("%d (full, oldest dropped first)", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
