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
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/agentmesh/internal/api"
	"github.com/kalambet/agentmesh/internal/config"
	"github.com/kalambet/agentmesh/internal/embedding"
	"github.com/kalambet/agentmesh/internal/engine"
	"github.com/kalambet/agentmesh/internal/evaluator"
	"github.com/kalambet/agentmesh/internal/matching"
	"github.com/kalambet/agentmesh/internal/metrics"
	"github.com/kalambet/agentmesh/internal/notify"
	"github.com/kalambet/agentmesh/internal/opportunity"
	"github.com/kalambet/agentmesh/internal/realtime"
	"github.com/kalambet/agentmesh/internal/rooms"
	"github.com/kalambet/agentmesh/internal/scheduler"
	"github.com/kalambet/agentmesh/internal/storage"
	"github.com/kalambet/agentmesh/internal/sweep"
)

const shutdownTimeout = 10 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the agentmesh server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		stdio, _ := cmd.Flags().GetBool("mcp")
		return runServer(cmd.Context(), stdio)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running agentmesh server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agentmesh server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "agentmesh.pid")
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

func setupLogging(cfg config.LogConfig, w io.Writer) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// models returns the chat and embedding models of the provider Detect
// will select.
func models(cfg config.Config, dc engine.DetectConfig) (chat, embed string) {
	switch engine.ResolveProvider(dc) {
	case "openai":
		return cfg.OpenAI.ChatModel, cfg.OpenAI.EmbedModel
	case "gemini":
		return cfg.Gemini.ChatModel, cfg.Gemini.EmbedModel
	default:
		return cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel
	}
}

func splitOrigins(v string) []string {
	var out []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func runServer(ctx context.Context, stdio bool) error {
	fmt.Fprintf(os.Stderr, "agentmesh version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log, os.Stderr)

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("agentmesh is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("agentmesh is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	if cfg.Server.APIToken == "" {
		slog.Warn("server.api_token is empty; the API accepts unauthenticated requests")
	}

	// Inference. A missing or unreachable provider is not fatal: passes
	// skip pairs until it comes back and the sweep retries them.
	dc := engine.DetectConfig{
		Provider:      cfg.LLM.Provider,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OpenAIKey:     cfg.OpenAI.APIKey,
		OpenAIBaseURL: cfg.OpenAI.BaseURL,
		GeminiKey:     cfg.Gemini.APIKey,
		MaxTokens:     cfg.LLM.MaxTokens,
	}
	chatModel, embedModel := models(cfg, dc)
	var (
		emb  *embedding.Embedder
		eval *evaluator.Evaluator
	)
	eng, err := engine.Detect(ctx, dc)
	switch {
	case err != nil:
		slog.Warn("matchmaking runs without an llm provider", "error", err)
		emb = embedding.New(nil, embedModel, cfg.LLM.Timeout)
		eval = evaluator.New(nil, chatModel, cfg.LLM.Timeout)
	default:
		if err := engine.EnsureReady(ctx, eng, []string{chatModel, embedModel}, os.Stderr); err != nil {
			slog.Warn("llm provider not ready", "provider", engine.ResolveProvider(dc), "error", err)
		}
		limited := engine.NewLimited(eng, cfg.LLM.RatePerSecond, max(1, cfg.Matching.Budget))
		emb = embedding.New(limited, embedModel, cfg.LLM.Timeout)
		eval = evaluator.New(limited, chatModel, cfg.LLM.Timeout)
		slog.Info("llm provider ready", "provider", engine.ResolveProvider(dc), "chat_model", chatModel, "embed_model", embedModel)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	m := metrics.New()

	mailer, err := notify.NewMailer(notify.MailConfig{
		From:         cfg.Mail.From,
		ResendAPIKey: cfg.Mail.ResendAPIKey,
		SMTPHost:     cfg.SMTP.Host,
		SMTPPort:     cfg.SMTP.Port,
		SMTPUser:     cfg.SMTP.User,
		SMTPPassword: cfg.SMTP.Password,
	})
	if err != nil {
		return fmt.Errorf("configuring email: %w", err)
	}
	slog.Info("email delivery", "provider", mailer.Provider())
	notifier := notify.New(store, mailer, cfg.Server.BaseURL)
	notifier.SetObserver(m)

	hub := realtime.NewHub()
	mm := matching.NewMatchmaker(store, emb, eval, notifier, hub, matching.Config{
		Threshold: cfg.Matching.Threshold,
		MinScore:  cfg.Matching.MinScore,
		Budget:    cfg.Matching.Budget,
	}, matching.WithObserver(m))
	sched := scheduler.New(func(ctx context.Context, code string) error {
		_, err := mm.RunPass(ctx, code)
		return err
	}, cfg.Matching.Debounce)

	m.GaugeFunc("websocket_connections", "Open WebSocket subscriptions.", hub.Connections)
	m.GaugeFunc("scheduler_rooms", "Rooms with a pending or running matchmaking pass.", sched.Len)

	responder := opportunity.NewResponder(store, notifier, sched, hub)
	svc := rooms.NewService(store, sched)

	mcpSrv := api.NewMCPServer(api.MCPDeps{Rooms: svc, Responder: responder}, version)
	handler := api.NewRouter(api.Deps{
		Rooms:     svc,
		Responder: responder,
		Hub:       hub,
		Metrics:   m,
		MCP:       server.NewStreamableHTTPServer(mcpSrv),
		Token:     cfg.Server.APIToken,
		Origins:   splitOrigins(cfg.Server.CORSOrigins),
		Ping:      store.Ping,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)
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
		fmt.Fprintf(os.Stderr, "agentmesh listening on %s\n", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sweep.NewWorker(store, sched, cfg.Matching.SweepInterval).Run(gctx)
		return nil
	})
	if stdio {
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			err := server.NewStdioServer(mcpSrv).Listen(gctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		err := srv.Shutdown(shutdownCtx)
		if serr := sched.Close(shutdownCtx); serr != nil {
			slog.Warn("matchmaking passes still running at shutdown", "error", serr)
		}
		return err
	})
	return g.Wait()
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
		printError("agentmesh is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop agentmesh (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to agentmesh (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	client.httpClient.Timeout = 2 * time.Second

	running := false
	resp, err := client.get(ctx, "/health")
	switch {
	case err != nil:
		printStatus("Server", "stopped")
	case resp.StatusCode == http.StatusOK:
		resp.Body.Close()
		running = true
		printStatus("Server", "running at %s", client.baseURL)
	default:
		resp.Body.Close()
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	}

	dc := engine.DetectConfig{
		Provider:  cfg.LLM.Provider,
		OpenAIKey: cfg.OpenAI.APIKey,
		GeminiKey: cfg.Gemini.APIKey,
	}
	chatModel, embedModel := models(cfg, dc)
	printStatus("LLM provider", "%s", engine.ResolveProvider(dc))
	printStatus("Chat model", "%s", chatModel)
	printStatus("Embed model", "%s", embedModel)
	printStatus("Email", "%s", mailStatus(cfg))

	if running && client.person != "" {
		if me, err := fetchMe(ctx, client); err == nil {
			printStatus("Person", "%s (%s)", nameOr(me.Person.Name, me.Person.ID), me.Person.ID)
			printStatus("Rooms", "%s", countLabel(len(me.Rooms), 100))
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func mailStatus(cfg config.Config) string {
	switch {
	case cfg.Mail.From == "":
		return "disabled"
	case cfg.Mail.ResendAPIKey != "":
		return "resend"
	case cfg.SMTP.Host != "":
		return "smtp " + cfg.SMTP.Host
	}
	return "disabled"
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
