// Command indigo-sync synchronizes the companion app's local data with
// its encrypted cloud backup.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/indigoapp/indigo-sync/internal/appdata"
	"github.com/indigoapp/indigo-sync/internal/config"
	apperrors "github.com/indigoapp/indigo-sync/internal/errors"
	"github.com/indigoapp/indigo-sync/internal/logging"
	"github.com/indigoapp/indigo-sync/internal/mcpserver"
	"github.com/indigoapp/indigo-sync/internal/models"
	"github.com/indigoapp/indigo-sync/internal/remote"
	"github.com/indigoapp/indigo-sync/internal/store"
	"github.com/indigoapp/indigo-sync/internal/sync"
	"github.com/indigoapp/indigo-sync/internal/watch"
)

var Version = "dev"

const usage = `Usage: indigo-sync <command>

Commands:
  sync          Run one sync pass (default)
  push          Force-push all local data to the cloud
  pull          Force-pull all cloud data, overwriting local copies
  diff <cat>    Show local vs remote differences for one category
  validate      Check the passphrase against existing cloud data
  delete-cloud  Delete all cloud data for this account
  watch         Run the auto-sync daemon
  help          Show this help
`

func main() {
	cmd := "sync"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		fmt.Print(usage)
		return
	}

	if err := run(cmd, os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("indigo-sync starting",
		slog.String("version", Version),
		slog.String("command", cmd),
		slog.String("device", cfg.DeviceName),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	switch cmd {
	case "sync":
		return app.syncOnce(ctx)
	case "push":
		return app.push(ctx)
	case "pull":
		return app.pull(ctx)
	case "diff":
		return app.diff(ctx, args)
	case "validate":
		return app.validate(ctx)
	case "delete-cloud":
		return app.deleteCloud(ctx)
	case "watch":
		return app.watch(ctx)
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// app bundles the wired-up components every command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	data   *appdata.Store
	state  *store.Store
	client *remote.Client
	engine *sync.Engine
	userID string
	token  string
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.Open()
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	// The env token wins; a previously used token serves as fallback so
	// one-shot commands work without re-exporting it.
	token := cfg.AccessToken
	if token == "" {
		token = st.Token()
	}

	if token == "" {
		_ = st.Close()
		return nil, fmt.Errorf("no access token: set INDIGO_ACCESS_TOKEN")
	}

	userID, err := remote.UserIDFromToken(token)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("reading access token: %w", err)
	}

	remote.CheckTokenExpiry(token, logger)

	if cfg.AccessToken != "" {
		if err := st.SetToken(cfg.AccessToken); err != nil {
			logger.Warn("caching access token failed", slog.String("error", err.Error()))
		}
	}

	data, err := appdata.New(cfg.DataDir, logging.ForComponent(logger, "appdata"))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("opening data dir: %w", err)
	}

	client := remote.NewClient(cfg.RemoteURL, cfg.AnonKey, token, nil, logging.ForComponent(logger, "remote"))
	engine := sync.NewEngine(client, data, st, cfg.SyncTimeout, logging.ForComponent(logger, "sync"))

	return &app{
		cfg:    cfg,
		logger: logger,
		data:   data,
		state:  st,
		client: client,
		engine: engine,
		userID: userID,
		token:  token,
	}, nil
}

func (a *app) Close() {
	if err := a.state.Close(); err != nil {
		a.logger.Warn("closing state store", slog.String("error", err.Error()))
	}
}

// printProgress reports per-category outcomes on stdout.
func printProgress(category models.Category, action sync.Action) {
	fmt.Printf("  %-13s %s\n", category, action)
}

func (a *app) syncOnce(ctx context.Context) error {
	fmt.Println("Syncing...")

	res := a.engine.PerformSync(ctx, a.userID, a.cfg.Passphrase, printProgress)

	for _, conflict := range res.Conflicts {
		fmt.Printf("  %-13s FAILED: %s\n", conflict.Category, conflict.Reason)
	}

	if res.Status != sync.StatusSuccess {
		return fmt.Errorf("sync finished with errors: %s", res.Message)
	}

	fmt.Println(res.Message)

	return nil
}

func (a *app) push(ctx context.Context) error {
	fmt.Println("Pushing all local data to the cloud...")

	if err := a.engine.ForcePush(ctx, a.userID, a.cfg.Passphrase, printProgress); err != nil {
		return err
	}

	fmt.Println("push complete")

	return nil
}

func (a *app) pull(ctx context.Context) error {
	fmt.Println("Pulling all cloud data, overwriting local copies...")

	if err := a.engine.ForcePull(ctx, a.userID, a.cfg.Passphrase, printProgress); err != nil {
		return err
	}

	fmt.Println("pull complete")

	return nil
}

func (a *app) diff(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: indigo-sync diff <category> (one of %v)", models.Categories())
	}

	category, err := models.ParseCategory(args[0])
	if err != nil {
		return err
	}

	out, err := a.engine.Diff(ctx, a.userID, a.cfg.Passphrase, category)
	if err != nil {
		return err
	}

	fmt.Print(out)

	return nil
}

// validate checks the configured passphrase by attempting to decrypt
// existing cloud records.
func (a *app) validate(ctx context.Context) error {
	for _, category := range models.Categories() {
		down, err := a.client.Download(ctx, a.userID, category, a.cfg.Passphrase)
		if errors.Is(err, apperrors.ErrDecryptFailed) {
			return fmt.Errorf("passphrase does not match the cloud data (checked %s)", category)
		}

		if err != nil {
			return err
		}

		if down != nil {
			fmt.Printf("passphrase OK (verified against %s)\n", category)
			return nil
		}
	}

	fmt.Println("no cloud data yet; nothing to validate against")

	return nil
}

func (a *app) deleteCloud(ctx context.Context) error {
	fmt.Printf("This permanently deletes ALL cloud data for user %s.\n", a.userID)
	fmt.Print(`Type "delete" to confirm: `)

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() || scanner.Text() != "delete" {
		fmt.Println("aborted")
		return nil
	}

	if err := a.engine.DeleteCloudData(ctx, a.userID); err != nil {
		return err
	}

	fmt.Println("cloud data deleted; local data is untouched")

	return nil
}

// watch runs the auto-sync daemon, plus the realtime subscriber and the
// MCP server when enabled.
func (a *app) watch(ctx context.Context) error {
	st, err := a.state.SyncState()
	if err != nil {
		return fmt.Errorf("loading sync state: %w", err)
	}

	st.Enabled = true
	st.AutoSync = a.cfg.AutoSync

	if err := a.state.SetSyncState(st); err != nil {
		return fmt.Errorf("persisting sync state: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	var notifications <-chan struct{}

	if a.cfg.Realtime {
		rt := remote.NewRealtime(a.cfg.RemoteURL, a.cfg.AnonKey, a.token, a.userID,
			logging.ForComponent(a.logger, "realtime"))
		notifications = rt.Notifications()

		g.Go(func() error {
			return rt.Run(gctx)
		})
	}

	runSync := func(ctx context.Context) sync.Result {
		return a.engine.PerformSync(ctx, a.userID, a.cfg.Passphrase, nil)
	}

	if a.cfg.AutoSync {
		daemon := watch.New(a.data, a.cfg.AutoSyncInterval, notifications,
			func(ctx context.Context) { runSync(ctx) },
			logging.ForComponent(a.logger, "watch"))

		g.Go(func() error {
			return daemon.Run(gctx)
		})
	}

	if a.cfg.EnableMCP {
		g.Go(func() error {
			return a.runMCP(gctx, runSync)
		})
	}

	// One initial pass so a freshly started daemon converges without
	// waiting for the first trigger.
	res := runSync(gctx)
	a.logger.Info("initial sync finished", slog.String("status", string(res.Status)))

	return g.Wait()
}

// runMCP starts the MCP HTTP server and shuts it down with the context.
func (a *app) runMCP(ctx context.Context, runSync mcpserver.RunSyncFunc) error {
	mcpLogger := logging.ForComponent(a.logger, "mcp")

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "indigo-sync-mcp", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, a.data, a.state, runSync)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	server := &http.Server{
		Addr:         a.cfg.MCPListenAddr,
		Handler:      mcpserver.NewMux(mcpHandler, a.cfg.ParseMCPAPIKeys(), mcpLogger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	mcpLogger.Info("starting MCP server", slog.String("listen", a.cfg.MCPListenAddr))

	go func() {
		<-ctx.Done()
		mcpLogger.Info("shutting down MCP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}
