package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	serveradapter "github.com/hylla/tabula/internal/adapters/server"
	servercommon "github.com/hylla/tabula/internal/adapters/server/common"
	"github.com/hylla/tabula/internal/adapters/storage/redis"
	"github.com/hylla/tabula/internal/adapters/storage/sqlite"
	"github.com/hylla/tabula/internal/app"
	"github.com/hylla/tabula/internal/config"
	"github.com/hylla/tabula/internal/platform"
	"github.com/hylla/tabula/internal/tui"
)

var version = "dev"

// program is the part of tea.Program the tui command drives.
type program interface {
	Run() (tea.Model, error)
}

var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		os.Exit(1)
	}
}

// run executes the command tree for args.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	scope      string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tabula",
		Short:         "Hierarchical, drag-reorderable data grids in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, opts, stderr)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", platform.DefaultAppName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", version == "dev", "use dev mode paths (<app>-dev)")
	flags.StringVar(&opts.scope, "scope", "", "grid scope key (room/view); defaults to grid.default_scope")

	root.AddCommand(
		&cobra.Command{
			Use:   "tui",
			Short: "Open the terminal grid (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runTUI(cmd, opts, stderr)
			},
		},
		newServeCommand(opts, stderr),
		newExportCommand(opts, stdout, stderr),
		newImportCommand(opts, stderr),
		newScopesCommand(opts, stdout, stderr),
		newLanesCommand(opts, stdout, stderr),
		&cobra.Command{
			Use:   "paths",
			Short: "Print resolved config and data paths",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runPaths(cmd, opts, stdout)
			},
		},
	)
	return root
}

// resolveEnv fills flags the user did not pass from the environment and any
// .env file in the working directory.
func (o *rootOptions) resolveEnv(cmd *cobra.Command) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	flags := cmd.Flags()
	if !flags.Changed("app") {
		if envApp := strings.TrimSpace(os.Getenv("TABULA_APP_NAME")); envApp != "" {
			o.appName = envApp
		}
	}
	if !flags.Changed("dev") {
		if envDev, ok := parseBoolEnv("TABULA_DEV_MODE"); ok {
			o.devMode = envDev
		}
	}
}

func (o *rootOptions) paths(cmd *cobra.Command) (platform.Paths, error) {
	o.resolveEnv(cmd)
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
	if err != nil {
		return platform.Paths{}, err
	}
	// the per-app .env never overrides variables already set.
	if _, err := os.Stat(paths.EnvPath); err == nil {
		if err := godotenv.Load(paths.EnvPath); err != nil {
			return platform.Paths{}, fmt.Errorf("load env file %q: %w", paths.EnvPath, err)
		}
	}
	return paths, nil
}

// cliRuntime bundles what every storage-backed command needs.
type cliRuntime struct {
	cfg      config.Config
	logger   *runtimeLogger
	svc      *app.Service
	scope    string
	shutdown func()
}

// openRuntime resolves paths, loads config, configures logging and opens the
// configured snapshot store.
func openRuntime(cmd *cobra.Command, opts *rootOptions, command string, stderr io.Writer) (*cliRuntime, error) {
	paths, err := opts.paths(cmd)
	if err != nil {
		return nil, err
	}

	configPath := opts.configPath
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("TABULA_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(opts.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("TABULA_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	scope := strings.TrimSpace(opts.scope)
	if scope == "" {
		scope = cfg.Grid.DefaultScope
	}
	if scope, err = app.NormalizeScopeKey(scope); err != nil {
		return nil, fmt.Errorf("resolve scope: %w", err)
	}

	logger, err := newRuntimeLogger(stderr, opts.appName, opts.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	if command == "tui" {
		// the dev-file sink keeps logging while the grid owns the terminal.
		logger.SetConsoleEnabled(false)
	}
	closeLogger := func() {
		if closeErr := logger.Close(); closeErr != nil && logger.shouldLogToSink(logger.consoleSink) {
			_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
	}

	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", dbPath)
	logger.Info("configuration loaded", "config_path", configPath, "storage", cfg.Storage.Backend, "log_level", cfg.Logging.Level, "scope", scope)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		closeLogger()
		return nil, err
	}
	svc := app.NewService(store, uuid.NewString, nil, logger.Component(), cfg.ServiceConfig())
	logger.Debug("application service initialized", "lanes", len(cfg.Grid.Lanes), "columns", len(cfg.Grid.Columns))

	return &cliRuntime{
		cfg:    cfg,
		logger: logger,
		svc:    svc,
		scope:  scope,
		shutdown: func() {
			// grids drain their save queues before the store goes away.
			svc.Close()
			closeStore()
			closeLogger()
		},
	}, nil
}

// openStore opens the configured snapshot backend.
func openStore(cfg config.Config, logger *runtimeLogger) (app.SnapshotStore, func(), error) {
	switch cfg.Storage.Backend {
	case config.StorageRedis:
		logger.Info("opening redis store", "addr", cfg.Storage.RedisAddr, "prefix", cfg.Storage.RedisPrefix)
		store, err := redis.Open(cfg.Storage.RedisAddr, cfg.Storage.RedisPrefix)
		if err != nil {
			logger.Error("redis open failed", "addr", cfg.Storage.RedisAddr, "err", err)
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		logger.Info("redis store ready", "addr", cfg.Storage.RedisAddr)
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("redis close failed", "addr", cfg.Storage.RedisAddr, "err", err)
			}
		}, nil
	default:
		logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
		repo, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
			return nil, nil, fmt.Errorf("open sqlite repository: %w", err)
		}
		logger.Info("sqlite repository ready", "db_path", cfg.Database.Path, "migrations", "ensured")
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Warn("sqlite close failed", "db_path", cfg.Database.Path, "err", err)
			}
		}, nil
	}
}

// withRuntime opens the runtime, logs the command flow around fn and closes
// everything afterwards.
func withRuntime(cmd *cobra.Command, opts *rootOptions, command string, stderr io.Writer, fn func(context.Context, *cliRuntime) error) error {
	rt, err := openRuntime(cmd, opts, command, stderr)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	rt.logger.Info("command flow start", "command", command)
	if err := fn(cmd.Context(), rt); err != nil {
		rt.logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	rt.logger.Info("command flow complete", "command", command)
	return nil
}

func runTUI(cmd *cobra.Command, opts *rootOptions, stderr io.Writer) error {
	return withRuntime(cmd, opts, "tui", stderr, func(ctx context.Context, rt *cliRuntime) error {
		g, err := rt.svc.Open(ctx, rt.scope)
		if err != nil {
			return fmt.Errorf("open grid %q: %w", rt.scope, err)
		}
		m := tui.NewModel(g,
			tui.WithTitle(opts.appName),
			tui.WithKeyConfig(toTUIKeyConfig(rt.cfg.Keys)),
			tui.WithLogger(rt.logger.Component()),
		)
		rt.logger.Info("starting tui program loop", "scope", rt.scope)
		if _, err := programFactory(m).Run(); err != nil {
			rt.logger.Error("tui program terminated with error", "err", err)
			return fmt.Errorf("run tui program: %w", err)
		}
		return rt.svc.Flush(ctx)
	})
}

func newServeCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and the MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "serve", stderr, func(ctx context.Context, rt *cliRuntime) error {
				cfg := serveradapter.Config{
					HTTPBind:       rt.cfg.Server.Bind,
					APIEndpoint:    rt.cfg.Server.APIEndpoint,
					MCPEndpoint:    rt.cfg.Server.MCPEndpoint,
					ServerName:     opts.appName,
					ServerVersion:  version,
					AllowedOrigins: append([]string(nil), rt.cfg.Server.AllowedOrigins...),
				}
				if httpBind != "" {
					cfg.HTTPBind = httpBind
				}
				if apiEndpoint != "" {
					cfg.APIEndpoint = apiEndpoint
				}
				if mcpEndpoint != "" {
					cfg.MCPEndpoint = mcpEndpoint
				}
				return serveCommandRunner(ctx, cfg, serveradapter.Dependencies{
					Grids:  servercommon.NewAppServiceAdapter(rt.svc),
					Logger: rt.logger.Component(),
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (overrides server.bind)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint")
	return cmd
}

func newExportCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every stored grid as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "export", stderr, func(ctx context.Context, rt *cliRuntime) error {
				return runExport(ctx, rt.svc, outPath, stdout)
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

func runExport(ctx context.Context, svc *app.Service, outPath string, stdout io.Writer) error {
	snap, err := svc.ExportSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot json: %w", err)
	}
	encoded = append(encoded, '\n')

	if outPath == "" || outPath == "-" {
		if _, err := stdout.Write(encoded); err != nil {
			return fmt.Errorf("write snapshot to stdout: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create export output dir: %w", err)
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	return nil
}

func newImportCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace stored grids with an export file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(inPath) == "" {
				return errors.New("--in is required")
			}
			return withRuntime(cmd, opts, "import", stderr, func(ctx context.Context, rt *cliRuntime) error {
				return runImport(ctx, rt.svc, inPath)
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input export JSON file")
	return cmd
}

func runImport(ctx context.Context, svc *app.Service, inPath string) error {
	content, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	var in app.Export
	if err := json.Unmarshal(content, &in); err != nil {
		return fmt.Errorf("decode snapshot json: %w", err)
	}
	if err := svc.ImportSnapshot(ctx, in); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	return nil
}

func newScopesCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "scopes",
		Short: "List stored scope keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "scopes", stderr, func(ctx context.Context, rt *cliRuntime) error {
				scopes, err := rt.svc.ListScopes(ctx)
				if err != nil {
					return err
				}
				for _, key := range scopes {
					_, _ = fmt.Fprintln(stdout, key)
				}
				return nil
			})
		},
	}
}

func newLanesCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "lanes",
		Short: "Print lane record counts of a scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "lanes", stderr, func(ctx context.Context, rt *cliRuntime) error {
				counts, err := rt.svc.LaneCounts(ctx, rt.scope)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(stdout, renderLaneTable(rt.scope, counts))
				return nil
			})
		},
	}
}

func runPaths(cmd *cobra.Command, opts *rootOptions, stdout io.Writer) error {
	paths, err := opts.paths(cmd)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "app: %s\n", opts.appName)
	_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", opts.devMode)
	_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
	_, _ = fmt.Fprintf(stdout, "env: %s\n", paths.EnvPath)
	_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
	_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
	return nil
}

// parseBoolEnv reads a boolean environment variable; ok is false when unset or malformed.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func toTUIKeyConfig(keys config.KeyConfig) tui.KeyConfig {
	return tui.KeyConfig{
		AddRecord:    keys.AddRecord,
		AddChild:     keys.AddChild,
		AddColumn:    keys.AddColumn,
		AddLane:      keys.AddLane,
		Delete:       keys.Delete,
		Edit:         keys.Edit,
		ToggleExpand: keys.ToggleExpand,
		Select:       keys.Select,
		CollapseLane: keys.CollapseLane,
		Yank:         keys.Yank,
		Preview:      keys.Preview,
	}
}
