package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hpungsan/flowgen/internal/blob"
	"github.com/hpungsan/flowgen/internal/client"
	"github.com/hpungsan/flowgen/internal/config"
	"github.com/hpungsan/flowgen/internal/db"
	"github.com/hpungsan/flowgen/internal/gallery"
	"github.com/hpungsan/flowgen/internal/logging"
	"github.com/hpungsan/flowgen/internal/mcp"
	"github.com/hpungsan/flowgen/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"upload": true, "show": true, "history": true, "download": true,
	"purge": true, "preview": true, "watch": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
    __ _                                
   / _| | _____      ____ _  ___ _ __  
  | |_| |/ _ \ \ /\ / / _' |/ _ \ '_ \ 
  |  _| | (_) \ V  V / (_| |  __/ | | |
  |_| |_|\___/ \_/\_/ \__, |\___|_| |_|
                      |___/            

  Python source to flowchart galleries

  Usage: flowgen <command> [options]
         flowgen --help

  MCP server mode requires piped input.`)
}

// newRuntime opens the history database and wires the service client,
// blob store and gallery from cfg.
func newRuntime(baseDir string, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	database, err := db.Init(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	svc, err := client.New(cfg.ServiceURL,
		client.WithTimeout(cfg.RequestTimeout()),
		client.WithMaxResponseBytes(cfg.MaxArchiveBytes),
		client.WithLogger(logger),
	)
	if err != nil {
		database.Close()
		return nil, err
	}

	store := blob.NewStore()
	return &runtime{
		env: &ops.Env{
			DB:      database,
			Config:  cfg,
			Service: svc,
			Gallery: gallery.NewManager(store,
				gallery.WithUngroupedKey(cfg.UngroupedKey),
				gallery.WithLogger(logger)),
			Logger: logger,
		},
		client: svc,
		store:  store,
		logger: logger,
	}, nil
}

func (rt *runtime) Close() {
	rt.env.Gallery.Teardown()
	rt.env.DB.Close()
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(homeDir, config.DirName)

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewFromConfig(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	rt, err := newRuntime(baseDir, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(rt)
		err := app.Run(os.Args)
		rt.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		rt.Close()
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'flowgen --help' for usage.\n")
		os.Exit(1)
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("ignoring unknown disabled tools", "tools", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		logger.Warn("ignoring unknown disabled types", "types", unknown)
	}

	// MCP server mode (default)
	err = mcp.Run(rt.env, rt.client, Version)
	rt.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
