// Package main is the coskb CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/config"
	"github.com/hyperjump/coskb/internal/server"
	"github.com/hyperjump/coskb/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/coskb/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if it exists; when neither exists the built-in defaults
// plus environment overrides are used. Returns the config and the path that was
// actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			cfg, err := config.FromEnv()
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "search":
		runSearch(args)
	case "similar":
		runSimilar(args)
	case "duplicates":
		runDuplicates(args)
	case "reindex", "index":
		runReindex(args)
	case "stats":
		runStats(args)
	case "health":
		runHealth(args)
	case "watch":
		runWatch(args)
	case "config":
		runConfig(args)
	case "version", "--version", "-v":
		fmt.Printf("coskb version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config and builds the logger shared by every command.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, logger := setup(*configPath, *debug)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger, componentOptions{source: true, asyncModel: true})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if cfg.Watch.Enabled {
		w, err := startWatcher(ctx, cfg, components, logger)
		if err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Index,
		components.Health,
		components.indexSource(),
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func runConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	out := fs.String("out", "", "write the effective config to this file instead of stdout")
	_ = fs.Parse(args)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *out == "" {
		if err := config.Write(os.Stdout, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := config.Save(*out, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Save failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", *out)
}

func printUsage() {
	fmt.Println(`coskb - hybrid knowledge-base search

Usage:
  coskb server [flags]              Start the HTTP server
  coskb search [flags] <query>      Search documents (hybrid, vector or fts)
  coskb similar [flags] <page-id>   List documents similar to a page
  coskb duplicates [flags]          List near-duplicate page pairs
  coskb reindex [flags]             Reindex the configured source (or --input file)
  coskb stats [flags]               Show index statistics
  coskb health [flags]              Check storage, index and model health
  coskb watch [flags]               Reindex the directory source whenever it changes
  coskb config [flags]              Print the effective configuration
  coskb version                     Show version
  coskb help                        Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/coskb/config.yaml,
                     then ./config.yaml, then built-in defaults + environment)
  --server string    Server URL (default: http://localhost:8000). Use --server ""
                     to open the index directly when the server is not running.
  --output string    Output format: text or json (default: text)

Search Flags:
  --top-k int        Number of results, 1-20 (default from config)
  --mode string      hybrid, vector or fts (default: hybrid)

Duplicates Flags:
  --threshold float  Minimum similarity in (0, 1] (default from config, 0.9)

Reindex Flags:
  --input string     JSON file with an array of {id, title, path, text} documents

Examples:
  coskb server
  coskb search "vpn connection"
  coskb search --mode fts --top-k 3 printer
  coskb similar 42
  coskb duplicates --threshold 0.95 --output json
  coskb reindex --server ""
  coskb stats`)
}
