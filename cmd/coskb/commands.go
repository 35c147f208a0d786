package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/cli"
	"github.com/hyperjump/coskb/internal/config"
	"github.com/hyperjump/coskb/internal/health"
	"github.com/hyperjump/coskb/internal/models"
	"github.com/hyperjump/coskb/internal/source"
	"github.com/hyperjump/coskb/internal/watcher"
)

// commonFlags are shared by every command that can run against the server or directly.
type commonFlags struct {
	configPath *string
	serverURL  *string
	output     *string
	debug      *bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path (direct mode)"),
		serverURL:  fs.String("server", defaultServerURL, "server URL (empty = open the index directly)"),
		output:     fs.String("output", "text", "output format: text or json"),
		debug:      fs.Bool("debug", false, "enable debug logging (direct mode)"),
	}
}

func (f *commonFlags) format() cli.OutputFormat {
	format, err := cli.ParseOutputFormat(*f.output)
	if err != nil {
		fail(err)
	}
	return format
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// direct opens the components, runs fn and closes them again.
func direct(f *commonFlags, opts componentOptions, fn func(ctx context.Context, c *Components) error) error {
	cfg, logger := setup(*f.configPath, *f.debug)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signalContext()
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(ctx, components)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front, since the flag package stops at the first non-flag.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	f := addCommonFlags(fs)
	topK := fs.Int("top-k", 0, "number of results, 1-20 (0 = configured default)")
	mode := fs.String("mode", "hybrid", "search mode: hybrid, vector or fts")
	_ = fs.Parse(argsReorder(args))

	query := &models.SearchQuery{Query: buildSearchQuery(fs.Args()), TopK: *topK, Mode: models.SearchMode(*mode)}
	if query.Query == "" {
		fmt.Println("Usage: coskb search [flags] <query>")
		os.Exit(1)
	}
	format := f.format()

	var response *models.SearchResponse
	var err error
	if *f.serverURL != "" {
		ctx, cancel := signalContext()
		defer cancel()
		response, err = newClient(*f.serverURL).Search(ctx, query)
	} else {
		err = direct(f, componentOptions{}, func(ctx context.Context, c *Components) error {
			response, err = c.Engine.Search(ctx, query)
			return err
		})
	}
	if err != nil {
		fail(err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fail(err)
	}
}

func runSimilar(args []string) {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	f := addCommonFlags(fs)
	_ = fs.Parse(argsReorder(args))

	if fs.NArg() != 1 {
		fmt.Println("Usage: coskb similar [flags] <page-id>")
		os.Exit(1)
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		fail(fmt.Errorf("%w: page id must be an integer, got %q", models.ErrInvalidQuery, fs.Arg(0)))
	}
	format := f.format()

	var response *models.SimilarResponse
	if *f.serverURL != "" {
		ctx, cancel := signalContext()
		defer cancel()
		response, err = newClient(*f.serverURL).Similar(ctx, id)
	} else {
		err = direct(f, componentOptions{}, func(ctx context.Context, c *Components) error {
			response, err = c.Engine.Similar(ctx, id)
			return err
		})
	}
	if err != nil {
		fail(err)
	}
	if err := cli.WriteSimilar(os.Stdout, response, format); err != nil {
		fail(err)
	}
}

func runDuplicates(args []string) {
	fs := flag.NewFlagSet("duplicates", flag.ExitOnError)
	f := addCommonFlags(fs)
	threshold := fs.Float64("threshold", 0, "minimum similarity in (0, 1] (0 = configured default)")
	_ = fs.Parse(args)
	format := f.format()

	var response *models.DuplicatesResponse
	var err error
	if *f.serverURL != "" {
		ctx, cancel := signalContext()
		defer cancel()
		response, err = newClient(*f.serverURL).Duplicates(ctx, *threshold)
	} else {
		err = direct(f, componentOptions{}, func(ctx context.Context, c *Components) error {
			t := *threshold
			if t == 0 {
				t = c.Config.Search.DuplicateThreshold
			}
			response, err = c.Engine.FindDuplicates(ctx, t)
			return err
		})
	}
	if err != nil {
		fail(err)
	}
	if err := cli.WriteDuplicates(os.Stdout, response, format); err != nil {
		fail(err)
	}
}

// readDocuments loads a JSON array of source documents.
func readDocuments(path string) ([]models.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs []models.SourceDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if docs == nil {
		docs = []models.SourceDocument{}
	}
	return docs, nil
}

func runReindex(args []string) {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	f := addCommonFlags(fs)
	input := fs.String("input", "", "JSON file with documents to index instead of the configured source")
	_ = fs.Parse(args)
	format := f.format()

	var docs []models.SourceDocument
	if *input != "" {
		var err error
		if docs, err = readDocuments(*input); err != nil {
			fail(err)
		}
	}

	var result *models.ReindexResult
	var err error
	if *f.serverURL != "" {
		ctx, cancel := signalContext()
		defer cancel()
		result, err = newClient(*f.serverURL).Reindex(ctx, docs)
	} else {
		err = direct(f, componentOptions{source: docs == nil}, func(ctx context.Context, c *Components) error {
			if docs != nil {
				result, err = c.Indexer.Reindex(ctx, docs)
				return err
			}
			if c.Source == nil {
				return source.ErrNoSource
			}
			result, err = c.Indexer.ReindexSource(ctx, c.Source)
			return err
		})
	}
	if err != nil {
		fail(err)
	}
	if err := cli.WriteReindex(os.Stdout, result, format); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	f := addCommonFlags(fs)
	_ = fs.Parse(args)
	format := f.format()

	var stats *models.Stats
	var err error
	if *f.serverURL != "" {
		ctx, cancel := signalContext()
		defer cancel()
		stats, err = newClient(*f.serverURL).Stats(ctx)
	} else {
		err = direct(f, componentOptions{modelOptional: true}, func(ctx context.Context, c *Components) error {
			stats, err = c.Index.Stats(ctx)
			return err
		})
	}
	if err != nil {
		fail(err)
	}
	if err := cli.WriteStats(os.Stdout, stats, format); err != nil {
		fail(err)
	}
}

func runHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	f := addCommonFlags(fs)
	_ = fs.Parse(args)
	format := f.format()

	var report *health.Report
	var err error
	if *f.serverURL != "" {
		ctx, cancel := signalContext()
		defer cancel()
		report, err = newClient(*f.serverURL).Health(ctx)
	} else {
		err = direct(f, componentOptions{modelOptional: true}, func(ctx context.Context, c *Components) error {
			report = c.Health.Check(ctx)
			return nil
		})
	}
	if err != nil {
		fail(err)
	}
	if err := cli.WriteHealth(os.Stdout, report, format); err != nil {
		fail(err)
	}
	if !report.OK() {
		os.Exit(1)
	}
}

// startWatcher watches the directory source and reindexes it after changes settle.
func startWatcher(ctx context.Context, cfg *config.Config, c *Components, logger *zap.Logger) (*watcher.Watcher, error) {
	dir, ok := c.Source.(*source.DirectorySource)
	if !ok {
		return nil, errors.New("watch requires the directory source (source.type: directory)")
	}
	w := watcher.NewWatcher(dir.Root(), dir.Recursive(), dir.Matches,
		func(paths []string) {
			logger.Info("source changed, reindexing", zap.Int("paths", len(paths)))
			res, err := c.Indexer.ReindexSource(ctx, dir)
			if err != nil {
				logger.Error("watch reindex failed", zap.Error(err))
				return
			}
			logger.Info("watch reindex done", zap.String("run_id", res.RunID), zap.Int("indexed", res.Indexed), zap.Int("pruned", res.Pruned))
		},
		watcher.WithLogger(logger),
		watcher.WithDebounce(cfg.Watch.Debounce),
	)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, logger := setup(*configPath, *debug)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signalContext()
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger, componentOptions{source: true})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if components.Source == nil {
		logger.Fatal("watch requires a document source", zap.Error(source.ErrNoSource))
	}
	res, err := components.Indexer.ReindexSource(ctx, components.Source)
	if err != nil {
		logger.Fatal("initial reindex failed", zap.Error(err))
	}
	logger.Info("initial reindex done", zap.Int("indexed", res.Indexed))

	w, err := startWatcher(ctx, cfg, components, logger)
	if err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer w.Stop()

	<-ctx.Done()
	logger.Info("Shutting down...")
}
