// Package main is the kura CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/cli"
	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/server"
	"github.com/hyperjump/kura/internal/storage"
	"github.com/hyperjump/kura/internal/watcher"
	"github.com/hyperjump/kura/pkg/utils"
)

var version = "dev"

const defaultServerURL = "http://localhost:8080"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "ingest":
		runIngest()
	case "embed":
		runEmbed()
	case "reindex":
		runReset("reindex")
	case "retry-failed":
		runReset("retry-failed")
	case "watch":
		runWatch()
	case "mcp":
		runMCP()
	case "version", "--version", "-v":
		fmt.Printf("kura version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	idx := components.Indexer
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(root, path string) {
			if _, err := idx.IngestFile(ctx, root, path); err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			if err := idx.RemoveFile(ctx, path); err != nil {
				logger.Warn("watch remove failed", zap.String("path", path), zap.Error(err))
			}
		},
		watcher.WithLogger(logger),
	)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer watchSvc.Stop()
	watchSvc.SyncExistingFiles()

	opts := []server.Option{
		server.WithWatch(watchSvc),
		server.WithConfig(resolvedConfigPath, cfg),
	}
	if components.Local != nil {
		opts = append(opts, server.WithObjectHandler(components.Local.Handler()))
	}
	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Storage,
		&cfg.Server,
		logger,
		opts...,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// openDirect loads config and builds components for commands that run
// without a server.
func openDirect(configPath string) (*config.Config, *Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewCommandLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return cfg, components, logger
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kura search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results are ranked by meaning and wording together when an embedding provider
is configured, and by wording alone otherwise.
  • Use --semantic for meaning-only search (fails when no provider is available).
  • Filters narrow both rankings: --asset-type, --album, --media-type, --min-reusability.
  • --reasoning adds a short explanation of why each asset matched.

Examples:
  kura search sunset beach
  kura search --asset-type template --min-reusability 4 product launch
  kura search --album "Summer 2024" --media-type image family picnic
  kura search --semantic calm morning light
  kura search --output json team photo
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word
// queries work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the
// query to the front of the slice so that flag.Parse sees them. The flag
// package stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
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

// searchFlags holds the parsed filter flags.
type searchFlags struct {
	assetType      string
	album          string
	mediaType      string
	contentType    string
	minReusability int
	minEnergy      int
	overlaySpace   bool
	noDate         bool
	noLocation     bool
}

// filters converts flag values to request filters; unset flags stay nil.
func (f *searchFlags) filters() *models.SearchFilters {
	out := &models.SearchFilters{
		AssetType:   models.NonEmpty(f.assetType),
		Album:       models.NonEmpty(f.album),
		MediaType:   models.NonEmpty(f.mediaType),
		ContentType: models.NonEmpty(f.contentType),
	}
	if f.minReusability > 0 {
		out.MinReusability = models.Ptr(f.minReusability)
	}
	if f.minEnergy > 0 {
		out.MinEnergy = models.Ptr(f.minEnergy)
	}
	if f.overlaySpace {
		out.HasTextOverlaySpace = models.Ptr(true)
	}
	if f.noDate {
		out.NoHardcodedDate = models.Ptr(true)
	}
	if f.noLocation {
		out.NoHardcodedLocation = models.Ptr(true)
	}
	if !out.Active() {
		return nil
	}
	return out
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the catalog directly)")
	limit := fs.Int("limit", models.DefaultSearchLimit, "number of results (max 100)")
	reasoning := fs.Bool("reasoning", false, "explain why each result matched")
	semantic := fs.Bool("semantic", false, "meaning-only search")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	var sf searchFlags
	fs.StringVar(&sf.assetType, "asset-type", "", "filter by asset type (template, inspiration)")
	fs.StringVar(&sf.album, "album", "", "filter by album name")
	fs.StringVar(&sf.mediaType, "media-type", "", "filter by media type (image, video)")
	fs.StringVar(&sf.contentType, "content-type", "", "filter by MIME type")
	fs.IntVar(&sf.minReusability, "min-reusability", 0, "minimum reusability score (1-5)")
	fs.IntVar(&sf.minEnergy, "min-energy", 0, "minimum mood energy level (1-10)")
	fs.BoolVar(&sf.overlaySpace, "overlay-space", false, "only assets with room for text overlay")
	fs.BoolVar(&sf.noDate, "no-hardcoded-date", false, "exclude assets with a date baked into the image")
	fs.BoolVar(&sf.noLocation, "no-hardcoded-location", false, "exclude assets with a location baked into the image")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	req := &models.SearchRequest{
		Query:            queryStr,
		Filters:          sf.filters(),
		Limit:            *limit,
		IncludeReasoning: *reasoning,
	}
	if err := req.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid search: %v\n", err)
		os.Exit(1)
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		client := newAPIClient(*serverURL)
		if *semantic {
			response, err = client.semanticSearch(req.Query, req.Limit)
		} else {
			response, err = client.search(req)
		}
	} else {
		_, components, logger := openDirect(*configPath)
		defer logger.Sync()
		defer components.Close()
		ctx := context.Background()
		if *semantic {
			response, err = components.Engine.SemanticSearch(ctx, req.Query, req.Limit)
		} else {
			response, err = components.Engine.Search(ctx, req)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the catalog directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status *statusResponse
	if *serverURL != "" {
		res, err := newAPIClient(*serverURL).status()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = res
	} else {
		cfg, components, logger := openDirect(*configPath)
		defer logger.Sync()
		defer components.Close()
		st, err := components.Indexer.Status(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = &statusResponse{SyncStatus: *st}
		if n, err := storage.CatalogDiskUsage(cfg.Storage.DatabasePath, cfg.Storage.TrigramIndexPath, cfg.ObjectStore.LocalDir); err == nil {
			status.DiskUsageBytes = &n
		}
	}

	switch *outputFormat {
	case "json":
		if err := cli.WriteJSON(os.Stdout, status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		cli.WriteSyncStatus(os.Stdout, &status.SyncStatus, status.DiskUsageBytes)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// runIngest registers every matching file under a directory. It opens the
// catalog directly, so stop the server first when using SQLite.
func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kura ingest [flags] <directory>")
		os.Exit(1)
	}
	root, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid path: %v\n", err)
		os.Exit(1)
	}

	cfg, components, logger := openDirect(*configPath)
	defer logger.Sync()
	defer components.Close()

	n, err := components.Indexer.IngestDirectory(context.Background(), root, cfg.Watch.Extensions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Registered %d file(s) from %s\n", n, root)
}

func runEmbed() {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the catalog directly)")
	_ = fs.Parse(os.Args[2:])

	if *serverURL != "" {
		report, err := newAPIClient(*serverURL).embed()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Embed failed: %v\n", err)
			os.Exit(1)
		}
		printEmbedReport(report.Processed, report.Failed, report.Batches, report.Version)
		return
	}
	_, components, logger := openDirect(*configPath)
	defer logger.Sync()
	defer components.Close()
	report, err := components.Indexer.EmbedPending(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embed failed: %v\n", err)
		os.Exit(1)
	}
	printEmbedReport(report.Processed, report.Failed, report.Batches, report.Version)
}

func printEmbedReport(processed, failed, batches, version int) {
	fmt.Printf("Embedded %d asset(s) in %d batch(es), %d failed (embedding version %d)\n",
		processed, batches, failed, version)
}

// runReset handles reindex and retry-failed, which both move assets back
// into the queue for the next embed pass.
func runReset(command string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the catalog directly)")
	_ = fs.Parse(os.Args[2:])

	var res resetResponse
	if *serverURL != "" {
		client := newAPIClient(*serverURL)
		var out *resetResponse
		var err error
		if command == "reindex" {
			out, err = client.reindexAll()
		} else {
			out, err = client.retryFailed()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", command, err)
			os.Exit(1)
		}
		res = *out
	} else {
		_, components, logger := openDirect(*configPath)
		defer logger.Sync()
		defer components.Close()
		ctx := context.Background()
		var err error
		if command == "reindex" {
			res.ResetCount, res.EmbeddingVersion, err = components.Indexer.ReindexAll(ctx)
		} else {
			res.ResetCount, err = components.Indexer.RetryFailed(ctx)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", command, err)
			os.Exit(1)
		}
	}

	if command == "reindex" {
		fmt.Printf("Queued %d asset(s) for re-embedding at version %d\n", res.ResetCount, res.EmbeddingVersion)
		return
	}
	fmt.Printf("Moved %d failed asset(s) back to pending\n", res.ResetCount)
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kura watch <add|remove|list> [path]")
		fmt.Println("  kura watch add <path>     Add a drop folder")
		fmt.Println("  kura watch remove <path>  Stop watching a drop folder")
		fmt.Println("  kura watch list           List drop folders")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	syncExisting := fs.Bool("sync", true, "ingest files already in the folder (add only)")
	_ = fs.Parse(os.Args[3:])
	client := newAPIClient(*serverURL)

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kura watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		if err := client.addWatchDirectory(path, *syncExisting); err != nil {
			fmt.Printf("Add failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kura watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		if err := client.removeWatchDirectory(path); err != nil {
			fmt.Printf("Remove failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		dirs, err := client.watchDirectories()
		if err != nil {
			fmt.Printf("List failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`kura - Hybrid search for a digital asset catalog

Usage:
  kura server [flags]             Start the HTTP server and drop-folder watcher
  kura search [flags] <query>     Search assets
  kura status [flags]             Show pipeline status
  kura ingest [flags] <dir>       Register every image and video under a directory
  kura embed [flags]              Embed assets waiting in the queue
  kura reindex [flags]            Queue every indexed asset for a new embedding version
  kura retry-failed [flags]       Move failed assets back to pending
  kura watch <add|remove|list>    Manage drop folders
  kura mcp [--server url]         Serve catalog tools to MCP clients over stdio
  kura version                    Show version
  kura help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kura/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string            Server URL (default: http://localhost:8080). Use --server "" to open the catalog directly.
  --limit int                Number of results (default: 20, max 100)
  --reasoning                Explain why each result matched
  --semantic                 Meaning-only search
  --asset-type string        template or inspiration
  --album string             Album name
  --media-type string        image or video
  --min-reusability int      Minimum reusability score (1-5)
  --output string            text, compact, or json (default: text)

Status, Embed, Reindex, Retry-failed Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct mode.

MCP:
  --server string    Server URL (default: $KURA_API_URL or http://localhost:8080)
  KURA_API_KEY       Sent as X-API-Key on every request when set

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)
  --sync             Ingest existing files when adding (default: true)

Examples:
  kura server
  kura search "sunset beach"
  kura search --asset-type template --min-reusability 4 "product launch"
  kura search --output json "team photo"
  kura status --output json
  kura ingest ~/Pictures/brand
  kura embed
  kura watch add /path/to/dropfolder
  kura watch list`)
}
