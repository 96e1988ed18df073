// Package main provides the localdocs daemon: a folder indexing and
// similarity retrieval service for local document collections.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"localdocs/internal/config"
	"localdocs/internal/contextutil"
	"localdocs/internal/embedding"
	"localdocs/internal/engine"
	"localdocs/internal/extract"
	"localdocs/internal/handlers"
	"localdocs/internal/http"
	"localdocs/internal/retrieval"
	"localdocs/internal/storage"
	"localdocs/internal/vectorstore"
	"localdocs/internal/watcher"
)

var rootCmd = &cobra.Command{
	Use:   "localdocsd",
	Short: "Local document indexing and retrieval service",
	Long: `localdocsd watches registered folders, chunks and embeds their
documents into a local SQLite database and answers similarity queries
over the indexed content.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the indexing engine and HTTP API",
	RunE:  runServe,
}

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Index a folder once and exit",
	Long: `Registers the folder under the given collection if not already
registered, indexes it to completion and exits. Without a path argument,
re-scans every registered folder instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

var scanCollection string

func init() {
	scanCmd.Flags().StringVar(&scanCollection, "collection", "default", "collection to register the folder under")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles everything the commands wire up.
type app struct {
	cfg     *config.Config
	db      interface {
		PingContext(ctx context.Context) error
		Close() error
	}
	engine    *engine.Engine
	batcher   *embedding.Batcher
	watcher   *watcher.Watcher
	retriever *retrieval.Retriever
	events    *handlers.EventsHandler
}

// setup loads configuration and wires the full pipeline. The returned app
// is not started yet.
func setup(notifier engine.Notifier) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := storage.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("database initialized", "path", cfg.DBPath)

	folderRepo := storage.NewFolderRepo(db)
	documentRepo := storage.NewDocumentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)

	var client embedding.Client
	switch cfg.EmbeddingProvider {
	case "openai":
		client = embedding.NewOpenAIClient(cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingVectorSize)
	default:
		client = embedding.NewLocalClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingVectorSize)
	}

	// Fail fast on a misconfigured embedding endpoint or model.
	ctx := context.Background()
	if _, err := client.EmbedText(ctx, "test"); err != nil {
		return nil, fmt.Errorf("failed to validate embedding client: %w", err)
	}
	slog.Info("embedding client validated", "provider", cfg.EmbeddingProvider, "model", cfg.EmbeddingModelName)

	var mirror vectorstore.VectorStore
	retrieverOpts := []retrieval.Option{}
	if cfg.MirrorEnabled() {
		qdrantStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
		}
		if err := qdrantStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.EmbeddingVectorSize); err != nil {
			return nil, fmt.Errorf("failed to ensure Qdrant collection: %w", err)
		}
		mirror = qdrantStore
		retrieverOpts = append(retrieverOpts, retrieval.WithMirror(qdrantStore, cfg.QdrantCollection))
		slog.Info("vector mirror enabled", "collection", cfg.QdrantCollection)
	}

	w, err := watcher.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	var eng *engine.Engine
	batcher := embedding.NewBatcher(client, cfg.EmbeddingBatchSize,
		func(results []embedding.Result) { eng.OnEmbeddingsGenerated(results) },
		func(folderID int64, err error) { eng.OnEmbeddingError(folderID, err) },
	)

	eng = engine.New(engine.Deps{
		Folders:          folderRepo,
		Documents:        documentRepo,
		Chunks:           chunkRepo,
		Extractors:       extract.NewRegistry(),
		Dispatcher:       batcher,
		Watch:            w,
		Notifier:         notifier,
		Mirror:           mirror,
		MirrorCollection: cfg.QdrantCollection,
		ChunkSize:        cfg.ChunkSize,
	})

	return &app{
		cfg:       cfg,
		db:        db,
		engine:    eng,
		batcher:   batcher,
		watcher:   w,
		retriever: retrieval.New(client, chunkRepo, retrieverOpts...),
	}, nil
}

// start launches the pipeline and the watcher-to-engine event bridge.
func (a *app) start(ctx context.Context) error {
	a.batcher.Start()
	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	go func() {
		for ev := range a.watcher.Events() {
			a.engine.DirectoryChanged(ev.Root)
		}
	}()
	return nil
}

func (a *app) shutdown() {
	a.batcher.Stop()
	_ = a.watcher.Close()
	_ = a.db.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	events := handlers.NewEventsHandler()
	a, err := setup(events)
	if err != nil {
		return err
	}
	a.events = events
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = contextutil.WithLogger(ctx, slog.Default())

	if err := a.start(ctx); err != nil {
		return err
	}

	router := http.NewRouter(&http.Deps{
		Engine:    a.engine,
		Retriever: a.retriever,
		DB:        a.db,
		Events:    a.events,
	})

	server := &nethttp.Server{
		Addr:        ":" + a.cfg.APIPort,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "port", a.cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	a, err := setup(engine.NopNotifier{})
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = contextutil.WithLogger(ctx, slog.Default())

	if err := a.start(ctx); err != nil {
		return err
	}

	if len(args) == 1 {
		path := args[0]
		items, err := a.engine.CollectionList(ctx)
		if err != nil {
			return err
		}
		registered := false
		for _, item := range items {
			if item.Collection == scanCollection && item.Path == path {
				registered = true
				break
			}
		}
		if !registered && !a.engine.AddFolder(ctx, scanCollection, path) {
			return fmt.Errorf("failed to add folder %q to collection %q", path, scanCollection)
		}
	}

	// Poll until every folder settles.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		items, err := a.engine.CollectionList(ctx)
		if err != nil {
			return err
		}
		busy := false
		for _, item := range items {
			if item.Error != "" {
				return fmt.Errorf("folder %s failed: %s", item.Path, item.Error)
			}
			if item.Indexing {
				busy = true
			}
		}
		if !busy {
			break
		}
	}

	fmt.Println("Scan complete")
	return nil
}
