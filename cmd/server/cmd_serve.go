package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gwi.com/legal-rag/internal/api"
	"gwi.com/legal-rag/internal/cache"
	"gwi.com/legal-rag/internal/config"
	"gwi.com/legal-rag/internal/core"
	"gwi.com/legal-rag/internal/extract"
	"gwi.com/legal-rag/internal/gcp"
	"gwi.com/legal-rag/internal/logging"
	"gwi.com/legal-rag/internal/rag"
	"gwi.com/legal-rag/internal/risk"
	"gwi.com/legal-rag/internal/storage"
	"gwi.com/legal-rag/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	log := logging.New("server")
	if logging.ParseLevel(cfg.LogLevel) == slog.LevelDebug {
		log.Debug("service starting in DEBUG mode")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	router, closeAll, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeAll()

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,                      // uploads can be large
		WriteTimeout: cfg.RAGCallTimeout*3 + 30*time.Second, // explain and grounded calls can each take up to RAG_CALL_TIMEOUT
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err, ok := <-errCh:
		if ok {
			return err
		}
	}
	log.Info("shutting down server")

	// Give active connections time to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exiting gracefully")
	return nil
}

// buildApp wires every component from cfg. The returned func releases clients in
// reverse order of creation.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (http.Handler, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (http.Handler, func(), error) {
		closeAll()
		return nil, nil, err
	}

	auth, err := gcp.NewAuth(ctx, gcp.Credentials{
		CredentialsPath:     cfg.CredentialsPath,
		ServiceAccountEmail: cfg.ServiceAccountEmail,
	})
	if err != nil {
		return fail(err)
	}

	st, err := storage.New(ctx, cfg.StagingBucket, storage.GCSOptions{ClientOptions: auth.ClientOptions()})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize storage: %w", err))
	}
	if c, ok := st.(io.Closer); ok {
		closers = append(closers, func() { _ = c.Close() })
	}

	extractor, err := extract.New(cfg.UnidocLicenseKey)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize PDF extractor: %w", err))
	}

	rules, err := risk.LoadRuleSet(cfg.RiskRulesFile, cfg.RiskMatchPolicy)
	if err != nil {
		return fail(err)
	}
	evaluator, err := risk.NewEvaluator(rules)
	if err != nil {
		return fail(fmt.Errorf("invalid risk rule set: %w", err))
	}
	log.Info("risk rules loaded", "version", evaluator.Version(), "policy", evaluator.Policy(), "rules", len(rules.Rules))

	corpus, err := rag.NewVertexCorpus(ctx, cfg.Project, cfg.Location, auth.ClientOptions()...)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize RAG corpus client: %w", err))
	}
	closers = append(closers, func() { _ = corpus.Close() })

	grounded, err := rag.NewVertexGenerator(ctx, rag.VertexGeneratorConfig{
		Project:    cfg.Project,
		Location:   cfg.Location,
		Model:      cfg.GeminiModel,
		TopK:       cfg.RAGTopK,
		HTTPClient: auth.HTTPClient(ctx),
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize generator: %w", err))
	}

	var direct rag.Generator
	if cfg.GeminiAPIKey != "" {
		gemini, err := rag.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize Gemini API client: %w", err))
		}
		closers = append(closers, gemini.Close)
		direct = gemini
	}

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize database: %w", err))
	}
	closers = append(closers, func() { _ = dbStore.Close() })

	summaries := cache.NewSummaryCache(nil, cfg.SummaryCacheTTL)
	if cfg.RedisAddr != "" {
		client, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			// The cache is optional.
			log.Warn("summary cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			closers = append(closers, func() { _ = client.Close() })
			summaries = cache.NewSummaryCache(client, cfg.SummaryCacheTTL)
		}
	}

	ragService := rag.NewService(grounded, direct, cfg.RAGCallTimeout)
	ingestor := core.NewIngestor(dbStore, corpus, rag.Poll{
		Attempts: cfg.ReadyPollAttempts,
		Interval: cfg.ReadyPollInterval,
	}, cfg.RAGCallTimeout)

	documents := core.NewDocumentService(dbStore, st, extractor, ingestor, core.DocumentServiceConfig{
		IngestOnUpload: cfg.IngestOnUpload,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	analysis := core.NewAnalysisService(dbStore, ingestor, ragService, evaluator, summaries)
	chat := core.NewChatService(dbStore, ingestor, ragService)

	apiHandler := api.NewAPIHandler(documents, analysis, chat, cfg.MaxUploadBytes)
	log.Info("components ready",
		"project", cfg.Project,
		"location", cfg.Location,
		"bucket", cfg.StagingBucket,
		"model", cfg.GeminiModel,
		"gemini_api_direct", direct != nil,
		"summary_cache", summaries.Enabled(),
	)
	return api.NewRouter(apiHandler), closeAll, nil
}
