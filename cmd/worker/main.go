package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"server/internal/adapter/repo"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/pipeline"
	"server/internal/providers/audit"
	"server/internal/providers/genai"
	"server/internal/providers/tryon"
	"server/internal/storage"
)

type tryOnWorker struct {
	ctx      context.Context
	records  *repo.TryOnRepositoryPG
	pipeline *pipeline.Orchestrator
	logger   infra.Logger
	poll     time.Duration
	slots    chan struct{}
	wg       sync.WaitGroup
}

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	records := repo.NewTryOnRepository(runner)

	storagePath := cfg.StoragePath
	if storagePath == "" {
		storagePath = "./storage"
	}
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	geminiAPIKey := strings.TrimSpace(cfg.GeminiAPIKey)
	if geminiAPIKey == "" {
		credStore := credentials.NewStore(runner)
		keyFromStore, err := credStore.GeminiAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load gemini api key from store")
		} else {
			geminiAPIKey = keyFromStore
		}
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	synthClient, err := genai.NewClient(genai.Options{
		APIKey:     geminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: httpClient,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure synthesis client")
	}
	auditClient, err := genai.NewClient(genai.Options{
		APIKey:     geminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiAuditModel,
		HTTPClient: httpClient,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure audit client")
	}

	if geminiAPIKey == "" {
		logger.Warn().Str("model", synthClient.Model()).Msg("worker: gemini api key missing, using synthetic generation")
	}

	orchestrator := pipeline.NewOrchestrator(
		records,
		tryon.NewGeminiSynthesizer(synthClient),
		audit.NewGeminiAuditor(auditClient),
		fileStore,
		pipeline.Config{
			MaxAttempts:      cfg.MaxAttempts,
			QualityThreshold: cfg.QualityThreshold,
			AttemptTimeout:   cfg.AttemptTimeout,
			JobTimeout:       cfg.JobTimeout,
			ResultBaseURL:    cfg.StorageBaseURL,
		},
		logger,
	)

	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	worker := &tryOnWorker{
		ctx:      ctx,
		records:  records,
		pipeline: orchestrator,
		logger:   logger,
		poll:     cfg.WorkerPollInterval,
		slots:    make(chan struct{}, concurrency),
	}

	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	worker.wg.Wait()
	logger.Info().Msg("worker: stopped")
}

// Run polls for pending records and hands each to the pipeline. The slots
// channel caps how many jobs run at once; claiming races between replicas are
// resolved by the pipeline's conditional pending -> processing transition.
func (w *tryOnWorker) Run() error {
	w.logger.Info().Int("concurrency", cap(w.slots)).Msg("worker: started")
	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		default:
		}

		rec, err := w.records.NextPending(w.ctx)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				w.sleep()
				continue
			}
			w.logger.Error().Err(err).Msg("worker: failed to poll for jobs")
			w.sleep()
			continue
		}

		select {
		case w.slots <- struct{}{}:
		case <-w.ctx.Done():
			return w.ctx.Err()
		}
		w.wg.Add(1)
		go func(rec *domain.TryOnRecord) {
			defer w.wg.Done()
			defer func() { <-w.slots }()
			w.handle(rec)
		}(rec)

		// The claim is asynchronous; wait a poll interval so the next
		// NextPending does not return the record just dispatched.
		w.sleep()
	}
}

func (w *tryOnWorker) handle(rec *domain.TryOnRecord) {
	err := w.pipeline.Process(w.ctx, rec)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidTransition):
		// Another worker claimed it first.
		w.logger.Debug().Str("record_id", rec.ID).Msg("worker: lost claim race")
	case errors.Is(err, context.Canceled):
	default:
		w.logger.Error().Err(err).Str("record_id", rec.ID).Msg("worker: job processing error")
	}
}

func (w *tryOnWorker) sleep() {
	select {
	case <-time.After(w.poll):
	case <-w.ctx.Done():
	}
}
