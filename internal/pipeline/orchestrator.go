package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// SynthesisRequest carries the inputs for one generation attempt. RetryHint
// is empty on the first attempt and summarizes the previous audit findings
// afterwards, so the generator can steer the regeneration.
type SynthesisRequest struct {
	RecordID         string
	BodyImageURL     string
	GarmentImageURLs []string
	Attempt          int
	RetryHint        string
}

// Candidate is one attempt's raw output prior to acceptance.
type Candidate struct {
	Data   []byte
	Format string // MIME type
}

// Synthesizer generates a try-on candidate image. It is treated as untrusted
// and fallible; an error consumes the attempt without failing the job.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*Candidate, error)
}

// AuditRequest identifies the images the auditor compares.
type AuditRequest struct {
	BodyImageURL     string
	ResultImageURL   string
	GarmentImageURLs []string
}

// Auditor scores a candidate against the inputs. Its transport failures are
// folded into the attempt, the same as a synthesis error.
type Auditor interface {
	Audit(ctx context.Context, req AuditRequest) (*domain.AuditReport, error)
}

// RecordStore is the slice of the repository the orchestrator mutates.
type RecordStore interface {
	BeginProcessing(ctx context.Context, id string) error
	CompleteSuccess(ctx context.Context, id, resultURL string, score float64, report *domain.AuditReport, attempts int) error
	CompleteFailure(ctx context.Context, id, reason string, attempts int) error
}

// ResultStore persists candidate image bytes and returns the canonical key.
type ResultStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Config bounds the regeneration loop.
type Config struct {
	MaxAttempts      int
	QualityThreshold float64
	AttemptTimeout   time.Duration
	JobTimeout       time.Duration
	ResultBaseURL    string
}

// Orchestrator drives a claimed try-on record through the bounded
// quality-gated regeneration loop and finalizes it exactly once.
type Orchestrator struct {
	store   RecordStore
	synth   Synthesizer
	auditor Auditor
	results ResultStore
	cfg     Config
	logger  zerolog.Logger
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(store RecordStore, synth Synthesizer, auditor Auditor, results ResultStore, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Orchestrator{
		store:   store,
		synth:   synth,
		auditor: auditor,
		results: results,
		cfg:     cfg,
		logger:  logger.With().Str("component", "pipeline").Logger(),
	}
}

// scored is the best-of accumulator threaded through the attempt loop.
type scored struct {
	resultURL string
	report    *domain.AuditReport
	attempt   int
}

// Process takes a pending record through to a terminal state. The claim
// itself is the pending -> processing transition: when another worker won the
// race the transition fails and Process returns without side effects.
func (o *Orchestrator) Process(ctx context.Context, rec *domain.TryOnRecord) error {
	if err := o.store.BeginProcessing(ctx, rec.ID); err != nil {
		return err
	}
	log := o.logger.With().Str("record_id", rec.ID).Logger()
	log.Info().Int("max_attempts", o.cfg.MaxAttempts).Msg("job started")

	jobCtx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()

	var (
		best         *scored
		lastErr      error
		hint         string
		attemptsUsed int
		timedOut     bool
	)

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if jobCtx.Err() != nil {
			timedOut = true
			break
		}
		attemptsUsed = attempt

		resultURL, report, err := o.runAttempt(jobCtx, rec, attempt, hint)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Msg("attempt failed")
			if jobCtx.Err() != nil {
				timedOut = true
				break
			}
			continue
		}

		log.Info().
			Int("attempt", attempt).
			Float64("score", report.VisualQualityScore).
			Msg("candidate audited")

		if report.Passed(o.cfg.QualityThreshold) {
			best = &scored{resultURL: resultURL, report: report, attempt: attempt}
			break
		}
		// Strictly-greater comparison keeps the earliest candidate on ties.
		if best == nil || report.VisualQualityScore > best.report.VisualQualityScore {
			best = &scored{resultURL: resultURL, report: report, attempt: attempt}
		}
		hint = retryHint(report)
	}

	// Finalization must not be lost to the job deadline.
	if best != nil {
		err := o.store.CompleteSuccess(ctx, rec.ID, best.resultURL, best.report.VisualQualityScore, best.report, attemptsUsed)
		if err != nil {
			return fmt.Errorf("finalize success: %w", err)
		}
		log.Info().
			Int("attempts", attemptsUsed).
			Float64("score", best.report.VisualQualityScore).
			Bool("below_threshold", !best.report.Passed(o.cfg.QualityThreshold)).
			Msg("job succeeded")
		return nil
	}

	reason := fmt.Sprintf("image synthesis failed after %d attempts", attemptsUsed)
	if timedOut {
		reason = "processing timed out before any result was produced"
	}
	if err := o.store.CompleteFailure(ctx, rec.ID, reason, attemptsUsed); err != nil {
		return fmt.Errorf("finalize failure: %w", err)
	}
	log.Warn().Err(lastErr).Int("attempts", attemptsUsed).Bool("timed_out", timedOut).Msg("job failed")
	return nil
}

// runAttempt performs one synthesize -> persist -> audit cycle under the
// per-attempt deadline.
func (o *Orchestrator) runAttempt(ctx context.Context, rec *domain.TryOnRecord, attempt int, hint string) (string, *domain.AuditReport, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()

	candidate, err := o.synth.Synthesize(attemptCtx, SynthesisRequest{
		RecordID:         rec.ID,
		BodyImageURL:     rec.BodyImageURL,
		GarmentImageURLs: rec.GarmentImageURLs,
		Attempt:          attempt,
		RetryHint:        hint,
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrSynthesisFailed, err)
	}
	if candidate == nil || len(candidate.Data) == 0 {
		return "", nil, fmt.Errorf("%w: empty candidate", domain.ErrSynthesisFailed)
	}

	key := fmt.Sprintf("results/%s/attempt-%02d%s", rec.ID, attempt, extensionForMIME(candidate.Format))
	savedKey, err := o.results.Write(attemptCtx, key, candidate.Data)
	if err != nil {
		return "", nil, fmt.Errorf("persist candidate: %w", err)
	}
	resultURL := joinURL(o.cfg.ResultBaseURL, savedKey)

	report, err := o.auditor.Audit(attemptCtx, AuditRequest{
		BodyImageURL:     rec.BodyImageURL,
		ResultImageURL:   resultURL,
		GarmentImageURLs: rec.GarmentImageURLs,
	})
	if err != nil {
		return "", nil, fmt.Errorf("audit candidate: %w", err)
	}
	return resultURL, report, nil
}

// retryHint condenses audit findings into a steering hint for the next
// generation attempt.
func retryHint(report *domain.AuditReport) string {
	if report == nil {
		return ""
	}
	parts := make([]string, 0, len(report.Issues)+1)
	if report.Summary != "" {
		parts = append(parts, report.Summary)
	}
	parts = append(parts, report.Issues...)
	return strings.Join(parts, "; ")
}

func joinURL(base, key string) string {
	if base == "" {
		return key
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg", "":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
