// Package scoring drives assessment instances through the scoring state
// machine: it loads an instance and its responses, runs the engine, and
// persists the result in a single write.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panbanda/rehabscore/internal/batch"
	"github.com/panbanda/rehabscore/internal/logging"
	"github.com/panbanda/rehabscore/internal/metrics"
	"github.com/panbanda/rehabscore/internal/store"
	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/scale"
	"github.com/panbanda/rehabscore/pkg/scoring"
)

var (
	// ErrNotReady is returned when scoring an instance still in draft.
	ErrNotReady = errors.New("instance is not ready to score")
	// ErrInvalidTransition is returned by MarkReady for instances past draft.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the persistence the service needs.
type Store interface {
	LoadInstance(ctx context.Context, id string) (models.AssessmentInstance, error)
	ListInstances(ctx context.Context, status models.Status) ([]models.AssessmentInstance, error)
	LoadResponses(ctx context.Context, id string) ([]models.ItemResponse, error)
	UpdateInstanceStatus(ctx context.Context, id string, status models.Status) error
	SaveScoreResult(ctx context.Context, id string, result *models.ScoreResult) error
}

// Service scores stored assessment instances.
type Service struct {
	store   Store
	engine  *scoring.Engine
	logger  *slog.Logger
	metrics *metrics.Metrics
	workers int
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithWorkers bounds how many instances ScoreBatch scores at once.
func WithWorkers(n int) Option {
	return func(s *Service) {
		s.workers = n
	}
}

// New creates a scoring service.
func New(st Store, engine *scoring.Engine, opts ...Option) *Service {
	s := &Service{
		store:   st,
		engine:  engine,
		logger:  logging.Discard(),
		workers: batch.DefaultWorkers(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkReady moves a draft instance to ready. Marking a ready instance again
// is a no-op.
func (s *Service) MarkReady(ctx context.Context, id string) error {
	inst, err := s.store.LoadInstance(ctx, id)
	if err != nil {
		return err
	}
	switch inst.Status {
	case models.StatusReady:
		return nil
	case models.StatusDraft:
		if err := s.store.UpdateInstanceStatus(ctx, id, models.StatusReady); err != nil {
			return err
		}
		s.logger.Info("instance ready", "instance", id)
		return nil
	default:
		return fmt.Errorf("instance %s is %s: %w", id, inst.Status, ErrInvalidTransition)
	}
}

// Score computes and persists the result for one instance. A pipeline
// failure returns a ready instance to draft and writes nothing; a failed
// write leaves the status unchanged and returns a *store.PersistenceError.
func (s *Service) Score(ctx context.Context, id string) (*models.ScoreResult, error) {
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveScore(start)
	}

	inst, err := s.store.LoadInstance(ctx, id)
	if err != nil {
		s.fail("load")
		return nil, err
	}
	if !inst.Status.Scorable() {
		s.fail("not_ready")
		return nil, fmt.Errorf("instance %s (%s): %w", id, inst.Status, ErrNotReady)
	}
	responses, err := s.store.LoadResponses(ctx, id)
	if err != nil {
		s.fail("load")
		return nil, err
	}

	res, err := s.engine.Compute(inst, responses)
	if err != nil {
		s.fail(failureReason(err))
		s.revert(ctx, inst)
		return nil, fmt.Errorf("scoring %s: %w", id, err)
	}
	for _, w := range res.Warnings {
		s.logger.Debug("scoring warning", "instance", id, "warning", w)
	}

	// The result is computed but not yet persisted; a cancelled caller gets
	// nothing written.
	if err := ctx.Err(); err != nil {
		s.fail("cancelled")
		return nil, err
	}

	if err := s.store.SaveScoreResult(ctx, id, res); err != nil {
		s.fail("persistence")
		s.logger.Error("saving score result", "instance", id, "error", err)
		var perr *store.PersistenceError
		if !errors.As(err, &perr) {
			err = &store.PersistenceError{Op: "save score result", Err: err}
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementScored(res.ScaleID, string(res.Validity.Verdict))
		s.metrics.ObserveNorms(res.ScaleID, res.NormTiers, len(res.NormDefects))
	}
	s.logger.Info("instance scored",
		"instance", id,
		"scale", res.ScaleID,
		"overall", res.Overall.Label,
		"verdict", res.Validity.Verdict,
		"duration", time.Since(start))
	return res, nil
}

func (s *Service) revert(ctx context.Context, inst models.AssessmentInstance) {
	if inst.Status != models.StatusReady {
		return
	}
	if err := s.store.UpdateInstanceStatus(ctx, inst.ID, models.StatusDraft); err != nil {
		s.logger.Error("returning instance to draft", "instance", inst.ID, "error", err)
	}
}

func (s *Service) fail(reason string) {
	if s.metrics != nil {
		s.metrics.IncrementFailure(reason)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, scoring.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, scale.ErrUnknownScale):
		return "unknown_scale"
	default:
		return "pipeline"
	}
}
