package filtering

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	celgo "github.com/google/cel-go/cel"

	"sieve/internal/config"
	"sieve/internal/constants"
	"sieve/internal/logger"
	"sieve/pkg/cel"
	"sieve/pkg/metrics"
	"sieve/pkg/models"
	"sieve/pkg/tracing"
)

type errorHandlingStatus int

const (
	errorHandlingDeny errorHandlingStatus = iota
	errorHandlingSkip
	errorHandlingFail
)

// compiledFilterSet pairs a set with the program built from it at reload.
type compiledFilterSet struct {
	set        models.FilterSet
	program    celgo.Program
	expression string
}

type Service struct {
	repo            Repository
	sets            []compiledFilterSet
	setsMu          sync.RWMutex
	reloadSeq       atomic.Uint64
	appliedSeq      uint64 // guarded by setsMu
	filteringConfig config.FilteringConfig
	evaluator       *cel.Evaluator
	logger          logger.Logger
}

func NewService(repo Repository, cfg config.FilteringConfig, log logger.Logger) (*Service, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	return &Service{
		repo:            repo,
		filteringConfig: cfg,
		sets:            make([]compiledFilterSet, 0),
		evaluator:       evaluator,
		logger:          log,
	}, nil
}

// Filter runs msg through every active set in priority order. It returns the
// IDs of the sets the message matched; evaluation stops at the first set that
// does not match.
func (s *Service) Filter(ctx context.Context, msg models.MessageEnvelope) (bool, []string, error) {
	ctx, span := tracing.GetTracer("filtering-service").Start(ctx, "filtering.filter")
	defer span.End()

	sets := s.getActiveSets()
	start := time.Now()

	passed, applied, err := s.evaluateSets(ctx, sets, cel.SubjectFromEnvelope(&msg))
	if err != nil {
		span.RecordError(err)
		s.recordMetrics(time.Since(start), "error")
		return false, applied, err
	}

	status := "passed"
	if !passed {
		status = "filtered"
	}
	s.recordMetrics(time.Since(start), status)
	return passed, applied, nil
}

func (s *Service) getActiveSets() []compiledFilterSet {
	s.setsMu.RLock()
	defer s.setsMu.RUnlock()

	sets := make([]compiledFilterSet, len(s.sets))
	copy(sets, s.sets)
	return sets
}

func (s *Service) evaluateSets(ctx context.Context, sets []compiledFilterSet, subject cel.Subject) (bool, []string, error) {
	ctx, span := tracing.GetTracer("filtering-service").Start(ctx, "filtering.evaluate_sets")
	defer span.End()

	applied := make([]string, 0, len(sets))

	for _, cs := range sets {
		if err := ctx.Err(); err != nil {
			return false, nil, err
		}

		matched, err := s.evaluator.Matches(ctx, cs.program, subject)
		if err != nil {
			switch s.handleEvaluationError(ctx, cs.set, err) {
			case errorHandlingDeny:
				metrics.IncFilterSetEvaluation(cs.set.ID, cs.set.Name, "error")
				return false, applied, nil
			case errorHandlingFail:
				metrics.IncFilterSetEvaluation(cs.set.ID, cs.set.Name, "error")
				return false, applied, fmt.Errorf("filter set %s: %w", cs.set.ID, err)
			}
			metrics.IncFilterSetEvaluation(cs.set.ID, cs.set.Name, "skipped")
			continue
		}

		if !matched {
			metrics.IncFilterSetEvaluation(cs.set.ID, cs.set.Name, "filtered")
			s.logger.DebugwCtx(ctx, "Filter set rejected message",
				"filter_set_id", cs.set.ID,
				"filter_set_name", cs.set.Name,
			)
			return false, applied, nil
		}

		metrics.IncFilterSetEvaluation(cs.set.ID, cs.set.Name, "passed")
		applied = append(applied, cs.set.ID)
	}

	return true, applied, nil
}

func (s *Service) handleEvaluationError(ctx context.Context, set models.FilterSet, err error) errorHandlingStatus {
	s.logger.ErrorwCtx(ctx, "Filter set evaluation error",
		"filter_set_id", set.ID,
		"filter_set_name", set.Name,
		"error", err,
	)

	switch s.filteringConfig.Fallback.OnError {
	case constants.FallbackAllow:
		metrics.FallbackUsageTotal.WithLabelValues("filtering", "allow_on_error", "evaluation_error").Inc()
		s.logger.WarnwCtx(ctx, "Evaluation error, skipping filter set (fallback: allow)",
			"filter_set_id", set.ID,
			"error", err,
		)
		return errorHandlingSkip
	case constants.FallbackDeny:
		metrics.FallbackUsageTotal.WithLabelValues("filtering", "deny_on_error", "evaluation_error").Inc()
		s.logger.WarnwCtx(ctx, "Evaluation error, denying message (fallback: deny)",
			"filter_set_id", set.ID,
			"error", err,
		)
		return errorHandlingDeny
	default:
		return errorHandlingFail
	}
}

func (s *Service) recordMetrics(duration time.Duration, status string) {
	metrics.FilteringMessagesTotal.WithLabelValues(status).Inc()
	metrics.ObserveFilteringDuration(duration, status)
}

// ReloadFilterSets replaces the active sets with a freshly compiled copy of
// the repository contents. Sets that do not compile are left out. Concurrent
// reloads may overlap; the one that started reading last wins, so a slow
// periodic reload never replaces sets loaded by a later config event.
func (s *Service) ReloadFilterSets(ctx context.Context, skipJitter ...bool) error {
	shouldSkipJitter := len(skipJitter) > 0 && skipJitter[0]

	if err := s.applyJitter(ctx, shouldSkipJitter); err != nil {
		return err
	}

	seq := s.reloadSeq.Add(1)
	s.logger.DebugwCtx(ctx, "Loading filter sets from repository", "reload_seq", seq)
	sets, err := s.repo.GetActiveFilterSets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load filter sets: %w", err)
	}

	s.updateSets(ctx, seq, s.compileSets(ctx, sets))
	return nil
}

func (s *Service) applyJitter(ctx context.Context, skipJitter bool) error {
	if skipJitter || s.filteringConfig.Reload.JitterMaxMilliseconds <= 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(s.filteringConfig.Reload.JitterMaxMilliseconds)) * time.Millisecond
	s.logger.DebugwCtx(ctx, "Reload scheduled with jitter",
		"jitter_ms", jitter.Milliseconds(),
	)

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) compileSets(ctx context.Context, sets []models.FilterSet) []compiledFilterSet {
	compiled := make([]compiledFilterSet, 0, len(sets))
	for _, set := range sets {
		if !set.Enabled {
			continue
		}
		program, expr, err := s.evaluator.CompileFilterSet(set.Filters, set.Condition)
		if err != nil {
			metrics.FilteringCompileFailuresTotal.Inc()
			s.logger.ErrorwCtx(ctx, "Skipping filter set that failed to compile",
				"filter_set_id", set.ID,
				"filter_set_name", set.Name,
				"error", err,
			)
			continue
		}
		compiled = append(compiled, compiledFilterSet{set: set, program: program, expression: expr})
	}
	return compiled
}

func (s *Service) updateSets(ctx context.Context, seq uint64, sets []compiledFilterSet) {
	s.setsMu.Lock()
	if seq < s.appliedSeq {
		s.setsMu.Unlock()
		s.logger.DebugwCtx(ctx, "Discarding superseded filter set reload", "reload_seq", seq)
		return
	}
	s.appliedSeq = seq
	s.sets = sets
	s.setsMu.Unlock()

	metrics.SetFilteringActiveFilterSets(len(sets))
	s.logger.InfowCtx(ctx, "Successfully reloaded filter sets",
		"filter_sets_count", len(sets),
	)
}

// ActiveFilterSetIDs lists the compiled sets in evaluation order.
func (s *Service) ActiveFilterSetIDs() []string {
	sets := s.getActiveSets()
	ids := make([]string, len(sets))
	for i, cs := range sets {
		ids[i] = cs.set.ID
	}
	return ids
}

func (s *Service) StartReloader(ctx context.Context) error {
	interval := s.filteringConfig.Reload.IntervalSeconds
	if interval <= 0 {
		interval = constants.DefaultReloadIntervalSeconds
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	if err := s.ReloadFilterSets(ctx, true); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to reload filter sets",
			"error", err,
		)
	}

	for {
		select {
		case <-ticker.C:
			if err := s.ReloadFilterSets(ctx); err != nil {
				s.logger.ErrorwCtx(ctx, "Failed to reload filter sets",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
