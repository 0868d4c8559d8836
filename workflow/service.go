package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/petroeval_backend/engine"
	"bitbucket.org/mmdatafocus/petroeval_backend/models"
	"bitbucket.org/mmdatafocus/petroeval_backend/utils"
	"github.com/sirupsen/logrus"
)

// CalculationService is the submission front door. It validates the input,
// consults the dedup index for stochastic runs, and dispatches to the
// strategy registered for the input's mode.
type CalculationService struct {
	Strategies map[string]ExecutionStrategy
	Binding    *BindingService
	Logger     *logrus.Logger
}

func NewCalculationService(binding *BindingService, logger *logrus.Logger, strategies ...ExecutionStrategy) *CalculationService {
	byMode := make(map[string]ExecutionStrategy, len(strategies))
	for _, s := range strategies {
		byMode[s.Mode()] = s
	}
	return &CalculationService{Strategies: byMode, Binding: binding, Logger: logger}
}

// Submit validates and executes a calculation request. Stochastic inputs
// whose fingerprint matches an existing completed record short-circuit to
// that record's stored results; the case is rebound to the prior record and
// any pending deletion on it is cancelled.
func (s *CalculationService) Submit(ctx context.Context, input engine.CalculationInput, progress engine.ProgressFunc) (*engine.CalculationResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	strategy, ok := s.Strategies[input.Mode]
	if !ok {
		return nil, engine.ErrUnknownMode
	}

	if strategy.ShouldPersist() {
		prior, fingerprint, err := s.Binding.DedupLookup(ctx, input)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			// Bind clears the prior record's pending-deletion markers inside
			// the same transaction that repoints the case.
			if err := s.Binding.Bind(ctx, input.CaseId, prior.ID, fingerprint); err != nil {
				return nil, err
			}
			if s.Logger != nil {
				s.Logger.WithFields(logrus.Fields{
					"field":          "CalculationService",
					"case_id":        input.CaseId,
					"calculation_id": prior.ID,
					"fingerprint":    engine.ShortForm(fingerprint),
				}).Info("deduplicated stochastic calculation")
			}
			return ResultFromRecord(prior)
		}
	}

	return strategy.Execute(ctx, input, progress)
}

// ResultFromRecord rehydrates a CalculationResult from a persisted record's
// JSON columns.
func ResultFromRecord(calc *models.Calculation) (*engine.CalculationResult, error) {
	result := &engine.CalculationResult{
		Fingerprint:   calc.Fingerprint,
		Mode:          calc.Mode,
		CalculationId: calc.ID,
		Iterations:    calc.Iterations,
		Duration:      time.Duration(calc.DurationMs) * time.Millisecond,
	}
	if len(calc.StageResultsJSON) > 0 {
		if err := utils.UnmarshalFromJSON(calc.StageResultsJSON, &result.StageResults); err != nil {
			return nil, err
		}
	}
	if len(calc.ResultsJSON) > 0 {
		if err := utils.UnmarshalFromJSON(calc.ResultsJSON, &result.Metrics); err != nil {
			return nil, err
		}
	}
	if len(calc.DistributionsJSON) > 0 {
		if err := utils.UnmarshalFromJSON(calc.DistributionsJSON, &result.Distributions); err != nil {
			return nil, err
		}
	}
	return result, nil
}
