package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/petroeval_backend/config"
	"bitbucket.org/mmdatafocus/petroeval_backend/engine"
	"bitbucket.org/mmdatafocus/petroeval_backend/models"
	"bitbucket.org/mmdatafocus/petroeval_backend/utils"
	"github.com/sirupsen/logrus"
)

// ExecutionStrategy decides how a validated input gets executed: inline with
// a cache in front, or deferred to the async worker. Mode returns the
// calculation mode the strategy serves; the service dispatches on it.
type ExecutionStrategy interface {
	Execute(ctx context.Context, input engine.CalculationInput, progress engine.ProgressFunc) (*engine.CalculationResult, error)
	ShouldPersist() bool
	ShouldCache() bool
	Mode() string
}

// InteractiveStrategy runs the deterministic pipeline synchronously. Results
// are served from the Redis cache on a fingerprint hit; misses compute inline
// and populate the cache with a TTL. Nothing is persisted to the database.
type InteractiveStrategy struct {
	Pipeline *engine.Pipeline
	Cache    CacheStore
	Logger   *logrus.Logger

	CacheTTL time.Duration
}

func NewInteractiveStrategy(pipeline *engine.Pipeline, cache CacheStore, logger *logrus.Logger) *InteractiveStrategy {
	return &InteractiveStrategy{
		Pipeline: pipeline,
		Cache:    cache,
		Logger:   logger,
		CacheTTL: config.ResultCacheTTL(),
	}
}

func (s *InteractiveStrategy) Mode() string        { return models.CalculationModeDeterministic }
func (s *InteractiveStrategy) ShouldPersist() bool { return false }
func (s *InteractiveStrategy) ShouldCache() bool   { return true }

func (s *InteractiveStrategy) Execute(ctx context.Context, input engine.CalculationInput, progress engine.ProgressFunc) (*engine.CalculationResult, error) {
	fingerprint, err := engine.Fingerprint(input)
	if err != nil {
		return nil, err
	}

	cached, err := s.Cache.GetResult(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{
				"field":       "InteractiveStrategy",
				"case_id":     input.CaseId,
				"fingerprint": engine.ShortForm(fingerprint),
			}).Info("serving cached calculation result")
		}
		return cached, nil
	}

	result, err := s.Pipeline.RunDeterministic(input, progress)
	if err != nil {
		return nil, err
	}

	if err := s.Cache.SetResult(ctx, fingerprint, result, s.CacheTTL); err != nil {
		return nil, err
	}
	return result, nil
}

// StochasticStrategy defers execution to the worker: it persists a PENDING
// calculation record with the full input snapshot, then enqueues a job
// carrying only identifiers. The returned result is a pending handle with
// the record id and fingerprint; metrics arrive later via notifications.
type StochasticStrategy struct {
	Store  Store
	Queue  WorkQueue
	Logger *logrus.Logger
}

func NewStochasticStrategy(store Store, queue WorkQueue, logger *logrus.Logger) *StochasticStrategy {
	return &StochasticStrategy{Store: store, Queue: queue, Logger: logger}
}

func (s *StochasticStrategy) Mode() string        { return models.CalculationModeStochastic }
func (s *StochasticStrategy) ShouldPersist() bool { return true }
func (s *StochasticStrategy) ShouldCache() bool   { return false }

func (s *StochasticStrategy) Execute(ctx context.Context, input engine.CalculationInput, progress engine.ProgressFunc) (*engine.CalculationResult, error) {
	fingerprint, err := engine.Fingerprint(input)
	if err != nil {
		return nil, err
	}

	inputJSON, err := utils.MarshalToJSON(input)
	if err != nil {
		return nil, err
	}

	calc := &models.Calculation{
		CaseId:      input.CaseId,
		Fingerprint: fingerprint,
		Mode:        models.CalculationModeStochastic,
		Status:      models.CalculationStatusPending,
		Iterations:  input.Iterations,
		InputJSON:   []byte(inputJSON),
	}
	if err := s.Store.CreateCalculation(ctx, calc); err != nil {
		return nil, err
	}

	job := CalculationJob{CalculationId: calc.ID, CaseId: input.CaseId}
	if err := s.Queue.Enqueue(ctx, job); err != nil {
		msg := err.Error()
		updateErr := s.Store.UpdateCalculation(ctx, calc.ID, map[string]interface{}{
			"status":        models.CalculationStatusFailed,
			"error_message": &msg,
		})
		if updateErr != nil && s.Logger != nil {
			config.LogError(s.Logger, "workflow", "StochasticStrategy.Execute",
				"failed to mark calculation after enqueue error", map[string]interface{}{
					"calculation_id": calc.ID,
				}, updateErr)
		}
		return nil, err
	}

	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"field":          "StochasticStrategy",
			"case_id":        input.CaseId,
			"calculation_id": calc.ID,
			"fingerprint":    engine.ShortForm(fingerprint),
			"iterations":     input.Iterations,
		}).Info("enqueued stochastic calculation")
	}

	return &engine.CalculationResult{
		Fingerprint:   fingerprint,
		Mode:          input.Mode,
		CalculationId: calc.ID,
		Iterations:    input.Iterations,
	}, nil
}
