package calcworker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"bitbucket.org/mmdatafocus/petroeval_backend/config"
	"bitbucket.org/mmdatafocus/petroeval_backend/engine"
	"bitbucket.org/mmdatafocus/petroeval_backend/models"
	"bitbucket.org/mmdatafocus/petroeval_backend/utils"
	"bitbucket.org/mmdatafocus/petroeval_backend/workflow"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const handlerName = "calc-run"

// errRetryNotDue nacks a redelivered job whose backoff window has not elapsed.
var errRetryNotDue = errors.New("retry not due yet")

// errNotRetryable marks a failure that redelivery cannot fix; failAttempt
// goes straight to permanent failure regardless of remaining attempts.
var errNotRetryable = errors.New("not retryable")

// Runner executes the stochastic engine for one attempt. Injectable so tests
// can stub the run without a real pipeline.
type Runner func(ctx context.Context, input engine.CalculationInput, progress engine.ProgressFunc) (*engine.CalculationResult, error)

// Worker consumes CalculationJob messages and drives each durable record
// through its status machine: claim, run, then complete or fail with retry
// accounting. Progress flows to the Redis mirror on every report and to the
// database plus the case topic at five percent steps.
type Worker struct {
	Store    workflow.Store
	Binding  *workflow.BindingService
	Cache    workflow.CacheStore
	Notifier workflow.Notifier
	Logger   *logrus.Logger

	WorkerId     string
	MaxAttempts  int
	RetryBackoff time.Duration
	JobTimeout   time.Duration
	ProgressTTL  time.Duration

	Runner Runner

	now func() time.Time
}

func NewWorker(store workflow.Store, binding *workflow.BindingService, cache workflow.CacheStore, notifier workflow.Notifier, logger *logrus.Logger) *Worker {
	runner := engine.NewStochasticRunner(engine.NewPipeline())
	return &Worker{
		Store:        store,
		Binding:      binding,
		Cache:        cache,
		Notifier:     notifier,
		Logger:       logger,
		WorkerId:     uuid.NewString(),
		MaxAttempts:  3,
		RetryBackoff: 60 * time.Second,
		JobTimeout:   3600 * time.Second,
		ProgressTTL:  5 * time.Minute,
		Runner:       runner.Run,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes one delivery. A nil return acks the message; an error
// nacks it for redelivery.
func (w *Worker) Handle(ctx context.Context, job workflow.CalculationJob, messageId string) error {
	ctx = utils.SetCaseIdInContext(ctx, job.CaseId)
	ctx = utils.SetCalculationIdInContext(ctx, job.CalculationId)
	ctx = utils.SetWorkerIdInContext(ctx, w.WorkerId)

	log := w.Logger.WithFields(logrus.Fields{
		"field":          "Worker",
		"worker_id":      w.WorkerId,
		"case_id":        job.CaseId,
		"calculation_id": job.CalculationId,
	})

	calc, err := w.Store.GetCalculation(ctx, job.CalculationId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			log.Warn("dropping job for missing calculation record")
			return nil
		}
		return err
	}

	if calc.Status.IsTerminal() {
		log.WithField("status", calc.Status).Info("dropping job for terminal calculation")
		return nil
	}
	// A crashed attempt leaves the record PROCESSING; redelivery after the
	// visibility timeout re-claims it. Anything else must be a legal claim.
	if calc.Status != models.CalculationStatusProcessing && !models.CanTransition(calc.Status, models.CalculationStatusProcessing) {
		log.WithField("status", calc.Status).Warn("dropping job with non-claimable status")
		return nil
	}

	if calc.NextAttemptAt != nil && w.now().Before(*calc.NextAttemptAt) {
		return errRetryNotDue
	}

	if messageId != "" {
		created, existing, err := w.Store.BeginIdempotency(ctx, job.CaseId, handlerName, messageId)
		if err != nil {
			return err
		}
		if !created && existing.Status == models.IdempotencyStatusSucceeded {
			log.WithField("message_id", messageId).Info("dropping already-handled message")
			return nil
		}
	}

	attempts := calc.Attempts + 1
	startedAt := w.now()
	err = w.Store.UpdateCalculation(ctx, calc.ID, map[string]interface{}{
		"status":           models.CalculationStatusProcessing,
		"attempts":         attempts,
		"started_at":       &startedAt,
		"next_attempt_at":  nil,
		"progress_percent": 0,
		"progress_message": "",
		"error_message":    nil,
		"error_trace":      nil,
	})
	if err != nil {
		return err
	}

	var input engine.CalculationInput
	if err := utils.UnmarshalFromJSON(calc.InputJSON, &input); err != nil {
		return w.failAttempt(ctx, calc, attempts, messageId,
			fmt.Errorf("%w: decode input snapshot: %v", errNotRetryable, err))
	}

	runCtx, cancel := context.WithTimeout(ctx, w.JobTimeout)
	defer cancel()

	result, err := w.Runner(runCtx, input, w.progressSink(ctx, calc))
	if err != nil {
		return w.failAttempt(ctx, calc, attempts, messageId, err)
	}

	return w.complete(ctx, calc, startedAt, messageId, result)
}

// progressSink mirrors every report to the ephemeral cache and persists
// coarse steps of at least five percent durably, fanning the same payloads
// out on the case topic. Sink errors are logged and swallowed; progress is
// best effort and never fails the run.
func (w *Worker) progressSink(ctx context.Context, calc *models.Calculation) engine.ProgressFunc {
	lastDurable := -100
	return func(percentage int, message string) {
		note := models.ProgressNotification{
			CalculationId: calc.ID,
			CaseId:        calc.CaseId,
			Percentage:    percentage,
			Message:       message,
			Timestamp:     w.now(),
		}
		if err := w.Cache.SetProgress(ctx, calc.ID, note, w.ProgressTTL); err != nil {
			config.LogError(w.Logger, "calcworker", "progressSink", "cache progress write failed",
				map[string]interface{}{"calculation_id": calc.ID}, err)
		}

		if percentage-lastDurable < 5 && percentage != 100 {
			return
		}
		lastDurable = percentage

		err := w.Store.UpdateCalculation(ctx, calc.ID, map[string]interface{}{
			"progress_percent": percentage,
			"progress_message": message,
		})
		if err != nil {
			config.LogError(w.Logger, "calcworker", "progressSink", "durable progress write failed",
				map[string]interface{}{"calculation_id": calc.ID}, err)
		}
		if err := w.Notifier.Publish(ctx, workflow.CaseTopic(calc.CaseId), note); err != nil {
			config.LogError(w.Logger, "calcworker", "progressSink", "progress notification failed",
				map[string]interface{}{"calculation_id": calc.ID}, err)
		}
	}
}

func (w *Worker) complete(ctx context.Context, calc *models.Calculation, startedAt time.Time, messageId string, result *engine.CalculationResult) error {
	resultsJSON, err := utils.MarshalToJSON(result.Metrics)
	if err != nil {
		return w.failAttempt(ctx, calc, calc.Attempts+1, messageId, err)
	}
	distributionsJSON, err := utils.MarshalToJSON(result.Distributions)
	if err != nil {
		return w.failAttempt(ctx, calc, calc.Attempts+1, messageId, err)
	}

	completedAt := w.now()
	err = w.Store.UpdateCalculation(ctx, calc.ID, map[string]interface{}{
		"status":               models.CalculationStatusCompleted,
		"completed_at":         &completedAt,
		"duration_ms":          completedAt.Sub(startedAt).Milliseconds(),
		"completed_iterations": result.Iterations,
		"results_json":         []byte(resultsJSON),
		"distributions_json":   []byte(distributionsJSON),
		"progress_percent":     100,
		"progress_message":     "Calculation completed",
	})
	if err != nil {
		return err
	}

	if err := w.Binding.Bind(ctx, calc.CaseId, calc.ID, result.Fingerprint); err != nil {
		return err
	}

	if messageId != "" {
		if err := w.Store.FinishIdempotency(ctx, calc.CaseId, handlerName, messageId, models.IdempotencyStatusSucceeded, nil); err != nil {
			config.LogError(w.Logger, "calcworker", "complete", "idempotency finish failed",
				map[string]interface{}{"calculation_id": calc.ID}, err)
		}
	}

	notifyErr := w.Notifier.Publish(ctx, workflow.CaseTopic(calc.CaseId), models.CompletedNotification{
		CalculationId: calc.ID,
		Results:       result.Metrics,
		Timestamp:     completedAt,
	})
	if notifyErr != nil {
		config.LogError(w.Logger, "calcworker", "complete", "completion notification failed",
			map[string]interface{}{"calculation_id": calc.ID}, notifyErr)
	}

	if err := w.Cache.ClearProgress(ctx, calc.ID); err != nil {
		config.LogError(w.Logger, "calcworker", "complete", "progress clear failed",
			map[string]interface{}{"calculation_id": calc.ID}, err)
	}

	w.Logger.WithFields(logrus.Fields{
		"field":          "Worker",
		"worker_id":      w.WorkerId,
		"case_id":        calc.CaseId,
		"calculation_id": calc.ID,
		"duration_ms":    completedAt.Sub(startedAt).Milliseconds(),
	}).Info("calculation completed")
	return nil
}

// failAttempt records the failure and decides between retry and permanent
// failure. Exhausted attempts and non-retryable causes ack the message so
// nothing redelivers a dead record; retryable failures nack after stamping
// the backoff window.
func (w *Worker) failAttempt(ctx context.Context, calc *models.Calculation, attempts int, messageId string, cause error) error {
	failedAt := w.now()
	msg := cause.Error()
	trace := string(debug.Stack())

	updateErr := w.Store.UpdateCalculation(ctx, calc.ID, map[string]interface{}{
		"status":        models.CalculationStatusFailed,
		"failed_at":     &failedAt,
		"error_message": &msg,
		"error_trace":   &trace,
	})
	if updateErr != nil {
		config.LogError(w.Logger, "calcworker", "failAttempt", "failure update failed",
			map[string]interface{}{"calculation_id": calc.ID}, updateErr)
	}

	if messageId != "" {
		if err := w.Store.FinishIdempotency(ctx, calc.CaseId, handlerName, messageId, models.IdempotencyStatusFailed, &msg); err != nil {
			config.LogError(w.Logger, "calcworker", "failAttempt", "idempotency finish failed",
				map[string]interface{}{"calculation_id": calc.ID}, err)
		}
	}

	notifyErr := w.Notifier.Publish(ctx, workflow.CaseTopic(calc.CaseId), models.FailedNotification{
		CalculationId: calc.ID,
		Error:         msg,
		Timestamp:     failedAt,
	})
	if notifyErr != nil {
		config.LogError(w.Logger, "calcworker", "failAttempt", "failure notification failed",
			map[string]interface{}{"calculation_id": calc.ID}, notifyErr)
	}

	if err := w.Cache.ClearProgress(ctx, calc.ID); err != nil {
		config.LogError(w.Logger, "calcworker", "failAttempt", "progress clear failed",
			map[string]interface{}{"calculation_id": calc.ID}, err)
	}

	if attempts >= w.MaxAttempts || errors.Is(cause, errNotRetryable) {
		err := w.Store.UpdateCalculation(ctx, calc.ID, map[string]interface{}{
			"status": models.CalculationStatusPermanentlyFailed,
		})
		if err != nil {
			config.LogError(w.Logger, "calcworker", "failAttempt", "permanent failure update failed",
				map[string]interface{}{"calculation_id": calc.ID}, err)
		}
		w.Logger.WithFields(logrus.Fields{
			"field":          "Worker",
			"worker_id":      w.WorkerId,
			"case_id":        calc.CaseId,
			"calculation_id": calc.ID,
			"attempts":       attempts,
			"error":          msg,
		}).Error("calculation permanently failed")
		return nil
	}

	nextAttemptAt := failedAt.Add(w.RetryBackoff)
	err := w.Store.UpdateCalculation(ctx, calc.ID, map[string]interface{}{
		"next_attempt_at": &nextAttemptAt,
	})
	if err != nil {
		config.LogError(w.Logger, "calcworker", "failAttempt", "retry schedule update failed",
			map[string]interface{}{"calculation_id": calc.ID}, err)
	}

	w.Logger.WithFields(logrus.Fields{
		"field":           "Worker",
		"worker_id":       w.WorkerId,
		"case_id":         calc.CaseId,
		"calculation_id":  calc.ID,
		"attempts":        attempts,
		"next_attempt_at": nextAttemptAt.Format(time.RFC3339),
		"error":           msg,
	}).Warn("calculation attempt failed, retry scheduled")
	return cause
}
