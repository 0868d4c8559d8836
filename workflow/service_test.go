package workflow

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/petroeval_backend/engine"
	"bitbucket.org/mmdatafocus/petroeval_backend/models"
	"bitbucket.org/mmdatafocus/petroeval_backend/utils"
	"github.com/sirupsen/logrus"
)

func newTestService(store *fakeStore, queue *fakeQueue, cache *fakeCache) *CalculationService {
	logger := logrus.New()
	binding := newTestBinding(store)
	interactive := &InteractiveStrategy{
		Pipeline: &engine.Pipeline{DiscountRate: 0.10},
		Cache:    cache,
		Logger:   logger,
		CacheTTL: 0,
	}
	stochastic := NewStochasticStrategy(store, queue, logger)
	return NewCalculationService(binding, logger, interactive, stochastic)
}

func TestNewCalculationService_RegistersStrategiesByMode(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeQueue{}, newFakeCache())

	if _, ok := svc.Strategies[models.CalculationModeDeterministic]; !ok {
		t.Fatal("deterministic mode must resolve to a registered strategy")
	}
	if _, ok := svc.Strategies[models.CalculationModeStochastic]; !ok {
		t.Fatal("stochastic mode must resolve to a registered strategy")
	}
	if _, ok := svc.Strategies["interactive"]; ok {
		t.Fatal("strategies must be keyed by calculation mode, not display name")
	}
}

func TestSubmit_RejectsInvalidInput(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeQueue{}, newFakeCache())

	input := stochasticTestInput("case-1")
	input.Iterations = 5
	if _, err := svc.Submit(context.Background(), input, nil); err == nil {
		t.Fatal("out-of-range iterations must be rejected before execution")
	}

	input = deterministicTestInput("")
	if _, err := svc.Submit(context.Background(), input, nil); err == nil {
		t.Fatal("missing case id must be rejected")
	}
}

func TestSubmit_DeterministicRunsInline(t *testing.T) {
	queue := &fakeQueue{}
	store := newFakeStore()
	svc := newTestService(store, queue, newFakeCache())

	result, err := svc.Submit(context.Background(), deterministicTestInput("case-1"), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Metrics == nil {
		t.Fatal("interactive submission must return computed metrics")
	}
	if len(queue.jobs) != 0 {
		t.Fatal("deterministic mode must not enqueue work")
	}
	if len(store.calcs) != 0 {
		t.Fatal("deterministic mode must not persist records")
	}
}

func TestSubmit_StochasticDedupReturnsPriorRecord(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	queue := &fakeQueue{}
	svc := newTestService(store, queue, newFakeCache())

	input := stochasticTestInput("case-1")
	fingerprint := mustFingerprint(t, input)

	if err := store.CreateCase(ctx, &models.EvalCase{ID: "case-1"}); err != nil {
		t.Fatalf("create case: %v", err)
	}
	prior := seedCompleted(t, store, "case-1", fingerprint)

	resultsJSON, err := utils.MarshalToJSON(map[string]float64{engine.MetricNPV: 987.0})
	if err != nil {
		t.Fatalf("marshal results: %v", err)
	}
	if err := store.UpdateCalculation(ctx, prior.ID, map[string]interface{}{
		"results_json": []byte(resultsJSON),
	}); err != nil {
		t.Fatalf("store results: %v", err)
	}

	result, err := svc.Submit(ctx, input, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.CalculationId != prior.ID {
		t.Fatalf("dedup should return record %d, got %d", prior.ID, result.CalculationId)
	}
	if result.Metrics[engine.MetricNPV] != 987.0 {
		t.Fatalf("dedup result metrics = %v, want decoded prior results", result.Metrics)
	}
	if len(queue.jobs) != 0 {
		t.Fatal("dedup hit must not enqueue new work")
	}

	c, err := store.GetCase(ctx, "case-1")
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if c.CurrentCalculationId == nil || *c.CurrentCalculationId != prior.ID {
		t.Fatal("dedup hit must rebind the case to the prior record")
	}
}

func TestSubmit_StochasticMissEnqueues(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	queue := &fakeQueue{}
	svc := newTestService(store, queue, newFakeCache())

	result, err := svc.Submit(ctx, stochasticTestInput("case-1"), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.CalculationId == 0 {
		t.Fatal("miss must create a pending record")
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("enqueued jobs = %d, want 1", len(queue.jobs))
	}
}

func TestResultFromRecord_DecodesStoredColumns(t *testing.T) {
	distributions := map[string]*engine.Distribution{
		engine.MetricNPV: {Mean: 10, Min: 1, Max: 20, Samples: []float64{1, 10, 20}},
	}
	distJSON, err := utils.MarshalToJSON(distributions)
	if err != nil {
		t.Fatalf("marshal distributions: %v", err)
	}
	resultsJSON, err := utils.MarshalToJSON(map[string]float64{engine.MetricIRR: 0.15})
	if err != nil {
		t.Fatalf("marshal results: %v", err)
	}

	calc := &models.Calculation{
		ID:                7,
		Fingerprint:       "fp",
		Mode:              models.CalculationModeStochastic,
		Iterations:        500,
		DurationMs:        1500,
		ResultsJSON:       []byte(resultsJSON),
		DistributionsJSON: []byte(distJSON),
	}

	result, err := ResultFromRecord(calc)
	if err != nil {
		t.Fatalf("result from record: %v", err)
	}
	if result.CalculationId != 7 || result.Iterations != 500 {
		t.Fatalf("identity fields lost: %+v", result)
	}
	if result.Metrics[engine.MetricIRR] != 0.15 {
		t.Fatalf("metrics = %v", result.Metrics)
	}
	if result.Distributions[engine.MetricNPV].Mean != 10 {
		t.Fatalf("distributions = %+v", result.Distributions)
	}
}
