package workflow

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/petroeval_backend/engine"
	"bitbucket.org/mmdatafocus/petroeval_backend/models"
	"bitbucket.org/mmdatafocus/petroeval_backend/utils"
)

// NOTE: These tests are intentionally DB-free. They validate the lifecycle and
// strategy semantics against an in-memory Store; full DB+PubSub integration
// tests require an environment that can run MySQL and the Pub/Sub emulator.

type fakeStore struct {
	mu     sync.Mutex
	nextId uint
	calcs  map[uint]*models.Calculation
	cases  map[string]*models.EvalCase
	idem   map[string]*models.IdempotencyKey
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		calcs: map[uint]*models.Calculation{},
		cases: map[string]*models.EvalCase{},
		idem:  map[string]*models.IdempotencyKey{},
	}
}

func (s *fakeStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return fn(s)
}

func (s *fakeStore) CreateCalculation(ctx context.Context, calc *models.Calculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	calc.ID = s.nextId
	calc.CreatedAt = time.Now().UTC()
	copied := *calc
	s.calcs[calc.ID] = &copied
	return nil
}

func (s *fakeStore) GetCalculation(ctx context.Context, id uint) (*models.Calculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	calc, ok := s.calcs[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	copied := *calc
	return &copied, nil
}

func (s *fakeStore) UpdateCalculation(ctx context.Context, id uint, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	calc, ok := s.calcs[id]
	if !ok {
		return utils.ErrorRecordNotFound
	}
	for key, value := range fields {
		applyCalculationField(calc, key, value)
	}
	calc.UpdatedAt = time.Now().UTC()
	return nil
}

func applyCalculationField(c *models.Calculation, key string, value interface{}) {
	switch key {
	case "status":
		c.Status = value.(models.CalculationStatus)
	case "attempts":
		c.Attempts = value.(int)
	case "started_at":
		c.StartedAt = timeValue(value)
	case "completed_at":
		c.CompletedAt = timeValue(value)
	case "failed_at":
		c.FailedAt = timeValue(value)
	case "next_attempt_at":
		c.NextAttemptAt = timeValue(value)
	case "detach_at":
		c.DetachAt = timeValue(value)
	case "delete_at":
		c.DeleteAt = timeValue(value)
	case "progress_percent":
		c.ProgressPercent = value.(int)
	case "progress_message":
		c.ProgressMessage = value.(string)
	case "completed_iterations":
		c.CompletedIterations = value.(int)
	case "duration_ms":
		c.DurationMs = value.(int64)
	case "results_json":
		c.ResultsJSON = value.([]byte)
	case "distributions_json":
		c.DistributionsJSON = value.([]byte)
	case "error_message":
		c.ErrorMessage = stringValue(value)
	case "error_trace":
		c.ErrorTrace = stringValue(value)
	}
}

func timeValue(value interface{}) *time.Time {
	if value == nil {
		return nil
	}
	return value.(*time.Time)
}

func stringValue(value interface{}) *string {
	if value == nil {
		return nil
	}
	return value.(*string)
}

func (s *fakeStore) DeleteCalculation(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calcs[id]; !ok {
		return utils.ErrorRecordNotFound
	}
	delete(s.calcs, id)
	return nil
}

func (s *fakeStore) FindDedupCandidate(ctx context.Context, fingerprint string) (*models.Calculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*models.Calculation
	for _, calc := range s.calcs {
		if calc.Fingerprint == fingerprint && calc.Status == models.CalculationStatusCompleted && calc.DeleteAt == nil {
			candidates = append(candidates, calc)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		ti, tj := candidates[i].CompletedAt, candidates[j].CompletedAt
		if ti == nil || tj == nil {
			return tj == nil
		}
		return ti.After(*tj)
	})
	copied := *candidates[0]
	return &copied, nil
}

func (s *fakeStore) FindExpiredCalculations(ctx context.Context, now time.Time) ([]models.Calculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []models.Calculation
	for _, calc := range s.calcs {
		if calc.DeleteAt != nil && !calc.DeleteAt.After(now) {
			expired = append(expired, *calc)
		}
	}
	return expired, nil
}

func (s *fakeStore) BeginIdempotency(ctx context.Context, caseId, handlerName, messageId string) (bool, *models.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := caseId + "|" + handlerName + "|" + messageId
	if existing, ok := s.idem[key]; ok {
		copied := *existing
		return false, &copied, nil
	}
	created := &models.IdempotencyKey{
		CaseId:      caseId,
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	s.idem[key] = created
	copied := *created
	return true, &copied, nil
}

func (s *fakeStore) FinishIdempotency(ctx context.Context, caseId, handlerName, messageId string, status models.IdempotencyStatus, lastError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := caseId + "|" + handlerName + "|" + messageId
	existing, ok := s.idem[key]
	if !ok {
		return utils.ErrorRecordNotFound
	}
	existing.Status = status
	existing.LastError = lastError
	return nil
}

func (s *fakeStore) CreateCase(ctx context.Context, c *models.EvalCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *c
	s.cases[c.ID] = &copied
	return nil
}

func (s *fakeStore) GetCase(ctx context.Context, id string) (*models.EvalCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *fakeStore) UpdateCase(ctx context.Context, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return utils.ErrorRecordNotFound
	}
	for key, value := range fields {
		switch key {
		case "current_calculation_id":
			id := value.(uint)
			c.CurrentCalculationId = &id
		case "current_fingerprint":
			fp := value.(string)
			c.CurrentFingerprint = &fp
		}
	}
	return nil
}

func (s *fakeStore) LockCase(ctx context.Context, id string) error { return nil }
func (s *fakeStore) UnlockCase(ctx context.Context, id string)     {}

type fakeCache struct {
	mu       sync.Mutex
	results  map[string]*engine.CalculationResult
	ttls     map[string]time.Duration
	progress map[uint]*models.ProgressNotification
	failGet  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		results:  map[string]*engine.CalculationResult{},
		ttls:     map[string]time.Duration{},
		progress: map[uint]*models.ProgressNotification{},
	}
}

func (c *fakeCache) GetResult(ctx context.Context, fingerprint string) (*engine.CalculationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet != nil {
		return nil, c.failGet
	}
	return c.results[fingerprint], nil
}

func (c *fakeCache) SetResult(ctx context.Context, fingerprint string, result *engine.CalculationResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[fingerprint] = result
	c.ttls[fingerprint] = ttl
	return nil
}

func (c *fakeCache) SetProgress(ctx context.Context, calculationId uint, p models.ProgressNotification, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress[calculationId] = &p
	return nil
}

func (c *fakeCache) GetProgress(ctx context.Context, calculationId uint) (*models.ProgressNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress[calculationId], nil
}

func (c *fakeCache) ClearProgress(ctx context.Context, calculationId uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.progress, calculationId)
	return nil
}

func stochasticTestInput(caseId string) engine.CalculationInput {
	return engine.CalculationInput{
		CaseId: caseId,
		Mode:   models.CalculationModeStochastic,
		Engineering: engine.ParamGroup{
			"well_count":         10.0,
			"productivity_index": 1.5,
			"decline_rate":       0.15,
			"initial_reserves":   1000000.0,
		},
		Production: engine.ParamGroup{"project_lifetime": 20.0},
		Sales:      engine.ParamGroup{"oil_price": 70.0},
		Capex:      engine.ParamGroup{"cost_per_well": 5000000.0, "facilities_cost": 10000000.0},
		Opex:       engine.ParamGroup{"fixed_opex": 1000000.0, "variable_opex_rate": 10.0},
		Tax:        engine.ParamGroup{"tax_rate": 0.20, "mining_tax_rate": 0.10},
		Iterations: 100,
	}
}

func mustFingerprint(t *testing.T, input engine.CalculationInput) string {
	t.Helper()
	fingerprint, err := engine.Fingerprint(input)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	return fingerprint
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []CalculationJob
	fail error
}

func (q *fakeQueue) Enqueue(ctx context.Context, job CalculationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail != nil {
		return q.fail
	}
	q.jobs = append(q.jobs, job)
	return nil
}
