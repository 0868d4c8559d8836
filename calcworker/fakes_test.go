package calcworker

import (
	"context"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/petroeval_backend/engine"
	"bitbucket.org/mmdatafocus/petroeval_backend/models"
	"bitbucket.org/mmdatafocus/petroeval_backend/utils"
	"bitbucket.org/mmdatafocus/petroeval_backend/workflow"
)

// In-memory doubles for the worker's capability surfaces. Only the fields the
// worker actually writes are modeled.

type memStore struct {
	mu     sync.Mutex
	nextId uint
	calcs  map[uint]*models.Calculation
	cases  map[string]*models.EvalCase
	idem   map[string]*models.IdempotencyKey

	progressWrites []int
}

func newMemStore() *memStore {
	return &memStore{
		calcs: map[uint]*models.Calculation{},
		cases: map[string]*models.EvalCase{},
		idem:  map[string]*models.IdempotencyKey{},
	}
}

func (s *memStore) Transaction(ctx context.Context, fn func(tx workflow.Store) error) error {
	return fn(s)
}

func (s *memStore) CreateCalculation(ctx context.Context, calc *models.Calculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	calc.ID = s.nextId
	copied := *calc
	s.calcs[calc.ID] = &copied
	return nil
}

func (s *memStore) GetCalculation(ctx context.Context, id uint) (*models.Calculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	calc, ok := s.calcs[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	copied := *calc
	return &copied, nil
}

func (s *memStore) UpdateCalculation(ctx context.Context, id uint, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	calc, ok := s.calcs[id]
	if !ok {
		return utils.ErrorRecordNotFound
	}
	for key, value := range fields {
		switch key {
		case "status":
			calc.Status = value.(models.CalculationStatus)
		case "attempts":
			calc.Attempts = value.(int)
		case "started_at":
			calc.StartedAt = asTimePtr(value)
		case "completed_at":
			calc.CompletedAt = asTimePtr(value)
		case "failed_at":
			calc.FailedAt = asTimePtr(value)
		case "next_attempt_at":
			calc.NextAttemptAt = asTimePtr(value)
		case "detach_at":
			calc.DetachAt = asTimePtr(value)
		case "delete_at":
			calc.DeleteAt = asTimePtr(value)
		case "progress_percent":
			calc.ProgressPercent = value.(int)
			s.progressWrites = append(s.progressWrites, value.(int))
		case "progress_message":
			calc.ProgressMessage = value.(string)
		case "completed_iterations":
			calc.CompletedIterations = value.(int)
		case "duration_ms":
			calc.DurationMs = value.(int64)
		case "input_json":
			calc.InputJSON = value.([]byte)
		case "results_json":
			calc.ResultsJSON = value.([]byte)
		case "distributions_json":
			calc.DistributionsJSON = value.([]byte)
		case "error_message":
			calc.ErrorMessage = asStringPtr(value)
		case "error_trace":
			calc.ErrorTrace = asStringPtr(value)
		}
	}
	return nil
}

func asTimePtr(value interface{}) *time.Time {
	if value == nil {
		return nil
	}
	return value.(*time.Time)
}

func asStringPtr(value interface{}) *string {
	if value == nil {
		return nil
	}
	return value.(*string)
}

func (s *memStore) DeleteCalculation(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calcs, id)
	return nil
}

func (s *memStore) FindDedupCandidate(ctx context.Context, fingerprint string) (*models.Calculation, error) {
	return nil, nil
}

func (s *memStore) FindExpiredCalculations(ctx context.Context, now time.Time) ([]models.Calculation, error) {
	return nil, nil
}

func (s *memStore) BeginIdempotency(ctx context.Context, caseId, handlerName, messageId string) (bool, *models.IdempotencyKey, error) {
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

func (s *memStore) FinishIdempotency(ctx context.Context, caseId, handlerName, messageId string, status models.IdempotencyStatus, lastError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := caseId + "|" + handlerName + "|" + messageId
	if existing, ok := s.idem[key]; ok {
		existing.Status = status
		existing.LastError = lastError
	}
	return nil
}

func (s *memStore) CreateCase(ctx context.Context, c *models.EvalCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *c
	s.cases[c.ID] = &copied
	return nil
}

func (s *memStore) GetCase(ctx context.Context, id string) (*models.EvalCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *memStore) UpdateCase(ctx context.Context, id string, fields map[string]interface{}) error {
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

func (s *memStore) LockCase(ctx context.Context, id string) error { return nil }
func (s *memStore) UnlockCase(ctx context.Context, id string)     {}

type memCache struct {
	mu       sync.Mutex
	progress map[uint]*models.ProgressNotification
	writes   int
	cleared  int
}

func newMemCache() *memCache {
	return &memCache{progress: map[uint]*models.ProgressNotification{}}
}

func (c *memCache) GetResult(ctx context.Context, fingerprint string) (*engine.CalculationResult, error) {
	return nil, nil
}

func (c *memCache) SetResult(ctx context.Context, fingerprint string, result *engine.CalculationResult, ttl time.Duration) error {
	return nil
}

func (c *memCache) SetProgress(ctx context.Context, calculationId uint, p models.ProgressNotification, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress[calculationId] = &p
	c.writes++
	return nil
}

func (c *memCache) GetProgress(ctx context.Context, calculationId uint) (*models.ProgressNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress[calculationId], nil
}

func (c *memCache) ClearProgress(ctx context.Context, calculationId uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.progress, calculationId)
	c.cleared++
	return nil
}

type memNotifier struct {
	mu       sync.Mutex
	messages []interface{}
	topics   []string
}

func (n *memNotifier) Publish(ctx context.Context, topic string, message interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.topics = append(n.topics, topic)
	n.messages = append(n.messages, message)
	return nil
}

func (n *memNotifier) byType() (progress []models.ProgressNotification, completed []models.CompletedNotification, failed []models.FailedNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.messages {
		switch v := m.(type) {
		case models.ProgressNotification:
			progress = append(progress, v)
		case models.CompletedNotification:
			completed = append(completed, v)
		case models.FailedNotification:
			failed = append(failed, v)
		}
	}
	return
}
