package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/petroeval_backend/models"
)

// Store is the persistence surface the lifecycle services and the worker run
// against: plain load/save/query operations over the calculation and case
// records, plus a transaction boundary. The gorm implementation lives in
// gormStore.go; tests use in-memory fakes.
type Store interface {
	// Transaction runs fn against a transactional view of the store. A nil
	// error commits; any error rolls the whole unit back.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	CreateCalculation(ctx context.Context, calc *models.Calculation) error
	GetCalculation(ctx context.Context, id uint) (*models.Calculation, error)
	UpdateCalculation(ctx context.Context, id uint, fields map[string]interface{}) error
	DeleteCalculation(ctx context.Context, id uint) error

	// FindDedupCandidate returns the most recently completed calculation with
	// the given fingerprint and no pending deletion marker, or nil.
	FindDedupCandidate(ctx context.Context, fingerprint string) (*models.Calculation, error)

	// FindExpiredCalculations returns records whose delete_at has passed.
	FindExpiredCalculations(ctx context.Context, now time.Time) ([]models.Calculation, error)

	// BeginIdempotency claims (caseId, handlerName, messageId) for this
	// handler invocation. created is false when a claim already exists; the
	// existing row is returned so the caller can decide to skip or retry.
	BeginIdempotency(ctx context.Context, caseId, handlerName, messageId string) (created bool, existing *models.IdempotencyKey, err error)
	FinishIdempotency(ctx context.Context, caseId, handlerName, messageId string, status models.IdempotencyStatus, lastError *string) error

	CreateCase(ctx context.Context, c *models.EvalCase) error
	GetCase(ctx context.Context, id string) (*models.EvalCase, error)
	UpdateCase(ctx context.Context, id string, fields map[string]interface{}) error

	// LockCase serializes case repointing across instances. Must be called
	// inside a Transaction; the lock is released with the transaction's
	// connection.
	LockCase(ctx context.Context, id string) error
	UnlockCase(ctx context.Context, id string)
}
