package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/petroeval_backend/config"
	"bitbucket.org/mmdatafocus/petroeval_backend/engine"
	"bitbucket.org/mmdatafocus/petroeval_backend/models"
	"github.com/sirupsen/logrus"
)

// BindingService owns the case/calculation lifecycle: fingerprint-based
// deduplication, atomic rebinding of a case's current calculation, and the
// grace-period retirement of displaced records.
type BindingService struct {
	Store  Store
	Logger *logrus.Logger

	GracePeriod time.Duration
	DeleteAfter time.Duration

	now func() time.Time
}

func NewBindingService(store Store, logger *logrus.Logger) *BindingService {
	return &BindingService{
		Store:       store,
		Logger:      logger,
		GracePeriod: time.Duration(config.GracePeriodDays()) * 24 * time.Hour,
		DeleteAfter: time.Duration(config.DeleteAfterDays()) * 24 * time.Hour,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// DedupLookup computes the fingerprint for a prospective input and returns an
// existing completed record with that fingerprint and no pending deletion
// marker (most recently completed preferred), so the caller can skip
// execution entirely. Returns (nil, fingerprint, nil) on a miss.
func (s *BindingService) DedupLookup(ctx context.Context, input engine.CalculationInput) (*models.Calculation, string, error) {
	fingerprint, err := engine.Fingerprint(input)
	if err != nil {
		return nil, "", err
	}
	calc, err := s.Store.FindDedupCandidate(ctx, fingerprint)
	if err != nil {
		return nil, fingerprint, err
	}
	return calc, fingerprint, nil
}

// Bind atomically repoints the case's current calculation to calcId. If the
// case already references a different calculation, that prior record is
// scheduled for detachment in the same transaction, and any pending deletion
// markers on the newly bound record are cleared there too; all steps commit
// together or not at all. The bind runs under a per-case advisory lock so two
// calculations completing concurrently for one case cannot lose updates.
func (s *BindingService) Bind(ctx context.Context, caseId string, calcId uint, fingerprint string) error {
	return s.Store.Transaction(ctx, func(tx Store) error {
		if err := tx.LockCase(ctx, caseId); err != nil {
			return err
		}
		defer tx.UnlockCase(ctx, caseId)

		c, err := tx.GetCase(ctx, caseId)
		if err != nil {
			return fmt.Errorf("bind case %s: %w", caseId, err)
		}

		if c.CurrentCalculationId != nil && *c.CurrentCalculationId != calcId {
			if err := s.scheduleDetachment(ctx, tx, *c.CurrentCalculationId); err != nil {
				return err
			}
		}

		if err := s.cancelPendingDeletion(ctx, tx, calcId); err != nil {
			return err
		}

		return tx.UpdateCase(ctx, caseId, map[string]interface{}{
			"current_calculation_id": calcId,
			"current_fingerprint":    fingerprint,
		})
	})
}

// ScheduleDetachment marks a displaced calculation for soft retirement:
// detach_at = now + grace period, delete_at = detach_at + delete-after.
// detach_at is informational only; the record stays fully usable until the
// sweep removes it at delete_at.
func (s *BindingService) ScheduleDetachment(ctx context.Context, calcId uint) error {
	return s.scheduleDetachment(ctx, s.Store, calcId)
}

func (s *BindingService) scheduleDetachment(ctx context.Context, store Store, calcId uint) error {
	detachAt := s.now().Add(s.GracePeriod)
	deleteAt := detachAt.Add(s.DeleteAfter)
	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"field":          "BindingService",
			"calculation_id": calcId,
			"detach_at":      detachAt.Format(time.RFC3339),
			"delete_at":      deleteAt.Format(time.RFC3339),
		}).Info("scheduled calculation detachment")
	}
	return store.UpdateCalculation(ctx, calcId, map[string]interface{}{
		"detach_at": &detachAt,
		"delete_at": &deleteAt,
	})
}

// CancelPendingDeletion clears both grace markers when a displaced record
// becomes relevant again. Bind performs the same clearing inside its own
// transaction; this standalone form is for callers outside a rebind.
func (s *BindingService) CancelPendingDeletion(ctx context.Context, calcId uint) error {
	return s.cancelPendingDeletion(ctx, s.Store, calcId)
}

func (s *BindingService) cancelPendingDeletion(ctx context.Context, store Store, calcId uint) error {
	return store.UpdateCalculation(ctx, calcId, map[string]interface{}{
		"detach_at": nil,
		"delete_at": nil,
	})
}
