package workflow

import (
	"context"

	"github.com/sirupsen/logrus"
)

// CleanupSweep hard-deletes every calculation whose delete_at has elapsed.
// Each record is deleted independently; a failure on one record is logged
// and does not stop the sweep. Returns the number of records removed.
func (s *BindingService) CleanupSweep(ctx context.Context) (int, error) {
	expired, err := s.Store.FindExpiredCalculations(ctx, s.now())
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, calc := range expired {
		if err := s.Store.DeleteCalculation(ctx, calc.ID); err != nil {
			if s.Logger != nil {
				s.Logger.WithFields(logrus.Fields{
					"field":          "BindingService",
					"calculation_id": calc.ID,
					"error":          err.Error(),
				}).Error("cleanup sweep failed to delete calculation")
			}
			continue
		}
		removed++
	}

	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"field":   "BindingService",
			"expired": len(expired),
			"removed": removed,
		}).Info("cleanup sweep finished")
	}
	return removed, nil
}
