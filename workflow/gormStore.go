package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/petroeval_backend/models"
	"bitbucket.org/mmdatafocus/petroeval_backend/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db in the Store interface.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) CreateCalculation(ctx context.Context, calc *models.Calculation) error {
	return s.db.WithContext(ctx).Create(calc).Error
}

func (s *gormStore) GetCalculation(ctx context.Context, id uint) (*models.Calculation, error) {
	var calc models.Calculation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&calc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &calc, nil
}

func (s *gormStore) UpdateCalculation(ctx context.Context, id uint, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&models.Calculation{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (s *gormStore) DeleteCalculation(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Calculation{}).Error
}

func (s *gormStore) FindDedupCandidate(ctx context.Context, fingerprint string) (*models.Calculation, error) {
	var calc models.Calculation
	err := s.db.WithContext(ctx).
		Where("fingerprint = ? AND status = ? AND delete_at IS NULL", fingerprint, models.CalculationStatusCompleted).
		Order("completed_at DESC").
		First(&calc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &calc, nil
}

func (s *gormStore) FindExpiredCalculations(ctx context.Context, now time.Time) ([]models.Calculation, error) {
	var expired []models.Calculation
	err := s.db.WithContext(ctx).
		Where("delete_at IS NOT NULL AND delete_at <= ?", now).
		Find(&expired).Error
	return expired, err
}

func (s *gormStore) BeginIdempotency(ctx context.Context, caseId, handlerName, messageId string) (bool, *models.IdempotencyKey, error) {
	key := models.IdempotencyKey{
		CaseId:      caseId,
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	err := s.db.WithContext(ctx).Create(&key).Error
	if err == nil {
		return true, &key, nil
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		var existing models.IdempotencyKey
		findErr := s.db.WithContext(ctx).
			Where("case_id = ? AND handler_name = ? AND message_id = ?", caseId, handlerName, messageId).
			First(&existing).Error
		if findErr != nil {
			return false, nil, findErr
		}
		return false, &existing, nil
	}
	return false, nil, err
}

func (s *gormStore) FinishIdempotency(ctx context.Context, caseId, handlerName, messageId string, status models.IdempotencyStatus, lastError *string) error {
	return s.db.WithContext(ctx).Model(&models.IdempotencyKey{}).
		Where("case_id = ? AND handler_name = ? AND message_id = ?", caseId, handlerName, messageId).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
		}).Error
}

func (s *gormStore) CreateCase(ctx context.Context, c *models.EvalCase) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *gormStore) GetCase(ctx context.Context, id string) (*models.EvalCase, error) {
	var c models.EvalCase
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *gormStore) UpdateCase(ctx context.Context, id string, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&models.EvalCase{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// LockCase serializes case repointing across instances using MySQL advisory
// locks. NOTE: GET_LOCK is connection-scoped, so this must run on the same
// *gorm.DB that does the bind transaction.
func (s *gormStore) LockCase(ctx context.Context, id string) error {
	lockName := fmt.Sprintf("casebind:%s", id)
	var ok int
	if err := s.db.WithContext(ctx).Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire bind lock for case_id=%s", id)
	}
	return nil
}

func (s *gormStore) UnlockCase(ctx context.Context, id string) {
	lockName := fmt.Sprintf("casebind:%s", id)
	var _ok int
	_ = s.db.WithContext(ctx).Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
