package models

import "time"

// EvalCase is an evaluation case. It references at most one current calculation
// at a time; repointing is done transactionally by the binding service.
type EvalCase struct {
	ID                   string  `gorm:"primary_key;size:64" json:"id"`
	Name                 string  `gorm:"size:255" json:"name"`
	CurrentCalculationId *uint   `gorm:"index" json:"current_calculation_id"`
	CurrentFingerprint   *string `gorm:"size:64" json:"current_fingerprint"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
