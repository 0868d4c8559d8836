package models

import "time"

const (
	CalculationModeDeterministic = "deterministic"
	CalculationModeStochastic    = "stochastic"
)

// Calculation is the durable record of one stochastic evaluation run. Interactive
// runs are cache-only and never create rows here.
//
// detach_at is informational (the record stays usable through the grace period);
// only delete_at is enforced by the retirement sweep.
type Calculation struct {
	ID          uint   `gorm:"primary_key" json:"id"`
	CaseId      string `gorm:"size:64;index;not null" json:"case_id"`
	Fingerprint string `gorm:"size:64;index;not null" json:"fingerprint"`
	Mode        string `gorm:"size:20;not null" json:"mode"`

	Status          CalculationStatus `gorm:"size:20;not null;index" json:"status"`
	ProgressPercent int               `json:"progress_percent"`
	ProgressMessage string            `gorm:"size:255" json:"progress_message"`

	Iterations          int `json:"iterations"`
	CompletedIterations int `json:"completed_iterations"`

	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `gorm:"index" json:"next_attempt_at"`

	InputJSON         []byte `gorm:"type:json" json:"input"`
	StageResultsJSON  []byte `gorm:"type:json" json:"stage_results"`
	ResultsJSON       []byte `gorm:"type:json" json:"results"`
	DistributionsJSON []byte `gorm:"type:json" json:"distributions"`

	ErrorMessage *string `gorm:"type:text" json:"error_message"`
	ErrorTrace   *string `gorm:"type:text" json:"error_trace"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `gorm:"index" json:"completed_at"`
	FailedAt    *time.Time `json:"failed_at"`
	DurationMs  int64      `json:"duration_ms"`

	DetachAt *time.Time `json:"detach_at"`
	DeleteAt *time.Time `gorm:"index" json:"delete_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
