package models

import "time"

// Notification payloads published on a case's topic. These three shapes and the
// Calculation record schema are the only contracts the transport layer depends on.

type ProgressNotification struct {
	CalculationId uint      `json:"calculation_id"`
	CaseId        string    `json:"case_id"`
	Percentage    int       `json:"percentage"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

type CompletedNotification struct {
	CalculationId uint               `json:"calculation_id"`
	Results       map[string]float64 `json:"results"`
	Timestamp     time.Time          `json:"timestamp"`
}

type FailedNotification struct {
	CalculationId uint      `json:"calculation_id"`
	Error         string    `json:"error"`
	Timestamp     time.Time `json:"timestamp"`
}
