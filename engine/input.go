package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	MinIterations = 100
	MaxIterations = 10000
)

// ErrUnknownMode is returned when no execution strategy is registered for the
// input's mode.
var ErrUnknownMode = errors.New("unknown calculation mode")

// ParamGroup is one named group of calculation parameters. Schemas are owned by
// the domain plug-ins; values are JSON-like scalars or nested maps.
type ParamGroup map[string]interface{}

// Float reads a numeric leaf, falling back to def when the key is absent or
// not numeric.
func (g ParamGroup) Float(key string, def float64) float64 {
	v, ok := g[key]
	if !ok {
		return def
	}
	f, ok := asFloat(v)
	if !ok {
		return def
	}
	return f
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	return 0, false
}

// CalculationInput is the ephemeral value object describing one calculation
// request. Metadata is excluded from fingerprinting.
type CalculationInput struct {
	CaseId      string     `json:"case_id" validate:"required"`
	Mode        string     `json:"mode" validate:"required,oneof=deterministic stochastic"`
	Engineering ParamGroup `json:"engineering"`
	Production  ParamGroup `json:"production"`
	Sales       ParamGroup `json:"sales"`
	Capex       ParamGroup `json:"capex"`
	Opex        ParamGroup `json:"opex"`
	Tax         ParamGroup `json:"tax"`

	// Iterations is stochastic-only, bounded [100, 10000].
	Iterations int `json:"iterations,omitempty" validate:"required_if=Mode stochastic,omitempty,min=100,max=10000"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

var validate = validator.New()

func (in CalculationInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("invalid calculation input: %w", err)
	}
	return nil
}

// Metric name constants for the final-metrics map.
const (
	MetricNPV     = "npv"
	MetricIRR     = "irr"
	MetricPI      = "pi"
	MetricPayback = "payback_period"
)

// MetricNames is the fixed order metrics are aggregated in.
var MetricNames = []string{MetricNPV, MetricIRR, MetricPI, MetricPayback}

// Stage name constants, in pipeline order.
const (
	StageEngineering = "engineering"
	StageProduction  = "production"
	StageSales       = "sales"
	StageCapex       = "capex"
	StageOpex        = "opex"
	StageTaxes       = "taxes"
)

// StageResults holds the per-stage output maps of a deterministic run, keyed
// by stage name. Stochastic runs discard intermediates and leave this empty.
type StageResults map[string]map[string]interface{}

// CalculationResult is the ephemeral outcome of one strategy execution. It is
// scoped to a single request or worker attempt and owns no external resources.
type CalculationResult struct {
	Fingerprint string `json:"fingerprint"`
	Mode        string `json:"mode"`

	// CalculationId is set when a durable record backs this result
	// (stochastic path and dedup hits); zero otherwise.
	CalculationId uint `json:"calculation_id,omitempty"`

	StageResults  StageResults             `json:"stage_results,omitempty"`
	Metrics       map[string]float64       `json:"metrics,omitempty"`
	Distributions map[string]*Distribution `json:"distributions,omitempty"`

	Iterations int           `json:"iterations"`
	Duration   time.Duration `json:"duration"`
}
