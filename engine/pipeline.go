package engine

import (
	"time"

	"bitbucket.org/mmdatafocus/petroeval_backend/config"
)

// Pipeline runs the fixed six-stage calculation:
// engineering -> production -> sales -> {capex, opex} -> taxes -> metrics.
// Capex depends only on engineering; opex depends on production; taxes depend
// on sales, capex and opex; metrics depend on all four. No stage mutates an
// upstream output.
type Pipeline struct {
	DiscountRate float64
}

func NewPipeline() *Pipeline {
	return &Pipeline{DiscountRate: config.DiscountRate()}
}

// RunDeterministic executes one pass and returns all stage outputs plus the
// final metrics. Identical inputs always produce identical results.
func (p *Pipeline) RunDeterministic(input CalculationInput, progress ProgressFunc) (*CalculationResult, error) {
	started := time.Now()

	fingerprint, err := Fingerprint(input)
	if err != nil {
		return nil, err
	}

	stages, metrics := p.runStages(input, progress)

	return &CalculationResult{
		Fingerprint:  fingerprint,
		Mode:         input.Mode,
		StageResults: stages,
		Metrics:      metrics,
		Iterations:   1,
		Duration:     time.Since(started),
	}, nil
}

// runStages is the shared single-pass body. Progress is reported at the fixed
// stage boundaries 0/25/40/55/70/85/100.
func (p *Pipeline) runStages(input CalculationInput, progress ProgressFunc) (StageResults, map[string]float64) {
	progress.report(0, "Starting calculation")

	engineering := runEngineeringStage(input.Engineering)
	progress.report(25, "Engineering stage completed")

	production := runProductionStage(input.Production, engineering)
	progress.report(40, "Production stage completed")

	sales := runSalesStage(input.Sales, production)
	progress.report(55, "Sales stage completed")

	capex := runCapexStage(input.Capex, engineering)
	opex := runOpexStage(input.Opex, production)
	progress.report(70, "Cost stages completed")

	taxes := runTaxStage(input.Tax, sales, capex, opex)
	progress.report(85, "Tax stage completed")

	metrics := runMetricsStage(p.DiscountRate, sales, capex, opex, taxes)
	progress.report(100, "Calculation completed")

	stages := StageResults{
		StageEngineering: engineering,
		StageProduction:  production,
		StageSales:       sales,
		StageCapex:       capex,
		StageOpex:        opex,
		StageTaxes:       taxes,
	}
	return stages, metrics
}
