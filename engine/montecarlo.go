package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// StochasticRunner drives N independent deterministic passes under parameter
// perturbation and aggregates the final metrics into distributions.
type StochasticRunner struct {
	Pipeline *Pipeline
	Noise    NoisePolicy
	Rand     *rand.Rand
}

func NewStochasticRunner(pipeline *Pipeline) *StochasticRunner {
	return &StochasticRunner{
		Pipeline: pipeline,
		Noise:    DefaultNoise(),
		Rand:     NewNoiseRand(),
	}
}

// Run executes input.Iterations perturbed passes. Per-iteration stage
// intermediates are discarded; only the four final metrics are sampled.
// Progress is reported at roughly every 5% of iterations and unconditionally
// on the last one. Cancellation is cooperative: ctx is polled at the same
// boundaries, so a cancel can land up to one progress interval late.
func (r *StochasticRunner) Run(ctx context.Context, input CalculationInput, progress ProgressFunc) (*CalculationResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()

	fingerprint, err := Fingerprint(input)
	if err != nil {
		return nil, err
	}

	n := input.Iterations
	step := n / 20
	if step == 0 {
		step = 1
	}

	samples := make(map[string][]float64, len(MetricNames))
	for _, name := range MetricNames {
		samples[name] = make([]float64, 0, n)
	}

	for i := 1; i <= n; i++ {
		perturbed := r.perturb(input)
		_, metrics := r.Pipeline.runStages(perturbed, nil)
		for _, name := range MetricNames {
			samples[name] = append(samples[name], metrics[name])
		}

		if i%step == 0 || i == n {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			progress.report(i*100/n, fmt.Sprintf("Completed iterations: %d/%d", i, n))
		}
	}

	distributions := make(map[string]*Distribution, len(MetricNames))
	finalMetrics := make(map[string]float64, len(MetricNames))
	for _, name := range MetricNames {
		dist := NewDistribution(samples[name])
		distributions[name] = dist
		finalMetrics[name] = dist.Mean
	}

	return &CalculationResult{
		Fingerprint:   fingerprint,
		Mode:          input.Mode,
		Metrics:       finalMetrics,
		Distributions: distributions,
		Iterations:    n,
		Duration:      time.Since(started),
	}, nil
}

// perturb copies input with noise applied to the five stochastic-eligible
// groups. Tax parameters are held fixed by design of the reference policy.
func (r *StochasticRunner) perturb(input CalculationInput) CalculationInput {
	out := input
	out.Engineering = perturbGroup(input.Engineering, r.Noise, r.Rand)
	out.Production = perturbGroup(input.Production, r.Noise, r.Rand)
	out.Sales = perturbGroup(input.Sales, r.Noise, r.Rand)
	out.Capex = perturbGroup(input.Capex, r.Noise, r.Rand)
	out.Opex = perturbGroup(input.Opex, r.Noise, r.Rand)
	return out
}
