package engine

import "math"

const (
	irrInitialGuess  = 0.10
	irrMaxIterations = 100
	irrTolerance     = 1e-4
)

// NetPresentValue discounts the cash-flow series (index = year, year 0 is the
// initial outlay) at the given annual rate.
func NetPresentValue(cashflows []float64, rate float64) float64 {
	npv := 0.0
	for t, cf := range cashflows {
		npv += cf / math.Pow(1+rate, float64(t))
	}
	return npv
}

func npvDerivative(cashflows []float64, rate float64) float64 {
	d := 0.0
	for t, cf := range cashflows {
		if t == 0 {
			continue
		}
		d -= float64(t) * cf / math.Pow(1+rate, float64(t+1))
	}
	return d
}

// InternalRateOfReturn solves NPV(r) = 0 by Newton-Raphson: initial guess
// 0.10, at most 100 iterations, converged when the guess moves less than
// 1e-4. There is no bisection fallback: when the derivative vanishes or an
// update stops being finite, the last finite guess is returned as-is.
// Non-convergence is therefore not an error; callers that care should check
// NPV at the returned rate.
func InternalRateOfReturn(cashflows []float64) float64 {
	guess := irrInitialGuess
	for i := 0; i < irrMaxIterations; i++ {
		deriv := npvDerivative(cashflows, guess)
		if math.Abs(deriv) < 1e-12 {
			break
		}
		next := guess - NetPresentValue(cashflows, guess)/deriv
		if math.IsNaN(next) || math.IsInf(next, 0) {
			break
		}
		if math.Abs(next-guess) < irrTolerance {
			return next
		}
		guess = next
	}
	return guess
}

// ProfitabilityIndex is (NPV + total capex) / total capex. A zero capex would
// divide by zero; that case is classified as an explicit fallback of 0 rather
// than a failed attempt.
func ProfitabilityIndex(npv, totalCapex float64) float64 {
	if totalCapex == 0 {
		return 0
	}
	return (npv + totalCapex) / totalCapex
}

// PaybackPeriod is the smallest 1-based year at which cumulative cash flow
// (including the year-0 outlay) reaches zero. A project that never pays back
// within its horizon reports the horizon itself, never an undefined value.
func PaybackPeriod(cashflows []float64) int {
	horizon := len(cashflows) - 1
	if horizon < 1 {
		return 1
	}
	cumulative := 0.0
	for t, cf := range cashflows {
		cumulative += cf
		if t >= 1 && cumulative >= 0 {
			return t
		}
	}
	return horizon
}
