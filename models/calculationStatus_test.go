package models

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to CalculationStatus }{
		{CalculationStatusPending, CalculationStatusProcessing},
		{CalculationStatusProcessing, CalculationStatusCompleted},
		{CalculationStatusProcessing, CalculationStatusFailed},
		{CalculationStatusFailed, CalculationStatusProcessing},
		{CalculationStatusFailed, CalculationStatusPermanentlyFailed},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to CalculationStatus }{
		{CalculationStatusPending, CalculationStatusCompleted},
		{CalculationStatusPending, CalculationStatusFailed},
		{CalculationStatusCompleted, CalculationStatusProcessing},
		{CalculationStatusCompleted, CalculationStatusFailed},
		{CalculationStatusPermanentlyFailed, CalculationStatusProcessing},
		{CalculationStatusProcessing, CalculationStatusPending},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !CalculationStatusCompleted.IsTerminal() {
		t.Fatal("COMPLETED is terminal")
	}
	if !CalculationStatusPermanentlyFailed.IsTerminal() {
		t.Fatal("PERMANENTLY_FAILED is terminal")
	}
	for _, s := range []CalculationStatus{CalculationStatusPending, CalculationStatusProcessing, CalculationStatusFailed} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
