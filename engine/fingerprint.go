package engine

import "regexp"

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// HashableInput is the exact subset of a CalculationInput that identifies it:
// case id, mode, the six parameter groups and the iteration count. Metadata is
// deliberately excluded.
func HashableInput(in CalculationInput) map[string]interface{} {
	return map[string]interface{}{
		"case_id":     in.CaseId,
		"mode":        in.Mode,
		"engineering": in.Engineering,
		"production":  in.Production,
		"sales":       in.Sales,
		"capex":       in.Capex,
		"opex":        in.Opex,
		"tax":         in.Tax,
		"iterations":  in.Iterations,
	}
}

// Fingerprint is the SHA-256 hex digest of the canonical form of the hashable
// subset. Equal canonical forms always yield equal fingerprints.
func Fingerprint(in CalculationInput) (string, error) {
	return GenerateHash(HashableInput(in))
}

// ShortForm is a display-only prefix. Not collision-safe.
func ShortForm(fingerprint string) string {
	if len(fingerprint) < 16 {
		return fingerprint
	}
	return fingerprint[:16]
}

// IsValidFingerprint reports whether f is 64 lowercase hex characters.
func IsValidFingerprint(f string) bool {
	return fingerprintPattern.MatchString(f)
}
