package engine

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sort"

	"bitbucket.org/mmdatafocus/petroeval_backend/config"
)

// NoisePolicy draws one multiplicative perturbation factor per numeric leaf.
// Implementations must be symmetric around 1.0. The distribution family is an
// extension point; UniformNoise is the reference policy.
type NoisePolicy interface {
	Factor(rng *rand.Rand) float64
}

// UniformNoise draws factors uniformly from [1-Spread, 1+Spread].
type UniformNoise struct {
	Spread float64
}

func (u UniformNoise) Factor(rng *rand.Rand) float64 {
	return 1 - u.Spread + 2*u.Spread*rng.Float64()
}

func DefaultNoise() NoisePolicy {
	return UniformNoise{Spread: config.NoiseSpread()}
}

// NewNoiseRand returns the RNG for a stochastic run. NOISE_SEED pins the
// sequence for reproducing a run; otherwise the seed comes from crypto/rand.
func NewNoiseRand() *rand.Rand {
	if seed, ok := config.NoiseSeed(); ok {
		return rand.New(rand.NewSource(seed))
	}
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return rand.New(rand.NewSource(1))
	}
	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(b[:]))))
}

// perturbGroup returns a deep copy of group with every numeric leaf multiplied
// by an independently drawn noise factor. Non-numeric leaves pass through.
// Keys are visited in sorted order so a seeded RNG assigns the same factor to
// the same leaf on every run.
func perturbGroup(group ParamGroup, noise NoisePolicy, rng *rand.Rand) ParamGroup {
	if group == nil {
		return nil
	}
	out := make(ParamGroup, len(group))
	for _, key := range sortedKeys(group) {
		out[key] = perturbValue(group[key], noise, rng)
	}
	return out
}

func perturbValue(value interface{}, noise NoisePolicy, rng *rand.Rand) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for _, key := range sortedKeys(v) {
			out[key] = perturbValue(v[key], noise, rng)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = perturbValue(item, noise, rng)
		}
		return out
	default:
		if f, ok := asFloat(v); ok {
			return f * noise.Factor(rng)
		}
		return v
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
