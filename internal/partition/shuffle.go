package partition

import (
	"errors"
	"math"
	"math/bits"
	"math/rand/v2"
	"slices"
)

// pcgStream is the fixed second PCG seed word. Changing it changes every split.
const pcgStream = 0x9e3779b97f4a7c15

// ErrInvalidRatio is returned for validation ratios outside [0, 1].
var ErrInvalidRatio = errors.New("validation ratio must be within [0, 1]")

// NewSource returns the generator used for a given seed. Each call returns
// a fresh instance; sources must not be shared between partition calls.
func NewSource(seed int64) rand.Source {
	return rand.NewPCG(uint64(seed), pcgStream)
}

// Shuffle permutes names in place using Fisher-Yates driven by src.
func Shuffle(names []string, src rand.Source) {
	for i := len(names) - 1; i > 0; i-- {
		j := boundedDraw(src, uint64(i)+1)
		names[i], names[j] = names[j], names[i]
	}
}

// boundedDraw returns a uniform value in [0, n) with Lemire's
// multiply-shift reduction and rejection of the biased low range.
func boundedDraw(src rand.Source, n uint64) int {
	hi, lo := bits.Mul64(src.Uint64(), n)
	if lo < n {
		threshold := -n % n
		for lo < threshold {
			hi, lo = bits.Mul64(src.Uint64(), n)
		}
	}
	return int(hi)
}

// SplitIndex returns floor(n * ratio).
func SplitIndex(n int, ratio float64) (int, error) {
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return 0, ErrInvalidRatio
	}
	return int(math.Floor(float64(n) * ratio)), nil
}

// Split returns the validation and training members for seed. The input
// is not modified and its order does not matter.
func Split(labels []string, seed int64, ratio float64) (val, train []string, err error) {
	idx, err := SplitIndex(len(labels), ratio)
	if err != nil {
		return nil, nil, err
	}

	shuffled := slices.Clone(labels)
	slices.Sort(shuffled)
	Shuffle(shuffled, NewSource(seed))

	val = shuffled[:idx:idx]
	train = shuffled[idx:]
	return val, train, nil
}
