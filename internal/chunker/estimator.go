package chunker

import (
	"fmt"
	"strings"
)

const (
	// DefaultBudget is the maximum weight of a single section's own content
	DefaultBudget = 8000

	// BytesPerToken is the heuristic used by ByteEstimator (chars/4)
	BytesPerToken = 4
)

// Estimator weighs a span of text. Implementations must be deterministic,
// and weights of spans split at a line start must add up exactly.
type Estimator interface {
	Name() string
	Estimate(text string) int
}

// WordEstimator counts whitespace-separated words. A span split at a line
// start never breaks a word, so weights are additive.
type WordEstimator struct{}

func (WordEstimator) Name() string { return "words" }

func (WordEstimator) Estimate(text string) int {
	return len(strings.Fields(text))
}

// ByteEstimator approximates tokens as bytes/4, rounded up. It is additive
// up to one token per split.
type ByteEstimator struct{}

func (ByteEstimator) Name() string { return "bytes" }

func (ByteEstimator) Estimate(text string) int {
	return (len(text) + BytesPerToken - 1) / BytesPerToken
}

// EstimatorByName resolves a configured estimator name.
func EstimatorByName(name string) (Estimator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "words":
		return WordEstimator{}, nil
	case "bytes":
		return ByteEstimator{}, nil
	default:
		return nil, fmt.Errorf("unknown estimator %q", name)
	}
}
