package builder

import (
	"fmt"

	"strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
)

// Weights assigns a percentage of the segment count to each type.
type Weights map[models.Type]int

// DefaultWeights is the standard layout. Optional types get no share.
func DefaultWeights() Weights {
	return Weights{
		models.TypeEntropy:            40,
		models.TypeCapability:         20,
		models.TypePolicy:             10,
		models.TypeSignatureProof:     10,
		models.TypeMetadata:           10,
		models.TypeIdentityCommitment: 5,
		models.TypeTemporal:           5,
	}
}

// Validate checks that weights sum to 100, are non-negative, name only known
// types and give entropy a share.
func (w Weights) Validate() error {
	total := 0
	for t, pct := range w {
		if !t.IsValid() {
			return dErrors.New(dErrors.CodeConfiguration, fmt.Sprintf("unknown segment type %d in weights", uint8(t)))
		}
		if pct < 0 {
			return dErrors.New(dErrors.CodeConfiguration, fmt.Sprintf("negative weight for %s", t))
		}
		total += pct
	}
	if total != 100 {
		return dErrors.New(dErrors.CodeConfiguration, fmt.Sprintf("segment weights sum to %d, want 100", total))
	}
	if w[models.TypeEntropy] == 0 {
		return dErrors.New(dErrors.CodeConfiguration, "entropy weight must be positive")
	}
	return nil
}

// Partition splits n segments across types. Each bucket gets floor(n*w/100)
// and the remainder goes to entropy, so the counts always sum to n.
func Partition(n int, w Weights) (map[models.Type]int, error) {
	if n < models.MinSegments || n > models.MaxSegments {
		return nil, dErrors.New(dErrors.CodeConfiguration,
			fmt.Sprintf("segment count %d outside [%d, %d]", n, models.MinSegments, models.MaxSegments))
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	buckets := make(map[models.Type]int, len(w))
	assigned := 0
	for t, pct := range w {
		count := n * pct / 100
		buckets[t] = count
		assigned += count
	}
	buckets[models.TypeEntropy] += n - assigned
	return buckets, nil
}
