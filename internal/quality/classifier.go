// Package quality maps extraction confidence onto the good/fair/poor scale.
package quality

import (
	"fmt"
	"math"

	"github.com/joseph-ayodele/photon-decode/constants"
	"github.com/joseph-ayodele/photon-decode/internal/common"
)

// Thresholds are inclusive lower bounds in 0..1.
type Thresholds struct {
	Good float32 `yaml:"good"`
	Fair float32 `yaml:"fair"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Good: 0.80, Fair: 0.55}
}

// Validate requires 0 <= Fair <= Good <= 1.
func (t Thresholds) Validate() error {
	if isBad(t.Good) || isBad(t.Fair) || t.Fair < 0 || t.Good > 1 || t.Fair > t.Good {
		return common.NewAppError("CONFIG_ERROR",
			fmt.Sprintf("quality thresholds must satisfy 0 <= fair <= good <= 1 (fair=%v good=%v)", t.Fair, t.Good),
			common.ErrInvalidInput)
	}
	return nil
}

type Classifier struct {
	t Thresholds
}

func NewClassifier(t Thresholds) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{t: t}, nil
}

// Classify is total: every input maps to exactly one class.
func (c *Classifier) Classify(confidence float32) constants.Quality {
	switch {
	case isBad(confidence) || confidence < 0:
		return constants.QualityPoor
	case confidence >= c.t.Good:
		return constants.QualityGood
	case confidence >= c.t.Fair:
		return constants.QualityFair
	default:
		return constants.QualityPoor
	}
}

func isBad(f float32) bool {
	v := float64(f)
	return math.IsNaN(v) || math.IsInf(v, 0)
}
