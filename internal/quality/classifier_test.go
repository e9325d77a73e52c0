package quality

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/photon-decode/constants"
)

func TestClassify_Defaults(t *testing.T) {
	c, err := NewClassifier(DefaultThresholds())
	require.NoError(t, err)

	tests := []struct {
		conf float32
		want constants.Quality
	}{
		{1.0, constants.QualityGood},
		{0.80, constants.QualityGood},
		{0.7999, constants.QualityFair},
		{0.55, constants.QualityFair},
		{0.5499, constants.QualityPoor},
		{0, constants.QualityPoor},
		{-0.1, constants.QualityPoor},
		{float32(math.NaN()), constants.QualityPoor},
		{float32(math.Inf(1)), constants.QualityPoor},
		{1.7, constants.QualityGood},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.conf), "confidence %v", tt.conf)
	}
}

func TestClassify_Monotonic(t *testing.T) {
	c, err := NewClassifier(Thresholds{Good: 0.9, Fair: 0.3})
	require.NoError(t, err)

	prev := 0
	for i := 0; i <= 100; i++ {
		r := c.Classify(float32(i) / 100).Rank()
		require.GreaterOrEqual(t, r, prev, "rank dropped at %d", i)
		prev = r
	}
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, Thresholds{Good: 0.5, Fair: 0.5}.Validate())
	assert.NoError(t, Thresholds{Good: 1, Fair: 0}.Validate())
	assert.Error(t, Thresholds{Good: 0.5, Fair: 0.6}.Validate())
	assert.Error(t, Thresholds{Good: 1.2, Fair: 0.6}.Validate())
	assert.Error(t, Thresholds{Good: 0.8, Fair: -0.1}.Validate())
	assert.Error(t, Thresholds{Good: float32(math.NaN()), Fair: 0.1}.Validate())

	_, err := NewClassifier(Thresholds{Good: 0.1, Fair: 0.9})
	assert.Error(t, err)
}
