package embeddings

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeL2(t *testing.T) {
	t.Run("normalizes to unit length", func(t *testing.T) {
		v := []float32{3, 4}
		NormalizeL2(v)
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)

		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
	})

	t.Run("leaves zero vector unchanged", func(t *testing.T) {
		v := []float32{0, 0, 0}
		NormalizeL2(v)
		assert.Equal(t, []float32{0, 0, 0}, v)
	})

	t.Run("already normalized vector is stable", func(t *testing.T) {
		v := []float32{1, 0, 0}
		NormalizeL2(v)
		assert.InDelta(t, 1.0, v[0], 1e-6)
		assert.InDelta(t, 0.0, v[1], 1e-6)
	})
}
