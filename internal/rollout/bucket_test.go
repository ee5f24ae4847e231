package rollout

import (
	"crypto/rand"
	"encoding/hex"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateRandomID returns a random subject id so the distribution tests are
// not biased by sequential patterns.
func generateRandomID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func TestInBucket_Boundaries(t *testing.T) {
	t.Parallel()

	const iterations = 10000

	t.Run("Ratio 0 never admits", func(t *testing.T) {
		for i := range iterations {
			if InBucket(0, generateRandomID(), "1checkout") {
				t.Fatalf("iteration %d: ratio 0 returned true", i)
			}
		}
	})

	t.Run("Ratio 1 always admits", func(t *testing.T) {
		for i := range iterations {
			if !InBucket(1, generateRandomID(), "1checkout") {
				t.Fatalf("iteration %d: ratio 1 returned false", i)
			}
		}
	})

	t.Run("Empty subject is never admitted", func(t *testing.T) {
		assert.False(t, InBucket(1, "", "1checkout"))
	})
}

func TestInBucket_Determinism(t *testing.T) {
	t.Parallel()

	subject := generateRandomID()
	salt := "42advance-experiment"
	initial := InBucket(0.5, subject, salt)

	for i := range 10000 {
		require.Equal(t, initial, InBucket(0.5, subject, salt), "bucket flipped on iteration %d", i)
	}
}

func TestInBucket_Distribution(t *testing.T) {
	t.Parallel()

	const population = 20000

	for _, ratio := range []float64{0.1, 0.25, 0.5, 0.9} {
		admitted := 0
		for range population {
			if InBucket(ratio, generateRandomID(), "7tip-jar") {
				admitted++
			}
		}

		got := float64(admitted) / population
		// Binomial standard deviation is at most 0.0036 here; 0.02 is over five sigmas.
		assert.InDelta(t, ratio, got, 0.02, "ratio %.2f observed %.4f", ratio, got)
	}
}

func TestInBucket_SaltIndependence(t *testing.T) {
	t.Parallel()

	subject := generateRandomID()
	admitted := 0
	const salts = 10000

	for range salts {
		if InBucket(0.5, subject, generateRandomID()) {
			admitted++
		}
	}

	share := float64(admitted) / salts
	assert.InDelta(t, 0.5, share, 0.03, "a single subject should land in both buckets across experiments")
}

func TestPoint_Range(t *testing.T) {
	t.Parallel()

	for range 1000 {
		p := Point(generateRandomID(), "salt")
		assert.GreaterOrEqual(t, p, 0.0)
		assert.Less(t, p, 1.0)
		assert.False(t, math.IsNaN(p))
	}
}

func TestValidateRatio(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateRatio(0))
	assert.NoError(t, ValidateRatio(0.5))
	assert.NoError(t, ValidateRatio(1))
	assert.Error(t, ValidateRatio(-0.01))
	assert.Error(t, ValidateRatio(1.01))
	assert.Error(t, ValidateRatio(math.NaN()))
}
