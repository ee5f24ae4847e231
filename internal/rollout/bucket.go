// Package rollout implements deterministic bucket assignment for experiments.
//
// A subject is mapped to a point in [0, 1) by hashing "subject:salt" with
// Murmur3. The same subject and salt always produce the same point, so
// repeated evaluations land in the same bucket without storing any state,
// and different salts (experiments) draw independently.
package rollout

import (
	"fmt"

	"github.com/spaolacci/murmur3"
)

// hashSpace is the size of the 32-bit hash range, used to normalise into [0, 1).
const hashSpace = float64(1 << 32)

// Point returns the position of subject in [0, 1) for the given salt.
func Point(subject, salt string) float64 {
	hasher := murmur3.New32()
	_, _ = hasher.Write([]byte(subject + ":" + salt)) // Write never fails for murmur3
	return float64(hasher.Sum32()) / hashSpace
}

// InBucket reports whether subject falls in the treatment share defined by
// ratio for the given salt. An empty subject is never admitted, whatever the
// ratio. For any other subject, ratio 0 admits nobody and ratio 1 admits
// everybody.
func InBucket(ratio float64, subject, salt string) bool {
	if subject == "" {
		return false
	}
	return Point(subject, salt) < ratio
}

// ValidateRatio returns an error when ratio lies outside [0, 1].
func ValidateRatio(ratio float64) error {
	if !(ratio >= 0 && ratio <= 1) {
		return fmt.Errorf("ratio must be between 0 and 1, got %v", ratio)
	}
	return nil
}
