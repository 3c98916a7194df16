package helper

import (
	"fmt"
	"math/rand/v2"
)

// GenerateCaseID returns prefix-N where N is a random number in [lo, hi].
func GenerateCaseID(prefix string, lo, hi int) string {
	return fmt.Sprintf("%s-%d", prefix, lo+rand.IntN(hi-lo+1))
}
