package service

import (
	"math/rand"
	"time"

	"github.com/controlfreak/cfkd/internal/constants"
)

// BackoffDelay computes the delay before retry attempt n (1-indexed):
// BASE_BACKOFF_DELAY * uniform_int[1, 2n-1] (§4.1).
func BackoffDelay(n int, rng *rand.Rand) time.Duration {
	if n < 1 {
		n = 1
	}
	hi := 2*n - 1
	var k int
	if hi <= 1 {
		k = 1
	} else {
		k = 1 + rng.Intn(hi)
	}
	return constants.BaseBackoffDelay * time.Duration(k)
}
