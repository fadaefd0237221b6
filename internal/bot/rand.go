package bot

import (
	"math/rand"
	"sync"
)

// dice is the random source behind RandomStrategy. Sessions run their
// computer turns concurrently and *rand.Rand is not safe for that, so a
// seeded source is guarded by a mutex. A nil source uses the global one.
type dice struct {
	mu  sync.Mutex
	src *rand.Rand
}

var rng dice

// SeedBotRng makes computer turns reproducible, for simulations and tests.
func SeedBotRng(seed int64) {
	rng.mu.Lock()
	rng.src = rand.New(rand.NewSource(seed))
	rng.mu.Unlock()
}

// ResetBotRng goes back to the unseeded global source.
func ResetBotRng() {
	rng.mu.Lock()
	rng.src = nil
	rng.mu.Unlock()
}

func botIntn(n int) int {
	rng.mu.Lock()
	defer rng.mu.Unlock()
	if rng.src == nil {
		return rand.Intn(n)
	}
	return rng.src.Intn(n)
}

func botShuffle(n int, swap func(i, j int)) {
	rng.mu.Lock()
	defer rng.mu.Unlock()
	if rng.src == nil {
		rand.Shuffle(n, swap)
		return
	}
	rng.src.Shuffle(n, swap)
}

// coinFlip is true half the time.
func coinFlip() bool {
	return botIntn(2) == 0
}
