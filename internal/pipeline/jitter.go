package pipeline

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

// DefaultJitterAmplitude is the largest offset, in level points, added to a
// published signal level.
const DefaultJitterAmplitude = 3.0

// JitterSource produces the cosmetic noise added to live signal levels. Each
// stream draws from its own generator derived from the source seed, so a
// fixed seed gives reproducible sequences per stream.
type JitterSource struct {
	seed      int64
	amplitude float64

	mu   sync.Mutex
	rngs map[string]*rand.Rand
}

// NewJitterSource creates a source with the given seed and amplitude.
func NewJitterSource(seed int64, amplitude float64) *JitterSource {
	return &JitterSource{
		seed:      seed,
		amplitude: amplitude,
		rngs:      make(map[string]*rand.Rand),
	}
}

// NewJitterSourceFromTime creates a source seeded from the current time.
func NewJitterSourceFromTime(amplitude float64) *JitterSource {
	return NewJitterSource(time.Now().UnixNano(), amplitude)
}

// forStream returns the generator for streamID. Callers hold j.mu.
func (j *JitterSource) forStream(streamID string) *rand.Rand {
	rng, ok := j.rngs[streamID]
	if !ok {
		h := fnv.New64a()
		h.Write([]byte(streamID))
		rng = rand.New(rand.NewSource(int64(h.Sum64()) ^ j.seed))
		j.rngs[streamID] = rng
	}
	return rng
}

// Apply offsets level by up to ±amplitude and clamps the result to 0–100.
func (j *JitterSource) Apply(streamID string, level float64) float64 {
	j.mu.Lock()
	offset := (j.forStream(streamID).Float64()*2 - 1) * j.amplitude
	j.mu.Unlock()

	v := level + offset
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Forget drops the generator of a removed stream.
func (j *JitterSource) Forget(streamID string) {
	j.mu.Lock()
	delete(j.rngs, streamID)
	j.mu.Unlock()
}
