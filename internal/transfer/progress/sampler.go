package progress

import (
	"math"
	"time"
)

// MinSampleInterval is the shortest window over which speed is recomputed.
const MinSampleInterval = 500 * time.Millisecond

// Sampler derives speed and ETA for a single transfer from the byte counts
// it is fed. It is not safe for concurrent use; the owner of the transfer
// serializes calls.
type Sampler struct {
	lastAt    time.Time
	lastBytes int64

	speed float64
	eta   int64
}

// NewSampler returns a sampler whose baseline is zero bytes at start.
func NewSampler(start time.Time) *Sampler {
	return &Sampler{lastAt: start}
}

// Sample records received bytes at now and returns the current speed in
// bytes per second and the ETA in seconds. Inside MinSampleInterval of the
// previous recomputation the previous values are returned unchanged.
func (s *Sampler) Sample(now time.Time, received, total int64) (float64, int64) {
	elapsed := now.Sub(s.lastAt)
	if elapsed < MinSampleInterval {
		return s.speed, s.eta
	}

	delta := received - s.lastBytes
	if delta < 0 {
		delta = 0
	}

	s.speed = float64(delta) / elapsed.Seconds()
	s.lastAt = now
	s.lastBytes = received
	s.eta = estimate(s.speed, received, total)

	return s.speed, s.eta
}

func estimate(speed float64, received, total int64) int64 {
	if speed <= 0 || total < 0 || received >= total {
		return 0
	}

	return int64(math.Ceil(float64(total-received) / speed))
}
