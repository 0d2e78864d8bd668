package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSample_RateLimitsRecomputation(t *testing.T) {
	s := NewSampler(epoch)

	speed, _ := s.Sample(epoch.Add(time.Second), 1000, 10000)
	assert.InDelta(t, 1000.0, speed, 0.001)

	// 100ms later: same speed even though the byte count jumped.
	speed, _ = s.Sample(epoch.Add(1100*time.Millisecond), 5000, 10000)
	assert.InDelta(t, 1000.0, speed, 0.001)

	// 500ms after the last recomputation: recomputed over the whole window.
	speed, _ = s.Sample(epoch.Add(1500*time.Millisecond), 3000, 10000)
	assert.InDelta(t, 4000.0, speed, 0.001)
}

func TestSample_TwoCallsHundredMillisApart(t *testing.T) {
	s := NewSampler(epoch)

	first, _ := s.Sample(epoch.Add(600*time.Millisecond), 600, -1)
	second, _ := s.Sample(epoch.Add(700*time.Millisecond), 900, -1)

	assert.Equal(t, first, second)
}

func TestSample_BeforeFirstInterval(t *testing.T) {
	s := NewSampler(epoch)

	speed, eta := s.Sample(epoch.Add(200*time.Millisecond), 500, 1000)

	assert.Zero(t, speed)
	assert.Zero(t, eta)
}

func TestSample_ETA(t *testing.T) {
	tests := []struct {
		name     string
		received int64
		total    int64
		want     int64
	}{
		{"known total", 1000, 4000, 3},
		{"rounds up", 1000, 4500, 4},
		{"unknown total", 1000, -1, 0},
		{"done", 1000, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSampler(epoch)

			_, eta := s.Sample(epoch.Add(time.Second), tt.received, tt.total)
			assert.Equal(t, tt.want, eta)
		})
	}
}

func TestSample_StalledTransferHasNoETA(t *testing.T) {
	s := NewSampler(epoch)

	s.Sample(epoch.Add(time.Second), 1000, 5000)
	speed, eta := s.Sample(epoch.Add(2*time.Second), 1000, 5000)

	assert.Zero(t, speed)
	assert.Zero(t, eta)
}
