package vecgym

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/atari-vecgym/vecgym-worker/internal/interfaces"
)

// EpisodeLengthBuckets defines the episode-length histogram buckets,
// in raw emulator frames. Buckets cover from a quick death up to the
// hard frame limit.
var EpisodeLengthBuckets = []uint64{
	100,
	500,
	1_000,
	5_000,
	10_000,
	15_000,
}

const numLengthBuckets = 6

// Metrics tracks step/episode/reset statistics for a worker process.
type Metrics struct {
	StepCount    atomic.Uint64 // total environment-steps observed
	EpisodeCount atomic.Uint64 // total episodes completed
	ResetCount   atomic.Uint64 // total life-loss resets (not full episode ends)

	totalRewardBits atomic.Uint64 // float64 bits, cumulative reward across all steps

	TotalEpisodeLength atomic.Uint64
	MaxEpisodeLength   atomic.Uint32

	// Episode-length histogram buckets (cumulative counts): bucket[i]
	// counts episodes with length <= EpisodeLengthBuckets[i].
	LengthBuckets [numLengthBuckets]atomic.Uint64

	StartTime atomic.Int64 // UnixNano
	StopTime  atomic.Int64 // UnixNano
}

// NewMetrics creates a fresh metrics instance with its start time set
// to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordStep records one environment-step.
func (m *Metrics) RecordStep(rew float32, done bool) {
	m.StepCount.Add(1)
	m.addReward(float64(rew))
}

// RecordReset records a life-loss reset that did not end the episode.
func (m *Metrics) RecordReset() {
	m.ResetCount.Add(1)
}

// RecordEpisode records a completed episode.
func (m *Metrics) RecordEpisode(score float32, length int32, elapsedSeconds float64) {
	m.EpisodeCount.Add(1)
	m.TotalEpisodeLength.Add(uint64(length))

	for {
		current := m.MaxEpisodeLength.Load()
		if uint32(length) <= current {
			break
		}
		if m.MaxEpisodeLength.CompareAndSwap(current, uint32(length)) {
			break
		}
	}

	for i, bucket := range EpisodeLengthBuckets {
		if uint64(length) <= bucket {
			m.LengthBuckets[i].Add(1)
		}
	}
}

func (m *Metrics) addReward(delta float64) {
	for {
		oldBits := m.totalRewardBits.Load()
		newVal := math.Float64frombits(oldBits) + delta
		if m.totalRewardBits.CompareAndSwap(oldBits, math.Float64bits(newVal)) {
			return
		}
	}
}

// Stop marks the process as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time view of Metrics.
type MetricsSnapshot struct {
	StepCount    uint64
	EpisodeCount uint64
	ResetCount   uint64

	TotalReward float64
	AvgReward   float64

	AvgEpisodeLength float64
	MaxEpisodeLength uint32

	LengthP50 uint64
	LengthP99 uint64

	LengthHistogram [numLengthBuckets]uint64

	StepsPerSecond float64
	UptimeNs       uint64
}

// Snapshot takes a point-in-time snapshot of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		StepCount:        m.StepCount.Load(),
		EpisodeCount:     m.EpisodeCount.Load(),
		ResetCount:       m.ResetCount.Load(),
		TotalReward:      math.Float64frombits(m.totalRewardBits.Load()),
		MaxEpisodeLength: m.MaxEpisodeLength.Load(),
	}

	if snap.StepCount > 0 {
		snap.AvgReward = snap.TotalReward / float64(snap.StepCount)
	}

	totalLength := m.TotalEpisodeLength.Load()
	if snap.EpisodeCount > 0 {
		snap.AvgEpisodeLength = float64(totalLength) / float64(snap.EpisodeCount)
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}
	if snap.UptimeNs > 0 {
		snap.StepsPerSecond = float64(snap.StepCount) / (float64(snap.UptimeNs) / 1e9)
	}

	for i := 0; i < numLengthBuckets; i++ {
		snap.LengthHistogram[i] = m.LengthBuckets[i].Load()
	}

	if snap.EpisodeCount > 0 {
		snap.LengthP50 = m.calculatePercentile(0.50)
		snap.LengthP99 = m.calculatePercentile(0.99)
	}

	return snap
}

// calculatePercentile estimates the episode length at the given
// percentile (0.0-1.0) by linear interpolation between histogram
// buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	total := m.EpisodeCount.Load()
	if total == 0 {
		return 0
	}

	target := uint64(float64(total) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range EpisodeLengthBuckets {
		count := m.LengthBuckets[i].Load()
		if count >= target {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LengthBuckets[i-1].Load()
			}
			if count == prevCount {
				return bucket
			}
			fraction := float64(target-prevCount) / float64(count-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return EpisodeLengthBuckets[numLengthBuckets-1]
}

// Reset zeroes all counters, restarting the uptime clock. Useful in
// tests.
func (m *Metrics) Reset() {
	m.StepCount.Store(0)
	m.EpisodeCount.Store(0)
	m.ResetCount.Store(0)
	m.totalRewardBits.Store(0)
	m.TotalEpisodeLength.Store(0)
	m.MaxEpisodeLength.Store(0)
	for i := 0; i < numLengthBuckets; i++ {
		m.LengthBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// MetricsObserver adapts Metrics to the internal Observer contract the
// engine drives.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver wraps m as an interfaces.Observer.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveStep(lump int, rew float32, done bool) {
	o.metrics.RecordStep(rew, done)
}

func (o *MetricsObserver) ObserveEpisode(lump int, score float32, length int32, elapsedSeconds float64) {
	o.metrics.RecordEpisode(score, length, elapsedSeconds)
}

func (o *MetricsObserver) ObserveReset() {
	o.metrics.RecordReset()
}

// NoOpObserver discards everything; used when no metrics sink is wired.
type NoOpObserver struct{}

func (NoOpObserver) ObserveStep(int, float32, bool)            {}
func (NoOpObserver) ObserveEpisode(int, float32, int32, float64) {}
func (NoOpObserver) ObserveReset()                               {}

var _ interfaces.Observer = (*MetricsObserver)(nil)
var _ interfaces.Observer = (*NoOpObserver)(nil)
