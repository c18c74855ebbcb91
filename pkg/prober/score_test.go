package prober

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ok(latency time.Duration) Sample {
	return Sample{Success: true, Latency: latency}
}

func fail() Sample {
	return Sample{}
}

func fullRound(build func(i int) Sample) []Sample {
	samples := make([]Sample, ProbeCount)
	for i := range samples {
		samples[i] = build(i)
	}
	return samples
}

func TestReduceAllSuccesses(t *testing.T) {
	samples := fullRound(func(i int) Sample {
		return ok(time.Duration(i+1) * 10 * time.Millisecond) // 10ms..100ms
	})

	score := Reduce(samples)

	assert.Equal(t, ProbeCount, score.Successes)
	assert.Equal(t, 0, score.Failures)
	assert.Equal(t, 10*time.Millisecond, score.Min)
	assert.Equal(t, 100*time.Millisecond, score.Max)
	// Arithmetic mean of 10..100ms is 55ms; with zero failures the composite
	// value equals the plain mean.
	assert.Equal(t, 55*time.Millisecond, score.Avg)
	assert.Equal(t, 55*time.Millisecond, score.Value)
}

func TestReduceMixed(t *testing.T) {
	// 5 successes at 10ms, 5 failures: (5*10ms + 5*300ms) / 10 = 155ms.
	samples := fullRound(func(i int) Sample {
		if i%2 == 0 {
			return ok(10 * time.Millisecond)
		}
		return fail()
	})

	score := Reduce(samples)

	assert.Equal(t, 5, score.Successes)
	assert.Equal(t, 5, score.Failures)
	assert.Equal(t, 10*time.Millisecond, score.Min)
	assert.Equal(t, 10*time.Millisecond, score.Max)
	assert.Equal(t, 10*time.Millisecond, score.Avg)
	assert.Equal(t, 155*time.Millisecond, score.Value)
}

func TestReduceAllFailures(t *testing.T) {
	score := Reduce(fullRound(func(int) Sample { return fail() }))

	assert.Equal(t, 0, score.Successes)
	assert.Equal(t, ProbeCount, score.Failures)
	assert.Equal(t, time.Duration(0), score.Min)
	assert.Equal(t, time.Duration(0), score.Max)
	assert.Equal(t, time.Duration(0), score.Avg)
	// An unreachable target still yields a finite, selectable score.
	assert.Equal(t, Penalty, score.Value)
}

func TestReduceOrderIndependent(t *testing.T) {
	forward := []Sample{ok(5 * time.Millisecond), fail(), ok(20 * time.Millisecond), ok(8 * time.Millisecond), fail()}
	reversed := []Sample{fail(), ok(8 * time.Millisecond), ok(20 * time.Millisecond), fail(), ok(5 * time.Millisecond)}

	assert.Equal(t, Reduce(forward), Reduce(reversed))
}

func TestReduceValueBounds(t *testing.T) {
	// With at least one failure the composite value can never exceed the
	// penalty, and can never undercut the best observed latency.
	samples := fullRound(func(i int) Sample {
		if i < 3 {
			return fail()
		}
		return ok(time.Duration(i) * 7 * time.Millisecond)
	})

	score := Reduce(samples)

	assert.GreaterOrEqual(t, score.Value, score.Min)
	assert.LessOrEqual(t, score.Value, Penalty)
}

func TestReduceEmpty(t *testing.T) {
	assert.Equal(t, Penalty, Reduce(nil).Value)
}
