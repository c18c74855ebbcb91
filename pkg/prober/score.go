package prober

import "time"

// Score is the aggregate quality of one target over one measurement round.
// Value is the sole ranking key; lower is strictly better.
type Score struct {
	Successes int
	Failures  int

	// Min and Max are extrema over successful attempts only. They are zero
	// when every attempt failed.
	Min time.Duration
	Max time.Duration

	// Avg is the mean latency of successful attempts only, for reporting.
	// Zero when every attempt failed.
	Avg time.Duration

	// Value is the penalty-adjusted average over all attempts:
	// (sum of successful latencies + Failures*Penalty) / len(samples).
	Value time.Duration
}

// Reduce folds one round of samples into a Score. The reduction is
// symmetric: sample order does not affect the result. A round with zero
// successes scores exactly the penalty value and remains eligible for
// selection, so a winner exists even when every backend is down.
func Reduce(samples []Sample) Score {
	if len(samples) == 0 {
		return Score{Value: Penalty}
	}

	var score Score
	var sum time.Duration

	for _, s := range samples {
		if !s.Success {
			score.Failures++
			continue
		}
		if score.Successes == 0 || s.Latency < score.Min {
			score.Min = s.Latency
		}
		if s.Latency > score.Max {
			score.Max = s.Latency
		}
		score.Successes++
		sum += s.Latency
	}

	if score.Successes > 0 {
		score.Avg = sum / time.Duration(score.Successes)
	}
	score.Value = (sum + time.Duration(score.Failures)*Penalty) / time.Duration(len(samples))

	return score
}
