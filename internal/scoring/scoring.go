// Package scoring normalizes evaluation scores onto a single 0-100 scale.
//
// Evaluation responses report scores on mixed scales. One rule applies
// everywhere:
//   - an explicit maximum (max_score / out_of) divides the raw value;
//   - otherwise raw values in [0,10] are ten-point scores and are multiplied by 10;
//   - values above 10 are already percentages.
//
// The result is always clamped to [0,100].
package scoring

import (
	"math"

	"github.com/jonathan/assessment-wizard/internal/types"
)

const (
	// MaxPercent is the upper bound of a normalized score.
	MaxPercent = 100.0
	// tenPointMax is the largest raw value treated as a ten-point score.
	tenPointMax = 10.0
)

// Clamp bounds v to [0,100]. NaN clamps to 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > MaxPercent {
		return MaxPercent
	}
	return v
}

// Normalize converts a raw score to a percentage. maxScore <= 0 means the
// scale was not declared.
func Normalize(raw, maxScore float64) float64 {
	if maxScore > 0 {
		return Clamp(raw / maxScore * MaxPercent)
	}
	if raw <= tenPointMax {
		return Clamp(raw * 10)
	}
	return Clamp(raw)
}

// Percent returns correct/total as a percentage, or 0 when total is 0.
func Percent(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return Clamp(float64(correct) / float64(total) * MaxPercent)
}

// Round rounds to one decimal place.
func Round(v float64) float64 {
	return math.Round(v*10) / 10
}

// Overall returns the mean of the given normalized scores.
func Overall(scores ...float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += Clamp(s)
	}
	return Round(sum / float64(len(scores)))
}

// FromEvaluation derives the normalized score and the raw value it came from.
// Precedence: percentage, then score with a declared maximum, then correct/total,
// then score alone.
func FromEvaluation(ev types.Evaluation) (score, raw, maxScore float64) {
	declared := ev.MaxScore
	if declared <= 0 {
		declared = ev.OutOf
	}

	switch {
	case ev.Percentage != nil:
		return Clamp(*ev.Percentage), *ev.Percentage, MaxPercent
	case ev.Score != nil:
		return Normalize(*ev.Score, declared), *ev.Score, declared
	case ev.Total > 0:
		return Percent(ev.Correct, ev.Total), float64(ev.Correct), float64(ev.Total)
	}
	return 0, 0, declared
}

// ResultsSummary computes the overall score over records.
func ResultsSummary(records []types.Result) types.ResultsSummary {
	scores := make([]float64, 0, len(records))
	for _, r := range records {
		scores = append(scores, r.Score)
	}
	out := make([]types.Result, len(records))
	copy(out, records)
	return types.ResultsSummary{Records: out, Overall: Overall(scores...)}
}
