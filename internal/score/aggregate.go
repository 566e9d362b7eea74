// Package score aggregates claim dispositions into a report.
package score

import (
	"math"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// Aggregate builds the report for a run. Dispositions keep their order.
//
// overall_score is the mean over all claims of
// support(verdict) * confidence * quality_score, where support is 1 for
// supported claims and 0 otherwise. A claim without a confidence or a
// quality score contributes 0.
func Aggregate(dispositions []model.ClaimDisposition) model.Report {
	report := model.Report{
		TotalClaims:  len(dispositions),
		Dispositions: dispositions,
	}
	if report.Dispositions == nil {
		report.Dispositions = []model.ClaimDisposition{}
	}
	if len(dispositions) == 0 {
		return report
	}

	total := 0.0
	for _, d := range dispositions {
		switch d.Verdict {
		case model.VerdictSupported:
			report.SupportedCount++
			total += contribution(d)
		case model.VerdictRefuted:
			report.RefutedCount++
		default:
			report.InsufficientCount++
		}
	}

	n := float64(len(dispositions))
	report.SupportRate = clamp(float64(report.SupportedCount) / n)
	report.OverallScore = clamp(total / n)

	return report
}

// contribution is confidence times quality for a supported claim
func contribution(d model.ClaimDisposition) float64 {
	if d.Confidence == nil || d.QualityScore == nil {
		return 0
	}
	return clamp(*d.Confidence) * clamp(*d.QualityScore)
}

func clamp(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}
