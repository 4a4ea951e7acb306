// Package aggregate turns raw analyzer findings into the canonical result and
// derives everything the dashboard shows from it. Every function here is pure.
package aggregate

import (
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
)

// Completeness score thresholds.
const (
	GoodFrom    = 80
	WarningFrom = 60
)

// CompletenessStatusFor buckets a completeness score.
func CompletenessStatusFor(score int) analysis.CompletenessStatus {
	switch {
	case score >= GoodFrom:
		return analysis.CompletenessGood
	case score >= WarningFrom:
		return analysis.CompletenessWarning
	default:
		return analysis.CompletenessPoor
	}
}

// Build validates findings and computes the counts and statuses of the result.
func Build(f analysis.Findings) (analysis.Result, error) {
	if err := f.Validate(); err != nil {
		return analysis.Result{}, err
	}

	missing := append(make([]analysis.MissingItem, 0, len(f.Missing)), f.Missing...)
	critical := 0
	for _, it := range missing {
		if it.Importance == analysis.ImportanceCritical {
			critical++
		}
	}

	incons := append(make([]analysis.Inconsistency, 0, len(f.Inconsistencies)), f.Inconsistencies...)
	severe := 0
	for _, it := range incons {
		if it.Severity == analysis.SeverityHigh {
			severe++
		}
	}

	res := analysis.Result{
		Completeness: analysis.Completeness{
			Score:  f.Score,
			Status: CompletenessStatusFor(f.Score),
			Checks: append(make([]analysis.Check, 0, len(f.Checks)), f.Checks...),
		},
		MissingInfo: analysis.MissingInfo{
			Count:    len(missing),
			Critical: critical,
			Items:    missing,
		},
		Inconsistencies: analysis.Inconsistencies{
			Count:  len(incons),
			Severe: severe,
			Items:  incons,
		},
	}
	if err := res.Validate(); err != nil {
		return analysis.Result{}, err
	}
	return res, nil
}

// CriticalActionCount is the number of critical missing items.
func CriticalActionCount(r analysis.Result) (int, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	return r.MissingInfo.Critical, nil
}
