package aggregate

import (
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/risk"
)

// Dashboard is the read-only summary shown after an analysis run.
type Dashboard struct {
	QualityScore       int                         `json:"quality_score"`
	QualityStatus      analysis.CompletenessStatus `json:"quality_status"`
	OverallRisk        int                         `json:"overall_risk"`
	RiskStatus         risk.Status                 `json:"risk_status"`
	CriticalActions    int                         `json:"critical_actions"`
	MissingCount       int                         `json:"missing_count"`
	InconsistencyCount int                         `json:"inconsistency_count"`
	SevereCount        int                         `json:"severe_count"`
	Risk               risk.Data                   `json:"risk"`
}

// BuildDashboard combines a result and its risk data.
func BuildDashboard(r analysis.Result, d risk.Data) (Dashboard, error) {
	actions, err := CriticalActionCount(r)
	if err != nil {
		return Dashboard{}, err
	}
	overall, err := OverallRisk(d)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		QualityScore:       r.Completeness.Score,
		QualityStatus:      r.Completeness.Status,
		OverallRisk:        overall,
		RiskStatus:         risk.Classify(overall),
		CriticalActions:    actions,
		MissingCount:       r.MissingInfo.Count,
		InconsistencyCount: r.Inconsistencies.Count,
		SevereCount:        r.Inconsistencies.Severe,
		Risk:               d,
	}, nil
}
