package aggregate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/risk"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/ai/canned"
)

func cannedResult(t *testing.T) analysis.Result {
	t.Helper()
	res, err := Build(canned.Findings())
	require.NoError(t, err)
	return res
}

func TestBuildComputesCounts(t *testing.T) {
	res := cannedResult(t)

	assert.Equal(t, 87, res.Completeness.Score)
	assert.Equal(t, analysis.CompletenessGood, res.Completeness.Status)
	assert.Equal(t, 7, res.MissingInfo.Count)
	assert.Equal(t, 2, res.MissingInfo.Critical)
	assert.Equal(t, 4, res.Inconsistencies.Count)
	assert.Equal(t, 1, res.Inconsistencies.Severe)
}

func TestBuildEmptyFindings(t *testing.T) {
	res, err := Build(analysis.Findings{Score: 100})
	require.NoError(t, err)
	assert.Zero(t, res.MissingInfo.Count)
	assert.NotNil(t, res.MissingInfo.Items)
	assert.NotNil(t, res.Inconsistencies.Items)
}

func TestBuildRejectsMalformedFindings(t *testing.T) {
	cases := map[string]analysis.Findings{
		"score":      {Score: 101},
		"check":      {Score: 50, Checks: []analysis.Check{{Name: "x", Status: "unknown"}}},
		"importance": {Score: 50, Missing: []analysis.MissingItem{{Field: "x", Importance: "urgent"}}},
		"severity":   {Score: 50, Inconsistencies: []analysis.Inconsistency{{Type: "x", Severity: "extreme"}}},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(f)
			var verr *analysis.ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
}

func TestCompletenessStatusFor(t *testing.T) {
	assert.Equal(t, analysis.CompletenessGood, CompletenessStatusFor(80))
	assert.Equal(t, analysis.CompletenessWarning, CompletenessStatusFor(79))
	assert.Equal(t, analysis.CompletenessWarning, CompletenessStatusFor(60))
	assert.Equal(t, analysis.CompletenessPoor, CompletenessStatusFor(59))
}

func TestCategorize(t *testing.T) {
	assert.Equal(t, risk.Financial, Categorize("Budget Variance Analysis", ""))
	assert.Equal(t, risk.Timeline, Categorize("Date Conflict", "Project timeline inconsistency"))
	assert.Equal(t, risk.Environmental, Categorize("Compliance Section", ""))
	assert.Equal(t, risk.Operational, Categorize("Stakeholder Signatures", "Missing key approvals"))
}

func TestCategorizeMatchesWholeWords(t *testing.T) {
	cases := []struct {
		label, description string
		want               risk.Category
	}{
		{"Consolidated staffing plan", "Headcount not validated", risk.Operational},
		{"Fundamental design basis", "Load assumptions unclear", risk.Operational},
		{"Mandate letter", "Not signed by the department", risk.Operational},
		{"Funding Sources", "Secondary funding sources not itemised", risk.Financial},
		{"Pricing", "Unit rates outdated", risk.Financial},
		{"Schedule", "Dates slipped; commissioning delayed", risk.Timeline},
		{"Milestones", "Scheduling of phase 2 unclear", risk.Timeline},
		{"Environmental Impact Assessment", "", risk.Environmental},
		{"Emissions", "Stack monitoring plan absent", risk.Environmental},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			assert.Equal(t, tc.want, Categorize(tc.label, tc.description))
		})
	}
}

func TestDeriveRiskCannedResult(t *testing.T) {
	d, err := DeriveRisk(cannedResult(t))
	require.NoError(t, err)

	assert.Equal(t, risk.Assessment{Level: 45, Status: risk.StatusMedium, Trend: risk.TrendUp}, d.Financial)
	assert.Equal(t, risk.Assessment{Level: 64, Status: risk.StatusHigh, Trend: risk.TrendUp}, d.Operational)
	assert.Equal(t, risk.Assessment{Level: 22, Status: risk.StatusLow, Trend: risk.TrendDown}, d.Timeline)
	assert.Equal(t, risk.Assessment{Level: 13, Status: risk.StatusLow, Trend: risk.TrendDown}, d.Environmental)

	overall, err := OverallRisk(d)
	require.NoError(t, err)
	assert.Equal(t, 36, overall)
	assert.Equal(t, risk.StatusMedium, risk.Classify(overall))
}

func TestDeriveRiskIsPure(t *testing.T) {
	res := cannedResult(t)
	a, err := DeriveRisk(res)
	require.NoError(t, err)
	b, err := DeriveRisk(res)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeriveRiskClampsLevels(t *testing.T) {
	var missing []analysis.MissingItem
	for i := 0; i < 10; i++ {
		missing = append(missing, analysis.MissingItem{Field: "Budget", Importance: analysis.ImportanceCritical})
	}
	res, err := Build(analysis.Findings{Score: 0, Missing: missing})
	require.NoError(t, err)

	d, err := DeriveRisk(res)
	require.NoError(t, err)
	assert.Equal(t, 100, d.Financial.Level)
	assert.Equal(t, risk.StatusHigh, d.Financial.Status)
	for _, c := range risk.Categories {
		l := d.Get(c).Level
		assert.GreaterOrEqual(t, l, 0)
		assert.LessOrEqual(t, l, 100)
	}
}

// counts from the reference scenario, items filled to match
func TestDeriveRiskScenarioCounts(t *testing.T) {
	res := analysis.Result{
		Completeness: analysis.Completeness{Score: 70, Status: analysis.CompletenessWarning},
		MissingInfo: analysis.MissingInfo{Count: 7, Critical: 2, Items: []analysis.MissingItem{
			{Field: "a", Importance: analysis.ImportanceCritical},
			{Field: "b", Importance: analysis.ImportanceCritical},
			{Field: "c", Importance: analysis.ImportanceMedium},
			{Field: "d", Importance: analysis.ImportanceMedium},
			{Field: "e", Importance: analysis.ImportanceLow},
			{Field: "f", Importance: analysis.ImportanceLow},
			{Field: "g", Importance: analysis.ImportanceLow},
		}},
		Inconsistencies: analysis.Inconsistencies{Count: 4, Severe: 1, Items: []analysis.Inconsistency{
			{Type: "a", Severity: analysis.SeverityHigh},
			{Type: "b", Severity: analysis.SeverityMedium},
			{Type: "c", Severity: analysis.SeverityLow},
			{Type: "d", Severity: analysis.SeverityLow},
		}},
	}
	d, err := DeriveRisk(res)
	require.NoError(t, err)

	// unlabelled findings all land in operational, which saturates
	assert.Equal(t, []int{7, 100, 7, 7}, d.Levels())

	overall, err := OverallRisk(d)
	require.NoError(t, err)
	assert.Equal(t, 30, overall) // round(121 / 4)
	assert.Equal(t, risk.StatusLow, risk.Classify(overall))

	n, err := CriticalActionCount(res)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMalformedResultIsRejected(t *testing.T) {
	good := cannedResult(t)
	cases := map[string]func(r *analysis.Result){
		"critical over count": func(r *analysis.Result) { r.MissingInfo.Critical = r.MissingInfo.Count + 1 },
		"negative count":      func(r *analysis.Result) { r.Inconsistencies.Severe = -1 },
		"count mismatch":      func(r *analysis.Result) { r.MissingInfo.Count = 3 },
		"unknown status":      func(r *analysis.Result) { r.Completeness.Status = "excellent" },
		"score out of range":  func(r *analysis.Result) { r.Completeness.Score = -4 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := good
			mutate(&r)

			var verr *analysis.ValidationError
			_, err := DeriveRisk(r)
			assert.True(t, errors.As(err, &verr), "DeriveRisk: %v", err)
			_, err = CriticalActionCount(r)
			assert.True(t, errors.As(err, &verr), "CriticalActionCount: %v", err)
			_, err = BuildDashboard(r, risk.Data{})
			assert.Error(t, err)
		})
	}
}

func TestOverallRiskRejectsInconsistentData(t *testing.T) {
	d := risk.Data{
		Financial:     risk.Assessment{Level: 45, Status: risk.StatusLow, Trend: risk.TrendUp},
		Operational:   risk.Assessment{Level: 10, Status: risk.StatusLow, Trend: risk.TrendDown},
		Timeline:      risk.Assessment{Level: 10, Status: risk.StatusLow, Trend: risk.TrendDown},
		Environmental: risk.Assessment{Level: 10, Status: risk.StatusLow, Trend: risk.TrendDown},
	}
	_, err := OverallRisk(d)
	var verr *analysis.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "risk.financial.status", verr.Field)
}

func TestBuildDashboard(t *testing.T) {
	res := cannedResult(t)
	d, err := DeriveRisk(res)
	require.NoError(t, err)

	dash, err := BuildDashboard(res, d)
	require.NoError(t, err)
	assert.Equal(t, 87, dash.QualityScore)
	assert.Equal(t, 36, dash.OverallRisk)
	assert.Equal(t, risk.StatusMedium, dash.RiskStatus)
	assert.Equal(t, 2, dash.CriticalActions)
	assert.Equal(t, 7, dash.MissingCount)
	assert.Equal(t, 4, dash.InconsistencyCount)
	assert.Equal(t, 1, dash.SevereCount)
}
