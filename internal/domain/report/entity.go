package report

import (
	"time"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/risk"
)

// ReportID identifier type
type ReportID string

// Report is the record kept for every generated dashboard report
type Report struct {
	ID              ReportID    `json:"id"`
	SessionID       string      `json:"session_id"`
	RunID           string      `json:"run_id,omitempty"`
	QualityScore    int         `json:"quality_score"`
	OverallRisk     int         `json:"overall_risk"`
	RiskStatus      risk.Status `json:"risk_status"`
	CriticalActions int         `json:"critical_actions"`
	ArtifactURL     string      `json:"artifact_url,omitempty"`
	Format          string      `json:"format"`
	CreatedAt       time.Time   `json:"created_at"`
}
