package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/report"
)

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Save inserts or updates a report record
func (r *ReportRepository) Save(ctx context.Context, rep *domain.Report) error {
	const q = `
INSERT INTO review_reports
  (id, session_id, run_id, quality_score, overall_risk, risk_status,
   critical_actions, artifact_url, format, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  quality_score=EXCLUDED.quality_score,
  overall_risk=EXCLUDED.overall_risk,
  risk_status=EXCLUDED.risk_status,
  critical_actions=EXCLUDED.critical_actions,
  artifact_url=EXCLUDED.artifact_url,
  format=EXCLUDED.format;
`
	createdAt := rep.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		rep.ID, rep.SessionID, rep.RunID, rep.QualityScore, rep.OverallRisk, rep.RiskStatus,
		rep.CriticalActions, strings.TrimSpace(rep.ArtifactURL), rep.Format, createdAt,
	)
	return err
}

// Get by ID; a missing row surfaces as sql.ErrNoRows
func (r *ReportRepository) Get(ctx context.Context, id domain.ReportID) (*domain.Report, error) {
	const q = `
SELECT id, session_id, run_id, quality_score, overall_risk, risk_status,
       critical_actions, artifact_url, format, created_at
FROM review_reports
WHERE id=$1 LIMIT 1;
`
	return scanReport(r.db.QueryRowContext(ctx, q, id))
}

// ListBySession returns the newest reports of a session first
func (r *ReportRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, session_id, run_id, quality_score, overall_risk, risk_status,
       critical_actions, artifact_url, format, created_at
FROM review_reports
WHERE session_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2;
`
	rows, err := r.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*domain.Report, error) {
	var rep domain.Report
	if err := row.Scan(
		&rep.ID, &rep.SessionID, &rep.RunID, &rep.QualityScore, &rep.OverallRisk, &rep.RiskStatus,
		&rep.CriticalActions, &rep.ArtifactURL, &rep.Format, &rep.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &rep, nil
}
