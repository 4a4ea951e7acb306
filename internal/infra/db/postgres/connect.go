package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS review_reports (
  id               TEXT PRIMARY KEY,
  session_id       TEXT        NOT NULL,
  run_id           TEXT        NOT NULL,
  quality_score    INTEGER     NOT NULL,
  overall_risk     INTEGER     NOT NULL,
  risk_status      TEXT        NOT NULL,
  critical_actions INTEGER     NOT NULL,
  artifact_url     TEXT        NOT NULL,
  format           TEXT        NOT NULL,
  created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_review_reports_session ON review_reports (session_id, created_at DESC);
`

// Migrate creates the report table when it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
