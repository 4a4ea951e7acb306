package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
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
  id               VARCHAR(64)  NOT NULL PRIMARY KEY,
  session_id       VARCHAR(64)  NOT NULL,
  run_id           VARCHAR(64)  NOT NULL,
  quality_score    INT          NOT NULL,
  overall_risk     INT          NOT NULL,
  risk_status      VARCHAR(16)  NOT NULL,
  critical_actions INT          NOT NULL,
  artifact_url     VARCHAR(1024) NOT NULL,
  format           VARCHAR(16)  NOT NULL,
  created_at       DATETIME(3)  NOT NULL,
  INDEX idx_review_reports_session (session_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`

// Migrate creates the report table when it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
