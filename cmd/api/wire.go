package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/reports"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/config"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/report"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/ai/canned"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/ai/openai"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/db/memory"
	mysqlp "github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/db/mysql"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/db/postgres"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/storage"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/middleware"
)

// deps holds the adapters chosen by configuration.
type deps struct {
	analyzer analysis.Analyzer
	reports  *reports.Service
	checks   map[string]middleware.HealthChecker
	db       *sql.DB
}

func (d *deps) Close() {
	if d.db != nil {
		d.db.Close()
	}
}

func wire(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*deps, error) {
	d := &deps{checks: map[string]middleware.HealthChecker{}}

	switch cfg.Analyzer.Kind {
	case "openai":
		c := openai.NewClient(cfg.Analyzer.APIKey, cfg.Analyzer.Model, cfg.Analyzer.BaseURL)
		c.MaxTokens = cfg.Analyzer.MaxTokens
		d.analyzer = c
	default:
		d.analyzer = &canned.Analyzer{Delay: cfg.Analyzer.Delay}
	}

	repo, err := d.repository(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	svc := &reports.Service{Repo: repo, Clock: application.SystemClock{}, Log: log}

	switch cfg.Report.Store {
	case "local":
		dir, err := storage.NewDir(cfg.Report.LocalDir)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("report dir: %w", err)
		}
		svc.Artifacts = dir
		d.checks["storage"] = dir
	case "minio":
		store, err := storage.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("minio init error: %w", err)
		}
		svc.Artifacts = store
		d.checks["storage"] = store
	}
	d.reports = svc
	return d, nil
}

func (d *deps) repository(ctx context.Context, cfg *config.Config) (report.Repository, error) {
	switch cfg.Report.Repository {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect error: %w", err)
		}
		d.db = db
		if err := mysqlp.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("mysql migrate: %w", err)
		}
		d.checks["database"] = &middleware.DatabaseHealthChecker{DB: db}
		return mysqlp.NewReportRepository(db), nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect error: %w", err)
		}
		d.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		d.checks["database"] = &middleware.DatabaseHealthChecker{DB: db}
		return postgres.NewReportRepository(db), nil
	default:
		return memory.NewReportRepository(), nil
	}
}
