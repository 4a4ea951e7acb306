package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/aggregate"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
	domain "github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/report"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/risk"
)

// FormatJSON is the only document format produced today.
const FormatJSON = "json"

// ErrNoRepository is returned when the service was built without a Repository.
var ErrNoRepository = errors.New("report repository not configured")

// Service implements the report generation use cases.
// It is safe for concurrent use as long as Repo and Artifacts are.
type Service struct {
	Repo domain.Repository
	// Artifacts is optional; without it only the record is kept.
	Artifacts domain.ArtifactStore
	Clock     application.Clock
	Log       logrus.FieldLogger
}

type GenerateCommand struct {
	SessionID string
	RunID     analysis.RunID
	Result    analysis.Result
	Risk      risk.Data
	Dashboard aggregate.Dashboard
}

// Document is the rendered report body stored as the artifact.
type Document struct {
	ReportID    domain.ReportID     `json:"report_id"`
	SessionID   string              `json:"session_id"`
	RunID       analysis.RunID      `json:"run_id,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
	Dashboard   aggregate.Dashboard `json:"dashboard"`
	Analysis    analysis.Result     `json:"analysis"`
	Risk        risk.Data           `json:"risk"`
}

// Generate renders the report, stores the artifact and records it.
// The inputs are only read; a failure leaves them untouched.
func (s *Service) Generate(ctx context.Context, cmd GenerateCommand) (*domain.Report, error) {
	if s.Repo == nil {
		return nil, ErrNoRepository
	}
	now := s.now()
	id := domain.ReportID(uuid.NewString())

	doc := Document{
		ReportID:    id,
		SessionID:   cmd.SessionID,
		RunID:       cmd.RunID,
		GeneratedAt: now,
		Dashboard:   cmd.Dashboard,
		Analysis:    cmd.Result,
		Risk:        cmd.Risk,
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	var url string
	if s.Artifacts != nil {
		key := fmt.Sprintf("%s/%s.%s", cmd.SessionID, id, FormatJSON)
		url, err = s.Artifacts.Put(ctx, key, body, "application/json")
		if err != nil {
			return nil, fmt.Errorf("store report artifact: %w", err)
		}
	}

	rep := &domain.Report{
		ID:              id,
		SessionID:       cmd.SessionID,
		RunID:           string(cmd.RunID),
		QualityScore:    cmd.Dashboard.QualityScore,
		OverallRisk:     cmd.Dashboard.OverallRisk,
		RiskStatus:      cmd.Dashboard.RiskStatus,
		CriticalActions: cmd.Dashboard.CriticalActions,
		ArtifactURL:     url,
		Format:          FormatJSON,
		CreatedAt:       now,
	}
	if err := s.Repo.Save(ctx, rep); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}

	s.logger().WithFields(logrus.Fields{
		"session": cmd.SessionID,
		"report":  id,
		"bytes":   len(body),
	}).Info("report generated")
	return rep, nil
}

// List returns the latest reports of a session, newest first.
func (s *Service) List(ctx context.Context, sessionID string, limit int) ([]*domain.Report, error) {
	if s.Repo == nil {
		return nil, ErrNoRepository
	}
	return s.Repo.ListBySession(ctx, sessionID, limit)
}

// Get returns one report record.
func (s *Service) Get(ctx context.Context, id domain.ReportID) (*domain.Report, error) {
	if s.Repo == nil {
		return nil, ErrNoRepository
	}
	return s.Repo.Get(ctx, id)
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
