// Package memory keeps report records in process memory. Records vanish on restart.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	domain "github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/report"
)

type ReportRepository struct {
	mu      sync.RWMutex
	reports map[domain.ReportID]domain.Report
}

func NewReportRepository() *ReportRepository {
	return &ReportRepository{reports: make(map[domain.ReportID]domain.Report)}
}

func (r *ReportRepository) Save(ctx context.Context, rep *domain.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[rep.ID] = *rep
	return nil
}

// Get mirrors the SQL repositories and returns sql.ErrNoRows for unknown ids.
func (r *ReportRepository) Get(ctx context.Context, id domain.ReportID) (*domain.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rep, nil
}

func (r *ReportRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	r.mu.RLock()
	var out []*domain.Report
	for _, rep := range r.reports {
		if rep.SessionID == sessionID {
			rep := rep
			out = append(out, &rep)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
