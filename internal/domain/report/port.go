package report

import "context"

// Repository port for persisting and querying report records
type Repository interface {
	Save(ctx context.Context, r *Report) error
	Get(ctx context.Context, id ReportID) (*Report, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*Report, error)
}

// ArtifactStore port (where the rendered report document goes)
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
