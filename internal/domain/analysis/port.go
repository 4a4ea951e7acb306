package analysis

import (
	"context"
	"errors"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/uploads"
)

// Analyzer port (the document analysis engine behind the pipeline)
type Analyzer interface {
	Analyze(ctx context.Context, files []uploads.WorkUnit) (Findings, error)
}

// AnalyzerFunc adapts a function to Analyzer
type AnalyzerFunc func(ctx context.Context, files []uploads.WorkUnit) (Findings, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, files []uploads.WorkUnit) (Findings, error) {
	return f(ctx, files)
}

// ErrQuotaExceeded indicates the analysis provider refused the call for quota or rate reasons (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("analysis quota exceeded")
