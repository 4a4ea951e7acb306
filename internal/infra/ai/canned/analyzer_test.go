package canned

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeReturnsValidFindings(t *testing.T) {
	f, err := New().Analyze(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, f.Validate())
	assert.Equal(t, 87, f.Score)
	assert.Len(t, f.Missing, 7)
	assert.Len(t, f.Inconsistencies, 4)
	assert.Len(t, f.Checks, 5)
}

func TestAnalyzeReturnsFreshCopies(t *testing.T) {
	a := Findings()
	a.Missing[0].Field = "changed"
	assert.Equal(t, "Budget Variance Analysis", Findings().Missing[0].Field)
}

func TestAnalyzeHonoursContext(t *testing.T) {
	a := &Analyzer{Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Analyze(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
