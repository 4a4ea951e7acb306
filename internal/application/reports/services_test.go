package reports

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/aggregate"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/ai/canned"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/db/memory"
)

type fakeStore struct {
	key         string
	data        []byte
	contentType string
	err         error
}

func (f *fakeStore) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.key, f.data, f.contentType = key, data, contentType
	return "mem://" + key, nil
}

func command(t *testing.T) GenerateCommand {
	t.Helper()
	res, err := aggregate.Build(canned.Findings())
	require.NoError(t, err)
	rd, err := aggregate.DeriveRisk(res)
	require.NoError(t, err)
	dash, err := aggregate.BuildDashboard(res, rd)
	require.NoError(t, err)
	return GenerateCommand{SessionID: "s1", RunID: "run-1", Result: res, Risk: rd, Dashboard: dash}
}

func newService(store *fakeStore) (*Service, *memory.ReportRepository) {
	log, _ := test.NewNullLogger()
	repo := memory.NewReportRepository()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &Service{
		Repo:  repo,
		Clock: application.ClockFunc(func() time.Time { return now }),
		Log:   log,
	}
	if store != nil {
		svc.Artifacts = store
	}
	return svc, repo
}

func TestGenerateStoresArtifactAndRecord(t *testing.T) {
	store := &fakeStore{}
	svc, repo := newService(store)
	cmd := command(t)

	rep, err := svc.Generate(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 87, rep.QualityScore)
	assert.Equal(t, 36, rep.OverallRisk)
	assert.Equal(t, 2, rep.CriticalActions)
	assert.Equal(t, FormatJSON, rep.Format)
	assert.Equal(t, "mem://"+store.key, rep.ArtifactURL)
	assert.Equal(t, "application/json", store.contentType)

	var doc Document
	require.NoError(t, json.Unmarshal(store.data, &doc))
	assert.Equal(t, rep.ID, doc.ReportID)
	assert.Equal(t, cmd.Result, doc.Analysis)
	assert.Equal(t, cmd.Risk, doc.Risk)

	saved, err := repo.Get(context.Background(), rep.ID)
	require.NoError(t, err)
	assert.Equal(t, rep, saved)

	list, err := svc.List(context.Background(), "s1", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGenerateWithoutArtifactStore(t *testing.T) {
	svc, _ := newService(nil)
	rep, err := svc.Generate(context.Background(), command(t))
	require.NoError(t, err)
	assert.Empty(t, rep.ArtifactURL)
}

func TestGenerateArtifactFailure(t *testing.T) {
	boom := errors.New("bucket gone")
	svc, repo := newService(&fakeStore{err: boom})

	_, err := svc.Generate(context.Background(), command(t))
	assert.ErrorIs(t, err, boom)

	list, err := repo.ListBySession(context.Background(), "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGenerateWithoutRepository(t *testing.T) {
	svc := &Service{}
	_, err := svc.Generate(context.Background(), command(t))
	assert.ErrorIs(t, err, ErrNoRepository)
}
