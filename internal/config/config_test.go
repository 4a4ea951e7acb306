package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/pipeline"
)

func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := chdir(t)

	cfg, err := Load(filepath.Join(dir, "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 200*time.Millisecond, cfg.Tracker.TickInterval)
	assert.Equal(t, int64(10<<20), cfg.Tracker.MaxUploadBytes)
	assert.Equal(t, pipeline.DefaultPhases(), cfg.Pipeline.Phases)
	assert.Equal(t, 10, cfg.Pipeline.StepsPerPhase)
	assert.Equal(t, 150*time.Millisecond, cfg.Pipeline.StepInterval)
	assert.Equal(t, "canned", cfg.Analyzer.Kind)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
tracker:
  tickInterval: 50ms
pipeline:
  phases: [scan, score]
  weights: [1, 3]
  stepsPerPhase: 4
analyzer:
  kind: openai
`), 0o600))
	t.Setenv("PORT", "9100")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.Analyzer.APIKey)
	assert.Equal(t, 50*time.Millisecond, cfg.Tracker.TickInterval)

	opts := cfg.WorkflowOptions()
	assert.Equal(t, []string{"scan", "score"}, opts.Phases)
	assert.Equal(t, []float64{1, 3}, opts.Pipeline.Weights)
	assert.Equal(t, 4, opts.Pipeline.StepsPerPhase)
	assert.Equal(t, 50*time.Millisecond, opts.Tracker.TickInterval)
}

func TestDotEnvFillsSecrets(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MINIO_SECRET_KEY=from-dotenv\n"), 0o600))
	t.Setenv("MINIO_SECRET_KEY", "")
	os.Unsetenv("MINIO_SECRET_KEY")

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Minio.SecretKey)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"bad port":           func(c *Config) { c.Server.Port = 0 },
		"no phases":          func(c *Config) { c.Pipeline.Phases = nil },
		"weights mismatch":   func(c *Config) { c.Pipeline.Weights = []float64{1} },
		"zero weight":        func(c *Config) { c.Pipeline.Weights = make([]float64, len(c.Pipeline.Phases)) },
		"openai without key": func(c *Config) { c.Analyzer.Kind = "openai" },
		"unknown store":      func(c *Config) { c.Report.Store = "s3" },
		"mysql without host": func(c *Config) { c.Report.Repository = "mysql" },
		"bad log level":      func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestDSNs(t *testing.T) {
	c := Default()
	c.Database.Host, c.Database.User, c.Database.Password, c.Database.Name = "db", "u", "p", "reviews"
	assert.Equal(t, "u:p@tcp(db:3306)/reviews?parseTime=true&charset=utf8mb4&loc=UTC", c.MySQLDSN())
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=reviews sslmode=disable", c.PostgresDSN())
	c.Database.Port = 6543
	assert.Equal(t, "host=db port=6543 user=u password=p dbname=reviews sslmode=disable", c.PostgresDSN())
}

func TestDatabasePortFollowsRepository(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want int
	}{
		{"postgres", "report:\n  repository: postgres\ndatabase:\n  host: db\n", 5432},
		{"mysql", "report:\n  repository: mysql\ndatabase:\n  host: db\n", 3306},
		{"explicit port", "report:\n  repository: postgres\ndatabase:\n  host: db\n  port: 15432\n", 15432},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := chdir(t)
			path := filepath.Join(dir, "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o600))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.Database.Port)
		})
	}
}
