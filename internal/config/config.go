package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/pipeline"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/tracker"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/workflow"
)

type Config struct {
	Server struct {
		Port        int               `yaml:"port" validate:"gt=0,lte=65535"`
		CORSOrigins []string          `yaml:"corsOrigins"`
		APIKeys     map[string]string `yaml:"apiKeys"`
		RateLimit   struct {
			Capacity   int `yaml:"capacity" validate:"gte=0"`
			RefillRate int `yaml:"refillRate" validate:"gte=0"`
		} `yaml:"rateLimit"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Log struct {
		Level      string `yaml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
		Format     string `yaml:"format" validate:"oneof=json text"`
		File       string `yaml:"file"`
		Stdout     bool   `yaml:"stdout"`
		MaxSizeMB  int    `yaml:"maxSizeMB" validate:"gte=0"`
		MaxBackups int    `yaml:"maxBackups" validate:"gte=0"`
		MaxAgeDays int    `yaml:"maxAgeDays" validate:"gte=0"`
	} `yaml:"log"`

	Tracker struct {
		TickInterval   time.Duration `yaml:"tickInterval"`
		MaxIncrement   float64       `yaml:"maxIncrement" validate:"gt=0,lte=100"`
		MaxDuration    time.Duration `yaml:"maxDuration"`
		MaxUploadBytes int64         `yaml:"maxUploadBytes" validate:"gte=0"`
	} `yaml:"tracker"`

	Pipeline struct {
		Phases        []string      `yaml:"phases" validate:"min=1,dive,required"`
		StepsPerPhase int           `yaml:"stepsPerPhase" validate:"gt=0"`
		StepInterval  time.Duration `yaml:"stepInterval"`
		Weights       []float64     `yaml:"weights" validate:"dive,gt=0"`
		MaxDuration   time.Duration `yaml:"maxDuration"`
	} `yaml:"pipeline"`

	Sessions struct {
		Max int           `yaml:"max" validate:"gte=0"`
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"sessions"`

	Analyzer struct {
		Kind      string        `yaml:"kind" validate:"oneof=canned openai"`
		Model     string        `yaml:"model"`
		APIKey    string        `yaml:"apiKey"`
		BaseURL   string        `yaml:"baseURL"`
		MaxTokens int           `yaml:"maxTokens" validate:"gte=0"`
		Delay     time.Duration `yaml:"delay"`
	} `yaml:"analyzer"`

	Report struct {
		Store      string `yaml:"store" validate:"oneof=none local minio"`
		LocalDir   string `yaml:"localDir"`
		Repository string `yaml:"repository" validate:"oneof=memory mysql postgres"`
	} `yaml:"report"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`
}

// Default returns the configuration used for every value the file leaves out.
func Default() *Config {
	var c Config
	c.Server.Port = 8080
	c.Server.CORSOrigins = []string{"*"}
	c.Server.RateLimit.Capacity = 60
	c.Server.RateLimit.RefillRate = 1
	c.Server.ShutdownTimeout = 15 * time.Second

	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 28

	c.Tracker.TickInterval = 200 * time.Millisecond
	c.Tracker.MaxIncrement = 20
	c.Tracker.MaxUploadBytes = workflow.DefaultMaxUploadBytes

	c.Pipeline.Phases = pipeline.DefaultPhases()
	c.Pipeline.StepsPerPhase = 10
	c.Pipeline.StepInterval = 150 * time.Millisecond

	c.Sessions.Max = 1000
	c.Sessions.TTL = 2 * time.Hour

	c.Analyzer.Kind = "canned"
	c.Analyzer.Model = "gpt-4o-mini"
	c.Analyzer.MaxTokens = 4096

	c.Report.Store = "none"
	c.Report.LocalDir = "reports"
	c.Report.Repository = "memory"

	c.Database.SSLMode = "disable"
	c.Minio.BucketName = "review-reports"
	return &c
}

var validate = validator.New()

// Load reads the YAML file at path over the defaults. A missing file is not
// an error. Values from .env and the environment take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = defaultPort(cfg.Report.Repository)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path is the config file location, CONFIG_PATH or config.yaml.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Analyzer.APIKey, "OPENAI_API_KEY")
	setString(&c.Database.Password, "DATABASE_PASSWORD")
	setString(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks field constraints and the settings that depend on each other.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if n := len(c.Pipeline.Weights); n > 0 && n != len(c.Pipeline.Phases) {
		return fmt.Errorf("invalid config: pipeline has %d phases but %d weights", len(c.Pipeline.Phases), n)
	}
	if c.Analyzer.Kind == "openai" && c.Analyzer.APIKey == "" {
		return errors.New("invalid config: analyzer openai needs an API key (OPENAI_API_KEY)")
	}
	if c.Report.Store == "local" && c.Report.LocalDir == "" {
		return errors.New("invalid config: report store local needs localDir")
	}
	if c.Report.Store == "minio" && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		return errors.New("invalid config: report store minio needs minio endpoint and bucketName")
	}
	if c.Report.Repository != "memory" && c.Database.Host == "" {
		return fmt.Errorf("invalid config: report repository %s needs database host", c.Report.Repository)
	}
	return nil
}

// defaultPort is the server port of the repository's database when none is configured.
func defaultPort(repository string) int {
	if repository == "postgres" {
		return 5432
	}
	return 3306
}

func (c *Config) port(repository string) int {
	if c.Database.Port != 0 {
		return c.Database.Port
	}
	return defaultPort(repository)
}

// MySQLDSN builds the go-sql-driver DSN.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.port("mysql"),
		c.Database.Name,
	)
}

// PostgresDSN builds the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.port("postgres"),
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// WorkflowOptions converts the tracker and pipeline sections for new sessions.
func (c *Config) WorkflowOptions() workflow.Options {
	return workflow.Options{
		Tracker: tracker.Options{
			TickInterval: c.Tracker.TickInterval,
			MaxIncrement: c.Tracker.MaxIncrement,
			MaxDuration:  c.Tracker.MaxDuration,
		},
		Pipeline: pipeline.Options{
			StepsPerPhase: c.Pipeline.StepsPerPhase,
			StepInterval:  c.Pipeline.StepInterval,
			Weights:       append([]float64(nil), c.Pipeline.Weights...),
			MaxDuration:   c.Pipeline.MaxDuration,
		},
		Phases:         append([]string(nil), c.Pipeline.Phases...),
		MaxUploadBytes: c.Tracker.MaxUploadBytes,
	}
}
