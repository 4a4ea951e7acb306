package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/aggregate"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/events"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/reports"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/workflow"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/config"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/risk"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/uploads"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/ai/canned"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/ai/openai"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/db/memory"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/storage"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/logging"
)

type runOptions struct {
	configPath string
	reportDir  string
	timeout    time.Duration
	quiet      bool
	verbose    bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run FILE...",
		Short: "Upload and analyze report files",
		Long: `Submit the given files, wait for every upload to settle, run the analysis
phases over the completed uploads and print the dashboard.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return runReview(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", config.Path(), "config file")
	cmd.Flags().StringVar(&opts.reportDir, "report-dir", "", "write the JSON report into this directory")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "give up after this long")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "only print the dashboard")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level to stderr")
	return cmd
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func runReview(ctx context.Context, out, errOut io.Writer, opts runOptions, paths []string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	log, _, err := logging.New(logging.Options{Level: level, Format: "text"})
	if err != nil {
		return err
	}
	log.SetOutput(errOut)

	var analyzer analysis.Analyzer = &canned.Analyzer{Delay: cfg.Analyzer.Delay}
	if cfg.Analyzer.Kind == "openai" {
		c := openai.NewClient(cfg.Analyzer.APIKey, cfg.Analyzer.Model, cfg.Analyzer.BaseURL)
		c.MaxTokens = cfg.Analyzer.MaxTokens
		analyzer = c
	}

	var svc *reports.Service
	if opts.reportDir != "" {
		dir, err := storage.NewDir(opts.reportDir)
		if err != nil {
			return fmt.Errorf("failed to prepare report dir: %w", err)
		}
		svc = &reports.Service{Repo: memory.NewReportRepository(), Artifacts: dir, Log: log}
	}

	var files []uploads.Metadata
	for _, p := range paths {
		meta, err := statFile(p)
		if err != nil {
			fmt.Fprintf(out, "skip %s: %v\n", p, err)
			continue
		}
		files = append(files, meta)
	}
	if len(files) == 0 {
		return fmt.Errorf("no usable files among %d given", len(paths))
	}

	s := workflow.NewSession(uuid.NewString(), analyzer, svc, cfg.WorkflowOptions(), log)
	defer s.Close()

	subID, ch := s.Subscribe(1024)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range ch {
			if !opts.quiet {
				printEvent(out, ev)
			}
		}
	}()
	stopPrinting := func() {
		s.Unsubscribe(subID)
		<-printed
	}
	defer stopPrinting()

	for _, meta := range files {
		if _, err := s.Submit(meta); err != nil {
			return err
		}
	}

	if err := s.WaitUploads(ctx); err != nil {
		return err
	}
	if _, err := s.Analyze(ctx); err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	dash, err := s.Dashboard()
	if err != nil {
		return err
	}

	var rep string
	if svc != nil {
		r, err := s.GenerateReport(ctx)
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		rep = r.ArtifactURL
	}

	stopPrinting()
	printDashboard(out, dash)
	if rep != "" {
		fmt.Fprintf(out, "\nReport: %s\n", rep)
	}
	return nil
}

// statFile builds upload metadata from the file on disk. Unknown extensions
// are rejected here; the tracker itself accepts any type.
func statFile(path string) (uploads.Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return uploads.Metadata{}, err
	}
	if info.IsDir() {
		return uploads.Metadata{}, fmt.Errorf("is a directory")
	}
	mt, ok := uploads.MediaTypeForExtension(filepath.Ext(path))
	if !ok {
		return uploads.Metadata{}, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	return uploads.Metadata{Name: filepath.Base(path), SizeBytes: info.Size(), MediaType: mt}, nil
}

func printEvent(out io.Writer, ev events.Event) {
	switch ev.Kind {
	case events.UnitSubmitted:
		fmt.Fprintf(out, "upload  %s (%s)\n", ev.Unit.Name, humanize.IBytes(uint64(ev.Unit.SizeBytes)))
	case events.UnitCompleted:
		fmt.Fprintf(out, "done    %s\n", ev.Unit.Name)
	case events.UnitFailed:
		fmt.Fprintf(out, "failed  %s: %s\n", ev.Unit.Name, ev.Unit.FailureReason)
	case events.RunPhase:
		fmt.Fprintf(out, "[%3.0f%%] %s\n", ev.Run.Progress, ev.Run.CurrentPhase)
	case events.RunDone:
		fmt.Fprintf(out, "[100%%] analysis complete\n")
	case events.RunFailed, events.RunCancelled:
		fmt.Fprintf(out, "analysis %s: %s\n", ev.Run.Status, ev.Error)
	}
}

func printDashboard(out io.Writer, d aggregate.Dashboard) {
	fmt.Fprintf(out, "\nQuality score:    %d%% (%s)\n", d.QualityScore, d.QualityStatus)
	fmt.Fprintf(out, "Overall risk:     %d%% (%s)\n", d.OverallRisk, d.RiskStatus)
	fmt.Fprintf(out, "Critical actions: %d\n", d.CriticalActions)
	fmt.Fprintf(out, "Missing items:    %d\n", d.MissingCount)
	fmt.Fprintf(out, "Inconsistencies:  %d (%d severe)\n", d.InconsistencyCount, d.SevereCount)
	fmt.Fprintln(out, "\nRisk by category:")
	for _, c := range risk.Categories {
		a := d.Risk.Get(c)
		fmt.Fprintf(out, "  %-14s %3d%%  %-6s %s\n", title(string(c)), a.Level, a.Status, a.Trend)
	}
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
