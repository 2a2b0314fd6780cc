package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"referrals-engine/internal/alerts"
	"referrals-engine/internal/config"
	"referrals-engine/internal/dedup"
	"referrals-engine/internal/enrich"
	"referrals-engine/internal/mailer"
	"referrals-engine/internal/pipeline"
	"referrals-engine/internal/render"
	"referrals-engine/internal/secrets"
	"referrals-engine/internal/source"
)

var (
	flagDryRun bool
	flagLimit  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the contact list once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "render and record, never dispatch")
	runCmd.Flags().IntVar(&flagLimit, "limit", -1, "override the configured daily cap")
}

func loadConfig() (config.Config, string, error) {
	dataDir := os.Getenv("REFERRALS_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return config.Config{}, "", err
	}

	path := cfgPath
	if path == "" {
		var err error
		path, err = config.EnsureUserConfig(dataDir, filepath.Join("config", "config.yml"))
		if err != nil {
			return config.Config{}, "", fmt.Errorf("config bootstrap: %w", err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, "", fmt.Errorf("config load (%s): %w", path, err)
	}
	if cfg.App.DataDir == "" {
		cfg.App.DataDir = dataDir
	}
	if flagDryRun {
		cfg.DryRun = true
	}
	if flagLimit >= 0 {
		cfg.Limits.DailyCap = flagLimit
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, "", err
	}
	return cfg, path, nil
}

func buildSource(cfg config.Config) source.Source {
	if cfg.Source.SpreadsheetID != "" {
		return source.NewSheetSource(
			authenticatedSheetsClient(),
			cfg.Source.SpreadsheetID, cfg.Source.Range,
			cfg.Source.StatusColumn, cfg.Source.SentAtColumn,
		)
	}
	return source.NewFileSource(cfg.Source.CSVPath)
}

// authenticatedSheetsClient returns the opaque pre-authorized HTTP client the
// sheet adapter runs through. Token plumbing stays outside the pipeline: a
// bearer token in the environment is attached as-is.
func authenticatedSheetsClient() *http.Client {
	token := os.Getenv("SHEETS_ACCESS_TOKEN")
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: &bearerTransport{token: token, base: http.DefaultTransport},
	}
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.base.RoundTrip(req)
}

func buildSender(cfg config.Config, log *zap.Logger) (*mailer.SMTPSender, error) {
	pw, err := secrets.GetSMTPPassword(secrets.SMTPKeyringAccount(cfg))
	if err != nil {
		return nil, err
	}

	var archive *mailer.SentArchive
	if cfg.Archive.Enabled {
		archive = &mailer.SentArchive{
			Addr:     fmt.Sprintf("%s:%d", cfg.Archive.IMAPHost, cfg.Archive.IMAPPort),
			Username: cfg.SMTP.Username,
			Password: pw,
			Mailbox:  cfg.Archive.Mailbox,
		}
	}

	return &mailer.SMTPSender{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: pw,
		From:     cfg.SMTP.From,
		Archive:  archive,
		Log:      log,
	}, nil
}

func runOnce(parent context.Context) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.With(zap.String("config", path))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := dedup.AcquireRunLock(cfg.App.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	var dedupLog pipeline.DedupLog
	if cfg.Dedup.Enabled {
		store, err := dedup.Open(filepath.Join(cfg.App.DataDir, "sent_log.db"))
		if err != nil {
			return fmt.Errorf("open sent log: %w", err)
		}
		defer store.Close()
		dedupLog = store
	}

	tmplRenderer := &render.TemplateRenderer{Dir: cfg.Templates.Dir, Files: cfg.Templates.Files}

	var llmRenderer render.Renderer
	if cfg.LLM.Enabled {
		client, err := render.NewLLMClient(ctx, os.Getenv("GEMINI_API_KEY"))
		if err != nil {
			log.Warn("llm disabled for this run", zap.Error(err))
		} else {
			llm := &render.LLMRenderer{
				Client:   client,
				Model:    cfg.LLM.Model,
				Fallback: tmplRenderer,
				Log:      log,
			}
			if cfg.Enrich.JobLinkPreview {
				llm.Preview = enrich.NewJobLinkPreviewer().Title
			}
			llmRenderer = llm
		}
	}

	var sender pipeline.Sender
	smtpSender, err := buildSender(cfg, log)
	if err != nil {
		if !cfg.DryRun {
			return err
		}
		log.Warn("no SMTP credentials; dry run proceeds without a sender", zap.Error(err))
	} else {
		sender = smtpSender
	}

	runner := &pipeline.Runner{
		Source:   buildSource(cfg),
		Dedup:    dedupLog,
		Template: tmplRenderer,
		LLM:      llmRenderer,
		Sender:   sender,
		Resumes: &mailer.ResumeResolver{
			Dir:         cfg.Resume.Dir,
			DefaultFile: cfg.Resume.DefaultFile,
			Map:         cfg.Resume.Map,
		},
		DailyCap: cfg.Limits.DailyCap,
		DryRun:   cfg.DryRun,
		Pacer:    rate.NewLimiter(rate.Every(time.Duration(cfg.Limits.PaceSeconds*float64(time.Second))), 1),
		Log:      log,
	}

	notifier := &alerts.Notifier{
		Email:         cfg.Alert.Email,
		Mode:          cfg.Alert.Mode,
		SubjectPrefix: cfg.Alert.SubjectPrefix,
		Log:           log,
	}
	if smtpSender != nil {
		notifier.Sender = smtpSender
	}

	ledger, runErr := runner.Run(ctx)
	if runErr != nil {
		log.Error("run aborted", zap.Error(runErr))
		notifier.Notify(context.WithoutCancel(ctx), ledger, fatalSuffix(runErr))
		return runErr
	}

	notifier.Notify(ctx, ledger, "")
	fmt.Println(ledger.Summary())
	if ledger.Failed() {
		return fmt.Errorf("run finished with %d row errors (%d reconciliation hazards)",
			ledger.Errors(), ledger.Hazards())
	}
	return nil
}

func fatalSuffix(err error) string {
	switch {
	case errors.Is(err, source.ErrMissingStatusColumn):
		return "missing status column"
	case errors.Is(err, source.ErrSourceUnavailable):
		return "contacts load failure"
	default:
		return "fatal error"
	}
}
