// internal/config/config.go
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		DataDir string `yaml:"data_dir"`
		Verbose bool   `yaml:"verbose"`
	} `yaml:"app"`

	Source struct {
		CSVPath       string `yaml:"csv_path"`
		SpreadsheetID string `yaml:"spreadsheet_id"`
		Range         string `yaml:"range"` // A1 range incl. header row, e.g. Contacts!A:J
		HasHeader     bool   `yaml:"has_header"`
		StatusColumn  string `yaml:"status_column"`  // A1 letter override, usually inferred
		SentAtColumn  string `yaml:"sent_at_column"` // A1 letter override
	} `yaml:"source"`

	Limits struct {
		DailyCap    int     `yaml:"daily_cap"`    // 0 = unlimited
		PaceSeconds float64 `yaml:"pace_seconds"` // min spacing between sends
	} `yaml:"limits"`

	Dedup struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"dedup"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		From     string `yaml:"from"`
		// Password comes from the OS keyring, never from this file.
	} `yaml:"smtp"`

	Archive struct {
		Enabled  bool   `yaml:"enabled"`
		IMAPHost string `yaml:"imap_host"`
		IMAPPort int    `yaml:"imap_port"`
		Mailbox  string `yaml:"mailbox"` // e.g. "[Gmail]/Sent Mail"
	} `yaml:"archive"`

	Templates struct {
		Dir   string            `yaml:"dir"`
		Files map[string]string `yaml:"files"` // kind -> filename
	} `yaml:"templates"`

	Resume struct {
		Dir         string            `yaml:"dir"`
		DefaultFile string            `yaml:"default_file"`
		Map         map[string]string `yaml:"map"` // resume_flag -> filename
	} `yaml:"resume"`

	LLM struct {
		Enabled bool   `yaml:"enabled"`
		Model   string `yaml:"model"`
	} `yaml:"llm"`

	Enrich struct {
		JobLinkPreview bool `yaml:"job_link_preview"`
	} `yaml:"enrich"`

	Alert struct {
		Email         string `yaml:"email"`
		Mode          string `yaml:"mode"` // never | error | always
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"alert"`

	DryRun bool `yaml:"dry_run"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Range == "" {
		cfg.Source.Range = "Contacts!A:J"
	}
	if cfg.Limits.PaceSeconds <= 0 {
		cfg.Limits.PaceSeconds = 1.5
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.Archive.IMAPPort == 0 {
		cfg.Archive.IMAPPort = 993
	}
	if cfg.Archive.Mailbox == "" {
		cfg.Archive.Mailbox = "[Gmail]/Sent Mail"
	}
	if cfg.Templates.Dir == "" {
		cfg.Templates.Dir = "templates"
	}
	if len(cfg.Templates.Files) == 0 {
		cfg.Templates.Files = map[string]string{
			"cold":   "template_cold.txt",
			"warm":   "template_warm.txt",
			"coffee": "template_coffee.txt",
			"direct": "template_direct.txt",
		}
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-2.0-flash"
	}
	if cfg.Alert.Mode == "" {
		cfg.Alert.Mode = "error"
	}
	if cfg.Alert.SubjectPrefix == "" {
		cfg.Alert.SubjectPrefix = "[Referrals Bot]"
	}
}
