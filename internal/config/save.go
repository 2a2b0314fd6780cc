package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

func Validate(cfg Config) error {
	var errs []string

	hasCSV := cfg.Source.CSVPath != ""
	hasSheet := cfg.Source.SpreadsheetID != ""
	if !hasCSV && !hasSheet {
		errs = append(errs, "source.csv_path or source.spreadsheet_id is required")
	}
	if hasSheet && cfg.Source.Range == "" {
		errs = append(errs, "source.range is required when spreadsheet_id is set")
	}

	if cfg.Limits.DailyCap < 0 {
		errs = append(errs, "limits.daily_cap must be >= 0")
	}

	if !cfg.DryRun {
		if cfg.SMTP.Host == "" {
			errs = append(errs, "smtp.host is required")
		}
		if cfg.SMTP.Username == "" {
			errs = append(errs, "smtp.username is required")
		}
		if cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535 {
			errs = append(errs, "smtp.port must be 1..65535")
		}
	}

	if cfg.Archive.Enabled && cfg.Archive.IMAPHost == "" {
		errs = append(errs, "archive.imap_host is required when archive.enabled")
	}

	switch cfg.Alert.Mode {
	case "never", "error", "always":
	default:
		errs = append(errs, fmt.Sprintf("alert.mode %q must be never|error|always", cfg.Alert.Mode))
	}
	if cfg.Alert.Mode != "never" && cfg.Alert.Email == "" {
		errs = append(errs, "alert.email is required unless alert.mode is never")
	}

	for kind, file := range cfg.Templates.Files {
		if file == "" {
			errs = append(errs, fmt.Sprintf("templates.files[%s] cannot be empty", kind))
		}
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n- " + joinLines(errs))
	}
	return nil
}

func SaveAtomic(path string, cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	bak := path + ".bak"

	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}

	_ = os.Remove(bak)
	_ = os.Rename(path, bak)

	return os.Rename(tmp, path)
}

func joinLines(lines []string) string {
	out := ""
	for i, s := range lines {
		if i > 0 {
			out += "\n- "
		}
		out += s
	}
	return out
}
