package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFrom(t *testing.T, yml string) Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadFrom(t, "source:\n  csv_path: leads.csv\n")

	assert.Equal(t, "Contacts!A:J", cfg.Source.Range)
	assert.Equal(t, 1.5, cfg.Limits.PaceSeconds)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "[Gmail]/Sent Mail", cfg.Archive.Mailbox)
	assert.Equal(t, "error", cfg.Alert.Mode)
	assert.Equal(t, "template_cold.txt", cfg.Templates.Files["cold"])
	assert.Equal(t, 0, cfg.Limits.DailyCap)
}

func TestValidateRequiresASource(t *testing.T) {
	cfg := loadFrom(t, "dry_run: true\nalert:\n  mode: never\n")
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv_path or source.spreadsheet_id")
}

func TestValidateSMTPOnlyForRealRuns(t *testing.T) {
	yml := "source:\n  csv_path: leads.csv\nalert:\n  mode: never\n"

	dry := loadFrom(t, yml+"dry_run: true\n")
	assert.NoError(t, Validate(dry))

	real := loadFrom(t, yml)
	err := Validate(real)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp.host is required")
}

func TestValidateAlertMode(t *testing.T) {
	cfg := loadFrom(t, "source:\n  csv_path: leads.csv\ndry_run: true\nalert:\n  mode: sometimes\n")
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alert.mode")
}

func TestSaveAtomicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	cfg := loadFrom(t, "source:\n  csv_path: leads.csv\ndry_run: true\nalert:\n  mode: never\n")
	cfg.Limits.DailyCap = 7

	require.NoError(t, SaveAtomic(path, cfg))
	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, reloaded.Limits.DailyCap)

	// a second save keeps a .bak of the previous version
	cfg.Limits.DailyCap = 9
	require.NoError(t, SaveAtomic(path, cfg))
	_, err = os.Stat(path + ".bak")
	assert.NoError(t, err)
}

func TestEnsureUserConfig(t *testing.T) {
	dataDir := t.TempDir()
	defaultPath := filepath.Join(t.TempDir(), "default.yml")
	require.NoError(t, os.WriteFile(defaultPath, []byte("dry_run: true\n"), 0o644))

	userPath, err := EnsureUserConfig(dataDir, defaultPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "config.yml"), userPath)

	// user edits survive a second bootstrap
	require.NoError(t, os.WriteFile(userPath, []byte("dry_run: false\n"), 0o644))
	again, err := EnsureUserConfig(dataDir, defaultPath)
	require.NoError(t, err)
	b, err := os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, "dry_run: false\n", string(b))
}
