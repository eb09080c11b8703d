package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/google/subcommands"

	"github.com/treeline-app/treeline/internal/backup"
	"github.com/treeline-app/treeline/internal/config"
	"github.com/treeline-app/treeline/internal/encryption"
	"github.com/treeline-app/treeline/internal/eventlog"
	"github.com/treeline-app/treeline/internal/repository"
)

// app carries the process-wide configuration shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

// session is an opened database plus the facts commands need about it.
type session struct {
	repo      *repository.Repository
	settings  *config.Settings
	dbPath    string
	demo      bool
	encrypted bool
}

func (s *session) Close() {
	if s.repo != nil {
		_ = s.repo.Close()
	}
}

func (a *app) loadSettings() (*config.Settings, error) {
	return config.LoadSettings(a.cfg.SettingsPath())
}

// demoMode resolves the active mode: the environment override wins,
// then the settings file.
func (a *app) demoMode(settings *config.Settings) bool {
	if value, ok := a.cfg.DemoModeOverride(); ok {
		return value
	}
	return settings.DemoMode()
}

func (a *app) encryptionService(dbPath string) *encryption.Service {
	return encryption.NewService(dbPath, a.cfg.EncryptionSidecarPath(), a.logger)
}

func (a *app) backupService(dbPath string) *backup.Service {
	return backup.NewService(dbPath, a.cfg.BackupsDir(), a.logger)
}

// activeBackupService resolves the active database (demo or main) and
// returns a backup service for it.
func (a *app) activeBackupService() (*backup.Service, error) {
	settings, err := a.loadSettings()
	if err != nil {
		return nil, err
	}
	return a.backupService(a.cfg.DBPath(a.demoMode(settings))), nil
}

// open loads settings, resolves the active database and its encryption
// key, and opens the repository. The caller owns the session.
func (a *app) open() (*session, error) {
	settings, err := a.loadSettings()
	if err != nil {
		return nil, err
	}
	demo := a.demoMode(settings)
	dbPath := a.cfg.DBPath(demo)

	s := &session{settings: settings, dbPath: dbPath, demo: demo}
	if !demo {
		key, encrypted, err := a.resolveKey(dbPath)
		if err != nil {
			return nil, err
		}
		s.encrypted = encrypted
		s.repo, err = repository.Open(dbPath, key)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	// The demo database is always plaintext.
	s.repo, err = repository.Open(dbPath, "")
	if err != nil {
		return nil, err
	}
	return s, nil
}

// resolveKey produces the hex key for an encrypted database: a
// pre-derived key from the environment if present, otherwise derivation
// from the password and the sidecar parameters.
func (a *app) resolveKey(dbPath string) (key string, encrypted bool, err error) {
	enc := a.encryptionService(dbPath)
	encrypted, err = enc.IsEncrypted()
	if err != nil {
		return "", false, err
	}
	if !encrypted {
		return "", false, nil
	}
	if a.cfg.DBKey != "" {
		return a.cfg.DBKey, true, nil
	}
	key, err = enc.Key(a.cfg.DBPassword)
	if err != nil {
		return "", true, err
	}
	return key, true, nil
}

// record appends a command event to the event log. Logging never
// breaks a command; failures are demoted to debug output.
func (a *app) record(command string, cmdErr error) {
	log, err := eventlog.Open(a.cfg.LogsPath(), "cli", version, runtime.GOOS)
	if err != nil {
		a.logger.Debug("event log unavailable", "error", err)
		return
	}
	defer log.Close()

	ctx := &eventlog.Context{Command: command}
	if cmdErr != nil {
		err = log.RecordError("command_failed", cmdErr, ctx)
	} else {
		err = log.Record("command_executed", ctx)
	}
	if err != nil {
		a.logger.Debug("event log write failed", "error", err)
	}
}

// fail prints an error and records the failed command.
func (a *app) fail(command string, err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, "Error:", err)
	a.record(command, err)
	return subcommands.ExitFailure
}

// done records a successful command.
func (a *app) done(command string) subcommands.ExitStatus {
	a.record(command, nil)
	return subcommands.ExitSuccess
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
