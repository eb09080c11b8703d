package encryption

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/treeline-app/treeline/internal/database"
	"github.com/treeline-app/treeline/internal/domain"
)

// Service turns database encryption on and off. Both directions run
// the same shape: safety backup, export to a Parquet staging
// directory, import into a fresh target file, atomic replace. The
// Parquet intermediate carries schema and data across the boundary
// without ever holding both forms open at once.
type Service struct {
	dbPath      string
	sidecarPath string
	logger      *slog.Logger
}

// NewService creates an encryption service for one database file.
func NewService(dbPath, sidecarPath string, logger *slog.Logger) *Service {
	return &Service{dbPath: dbPath, sidecarPath: sidecarPath, logger: logger}
}

// IsEncrypted reports whether the sidecar marks the database
// encrypted.
func (s *Service) IsEncrypted() (bool, error) {
	sc, err := LoadSidecar(s.sidecarPath)
	if err != nil {
		return false, err
	}
	return sc != nil && sc.Encrypted, nil
}

// Key derives the connection key for the current database, or returns
// empty when the database is not encrypted.
func (s *Service) Key(password string) (string, error) {
	sc, err := LoadSidecar(s.sidecarPath)
	if err != nil {
		return "", err
	}
	if sc == nil || !sc.Encrypted {
		return "", nil
	}
	if password == "" {
		return "", domain.Errorf(domain.KindEncryption, "database is encrypted; a password is required")
	}
	return sc.HexKey(password)
}

// Encrypt converts a plaintext database to an encrypted one. backup,
// when non-nil, is invoked first to create a safety backup.
func (s *Service) Encrypt(password string, backup func() error) error {
	if password == "" {
		return domain.Errorf(domain.KindValidation, "password cannot be empty")
	}
	encrypted, err := s.IsEncrypted()
	if err != nil {
		return err
	}
	if encrypted {
		return domain.Errorf(domain.KindEncryption, "database is already encrypted")
	}
	if backup != nil {
		if err := backup(); err != nil {
			return fmt.Errorf("creating safety backup: %w", err)
		}
	}

	sc, err := NewSidecar()
	if err != nil {
		return err
	}
	hexKey, err := sc.HexKey(password)
	if err != nil {
		return err
	}

	if err := s.convert("", hexKey); err != nil {
		return err
	}
	if err := sc.Save(s.sidecarPath); err != nil {
		return err
	}
	s.logger.Info("database encrypted", "path", s.dbPath)
	return nil
}

// Decrypt converts an encrypted database back to plaintext. The
// password is verified against the file before anything is touched.
func (s *Service) Decrypt(password string, backup func() error) error {
	sc, err := LoadSidecar(s.sidecarPath)
	if err != nil {
		return err
	}
	if sc == nil || !sc.Encrypted {
		return domain.Errorf(domain.KindEncryption, "database is not encrypted")
	}
	hexKey, err := sc.HexKey(password)
	if err != nil {
		return err
	}
	if err := database.VerifyEncrypted(s.dbPath, hexKey); err != nil {
		return domain.Errorf(domain.KindEncryption, "invalid password")
	}
	if backup != nil {
		if err := backup(); err != nil {
			return fmt.Errorf("creating safety backup: %w", err)
		}
	}

	if err := s.convert(hexKey, ""); err != nil {
		return err
	}
	if err := os.Remove(s.sidecarPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing encryption sidecar: %w", err)
	}
	s.logger.Info("database decrypted", "path", s.dbPath)
	return nil
}

// convert copies the database through a Parquet staging directory
// from one key to another (empty key means plaintext) and atomically
// replaces the original file.
func (s *Service) convert(sourceKey, targetKey string) error {
	stageDir, err := os.MkdirTemp(filepath.Dir(s.dbPath), "treeline-stage-*")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(stageDir)

	src, err := database.Open(s.dbPath, sourceKey)
	if err != nil {
		return err
	}
	_, err = src.Exec(fmt.Sprintf("EXPORT DATABASE '%s' (FORMAT PARQUET)", sqlQuote(stageDir)))
	src.Close()
	if err != nil {
		return fmt.Errorf("exporting database: %w", err)
	}

	tmpPath := s.dbPath + ".convert.tmp"
	os.Remove(tmpPath)
	dst, err := database.Open(tmpPath, targetKey)
	if err != nil {
		return err
	}
	_, err = dst.Exec(fmt.Sprintf("IMPORT DATABASE '%s'", sqlQuote(stageDir)))
	dst.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("importing database: %w", err)
	}

	if err := replaceFile(tmpPath, s.dbPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// replaceFile renames src over dst, falling back to copy+delete when
// the rename crosses devices.
func replaceFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("replacing database file: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("replacing database file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("replacing database file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("replacing database file: %w", err)
	}
	return os.Remove(src)
}

func sqlQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
