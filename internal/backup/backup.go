// Package backup archives and restores the database directory: the
// database file plus its sidecars, zipped under a timestamped name.
package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/treeline-app/treeline/internal/domain"
)

const (
	namePrefix       = "treeline-"
	preRestorePrefix = "treeline-pre-restore-"
	nameTimeLayout   = "2006-01-02T15-04-05"
	settingsFileName = "settings.json"
	sidecarFileName  = "encryption.json"
	legacyExtension  = ".duckdb"
)

// Info describes one stored backup.
type Info struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Legacy    bool      `json:"legacy"`
}

// Service creates and restores backups for one database directory.
type Service struct {
	dbPath     string
	backupsDir string
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a backup service. Sidecars are resolved relative
// to the database file's directory.
func NewService(dbPath, backupsDir string, logger *slog.Logger) *Service {
	return &Service{dbPath: dbPath, backupsDir: backupsDir, logger: logger, now: time.Now}
}

// Create writes a new ZIP backup of the database and any sidecars and
// returns its info.
func (s *Service) Create() (*Info, error) {
	return s.create(namePrefix)
}

func (s *Service) create(prefix string) (*Info, error) {
	if _, err := os.Stat(s.dbPath); err != nil {
		return nil, domain.Errorf(domain.KindIO, "database file not found: %v", err)
	}
	if err := os.MkdirAll(s.backupsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating backups directory: %w", err)
	}

	now := s.now()
	name := fmt.Sprintf("%s%s-%06d.zip", prefix, now.Format(nameTimeLayout), now.Nanosecond()/1000)
	path := filepath.Join(s.backupsDir, name)

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating backup file: %w", err)
	}
	zw := zip.NewWriter(out)

	members := []string{s.dbPath}
	dir := filepath.Dir(s.dbPath)
	for _, sidecar := range []string{settingsFileName, sidecarFileName} {
		p := filepath.Join(dir, sidecar)
		if _, err := os.Stat(p); err == nil {
			members = append(members, p)
		}
	}
	for _, member := range members {
		if err := addFile(zw, member); err != nil {
			zw.Close()
			out.Close()
			os.Remove(path)
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(path)
		return nil, fmt.Errorf("finalizing backup: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("closing backup: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("backup vanished: %w", err)
	}
	s.logger.Info("backup created", "name", name, "size", info.Size())
	return &Info{Name: name, Path: path, Size: info.Size(), CreatedAt: now}, nil
}

func addFile(zw *zip.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	defer in.Close()
	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return fmt.Errorf("archiving %s: %w", filepath.Base(path), err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("archiving %s: %w", filepath.Base(path), err)
	}
	return nil
}

// List returns stored backups newest first. Legacy bare database
// files in the backups directory are included as restorable.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.backupsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backups directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		isZip := strings.HasPrefix(name, namePrefix) && strings.HasSuffix(name, ".zip")
		isLegacy := strings.HasSuffix(name, legacyExtension)
		if !isZip && !isLegacy {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		createdAt := fi.ModTime()
		if parsed, ok := parseName(name); ok {
			createdAt = parsed
		}
		backups = append(backups, Info{
			Name:      name,
			Path:      filepath.Join(s.backupsDir, name),
			Size:      fi.Size(),
			CreatedAt: createdAt,
			Legacy:    isLegacy,
		})
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// parseName extracts the timestamp from a backup file name.
func parseName(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, ".zip")
	for _, prefix := range []string{preRestorePrefix, namePrefix} {
		if rest, ok := strings.CutPrefix(base, prefix); ok {
			// Trim the microsecond suffix.
			if i := strings.LastIndex(rest, "-"); i > 0 {
				if t, err := time.ParseInLocation(nameTimeLayout, rest[:i], time.Local); err == nil {
					micros, _ := time.ParseDuration(rest[i+1:] + "us")
					return t.Add(micros), true
				}
			}
			return time.Time{}, false
		}
	}
	return time.Time{}, false
}

// Restore replaces the live database with a stored backup. The current
// state is zipped to a pre-restore backup first. Restoring a ZIP also
// removes any sidecar absent from the archive, so restoring an
// unencrypted backup over an encrypted database drops encryption.json.
func (s *Service) Restore(name string) error {
	backupPath := filepath.Join(s.backupsDir, filepath.Base(name))
	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup %s: %w", name, domain.ErrNotFound)
	}

	if _, err := os.Stat(s.dbPath); err == nil {
		if _, err := s.create(preRestorePrefix); err != nil {
			return fmt.Errorf("creating pre-restore backup: %w", err)
		}
	}

	if strings.HasSuffix(name, legacyExtension) {
		return s.restoreLegacy(backupPath)
	}
	return s.restoreZip(backupPath)
}

func (s *Service) restoreZip(backupPath string) error {
	zr, err := zip.OpenReader(backupPath)
	if err != nil {
		return fmt.Errorf("opening backup: %w", err)
	}
	defer zr.Close()

	dir := filepath.Dir(s.dbPath)
	restored := map[string]bool{}
	for _, f := range zr.File {
		base := filepath.Base(f.Name)
		target := filepath.Join(dir, base)
		if base == filepath.Base(s.dbPath) {
			target = s.dbPath
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
		restored[base] = true
	}

	for _, sidecar := range []string{settingsFileName, sidecarFileName} {
		if restored[sidecar] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, sidecar)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale %s: %w", sidecar, err)
		}
	}
	s.logger.Info("backup restored", "backup", filepath.Base(backupPath))
	return nil
}

// restoreLegacy copies a bare database file over the live one. Legacy
// backups predate encryption, so the sidecar goes too.
func (s *Service) restoreLegacy(backupPath string) error {
	if err := os.Remove(filepath.Join(filepath.Dir(s.dbPath), sidecarFileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing encryption sidecar: %w", err)
	}
	if err := copyFile(backupPath, s.dbPath); err != nil {
		return err
	}
	s.logger.Info("legacy backup restored", "backup", filepath.Base(backupPath))
	return nil
}

func extractFile(f *zip.File, target string) error {
	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	defer in.Close()
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	return out.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copying backup: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("copying backup: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying backup: %w", err)
	}
	return out.Close()
}

// Prune deletes the oldest backups until at most max remain. It
// returns the deleted names.
func (s *Service) Prune(max int) ([]string, error) {
	if max < 0 {
		return nil, domain.Errorf(domain.KindValidation, "max backups cannot be negative")
	}
	backups, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(backups) <= max {
		return nil, nil
	}

	var deleted []string
	for _, b := range backups[max:] {
		if err := os.Remove(b.Path); err != nil {
			return deleted, fmt.Errorf("deleting backup %s: %w", b.Name, err)
		}
		deleted = append(deleted, b.Name)
	}
	s.logger.Info("backups pruned", "deleted", len(deleted), "kept", max)
	return deleted, nil
}

// Clear deletes every stored backup and returns the count.
func (s *Service) Clear() (int, error) {
	backups, err := s.List()
	if err != nil {
		return 0, err
	}
	for i, b := range backups {
		if err := os.Remove(b.Path); err != nil {
			return i, fmt.Errorf("deleting backup %s: %w", b.Name, err)
		}
	}
	return len(backups), nil
}
