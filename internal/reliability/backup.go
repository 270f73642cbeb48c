// Package reliability provides the safety nets around the ledger database:
// timestamped backups taken before anything mutates, with verification and
// count-based rotation.
package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/database"
)

// BackupService creates verified, rotated copies of a database. A backup is
// taken before every run; the ledger is the book of record and import or
// reconciliation mistakes must always be recoverable.
type BackupService struct {
	db         *database.DB
	backupDir  string
	maxBackups int
	now        func() time.Time
	log        zerolog.Logger
}

// NewBackupService creates a backup service keeping at most maxBackups
// copies in backupDir.
func NewBackupService(db *database.DB, backupDir string, maxBackups int, log zerolog.Logger) *BackupService {
	return &BackupService{
		db:         db,
		backupDir:  backupDir,
		maxBackups: maxBackups,
		now:        time.Now,
		log:        log.With().Str("service", "backup").Logger(),
	}
}

// Backup creates a timestamped copy of the database, verifies its integrity,
// and rotates out the oldest copies beyond the retention limit. Returns the
// backup path.
func (s *BackupService) Backup() (string, error) {
	startTime := time.Now()

	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupName := fmt.Sprintf("%s_backup_%s.db", s.db.Name(), s.now().Format("20060102150405"))
	backupPath := filepath.Join(s.backupDir, backupName)

	// VACUUM INTO produces a fresh, compacted copy without WAL files, and is
	// atomic with respect to concurrent readers.
	if _, err := s.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", backupPath)); err != nil {
		return "", fmt.Errorf("VACUUM INTO failed: %w", err)
	}

	if err := s.verifyBackup(backupPath); err != nil {
		os.Remove(backupPath)
		return "", fmt.Errorf("backup verification failed: %w", err)
	}

	if err := s.rotate(); err != nil {
		// The new backup succeeded; rotation failure is not fatal.
		s.log.Warn().Err(err).Msg("Failed to rotate old backups")
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("backup_path", backupPath).
		Msg("Backup completed")

	return backupPath, nil
}

// verifyBackup opens the copy and runs an integrity check on it.
func (s *BackupService) verifyBackup(backupPath string) error {
	backupDB, err := sql.Open("sqlite", backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer backupDB.Close()

	var result string
	if err := backupDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// rotate deletes the oldest backups beyond the retention limit.
func (s *BackupService) rotate() error {
	if s.maxBackups <= 0 {
		return nil
	}

	prefix := s.db.Name() + "_backup_"

	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	var backups []backup
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{
			path:    filepath.Join(s.backupDir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	if len(backups) <= s.maxBackups {
		return nil
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].modTime.Before(backups[j].modTime)
	})

	for _, old := range backups[:len(backups)-s.maxBackups] {
		if err := os.Remove(old.path); err != nil {
			s.log.Warn().Str("path", old.path).Err(err).Msg("Failed to delete old backup")
			continue
		}
		s.log.Debug().Str("path", old.path).Msg("Deleted old backup")
	}

	return nil
}
