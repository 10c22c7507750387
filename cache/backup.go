package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Meschack/lyriks/logcolors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var (
	ErrInvalidBackupName = errors.New("invalid backup file name")
	ErrBackupNotFound    = errors.New("backup file not found")
)

// BackupInfo contains metadata about a backup file
type BackupInfo struct {
	FileName  string    `json:"fileName"`
	FilePath  string    `json:"filePath"`
	Size      int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Backup writes a consistent snapshot of the database to the backup directory
// and returns its path. The database stays open.
func (bs *BoltStore) Backup() (string, error) {
	timestamp := bs.now().Format("2006-01-02_15-04-05.000")
	backupFilePath := filepath.Join(bs.backupPath, fmt.Sprintf("cache_backup_%s.db", timestamp))

	log.Infof("%s Creating backup at: %s", logcolors.LogCacheBackup, backupFilePath)

	bs.mu.RLock()
	defer bs.mu.RUnlock()

	err := bs.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(backupFilePath, 0600)
	})
	if err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	log.Infof("%s Backup created successfully: %s", logcolors.LogCacheBackup, backupFilePath)
	return backupFilePath, nil
}

// ListBackups returns the available backup files, newest first.
func (bs *BoltStore) ListBackups() ([]BackupInfo, error) {
	backups := []BackupInfo{}

	entries, err := os.ReadDir(bs.backupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return backups, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".db" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Warnf("%s Failed to get info for %s: %v", logcolors.LogCacheBackup, entry.Name(), err)
			continue
		}

		backups = append(backups, BackupInfo{
			FileName:  entry.Name(),
			FilePath:  filepath.Join(bs.backupPath, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].FileName > backups[j].FileName
	})
	return backups, nil
}

// RestoreFromBackup replaces the live database with the named backup.
// The previous file is kept as <db>.pre-restore until the swap succeeds.
func (bs *BoltStore) RestoreFromBackup(backupFileName string) error {
	if filepath.Base(backupFileName) != backupFileName || filepath.Ext(backupFileName) != ".db" {
		return fmt.Errorf("%w: %s", ErrInvalidBackupName, backupFileName)
	}

	backupFilePath := filepath.Join(bs.backupPath, backupFileName)
	if _, err := os.Stat(backupFilePath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, backupFileName)
	}

	log.Infof("%s Starting restore from backup: %s", logcolors.LogCacheRestore, backupFileName)

	bs.mu.Lock()
	defer bs.mu.Unlock()

	if err := bs.db.Close(); err != nil {
		return fmt.Errorf("failed to close current database: %w", err)
	}

	preRestore := bs.dbPath + ".pre-restore"
	if err := copyFile(bs.dbPath, preRestore); err != nil {
		if reopenErr := bs.open(); reopenErr != nil {
			log.Errorf("%s Failed to reopen database: %v", logcolors.LogCacheRestore, reopenErr)
		}
		return fmt.Errorf("failed to snapshot current database: %w", err)
	}

	if err := copyFile(backupFilePath, bs.dbPath); err != nil {
		if rollbackErr := copyFile(preRestore, bs.dbPath); rollbackErr != nil {
			log.Errorf("%s Rollback failed: %v", logcolors.LogCacheRestore, rollbackErr)
		}
		if reopenErr := bs.open(); reopenErr != nil {
			log.Errorf("%s Failed to reopen database: %v", logcolors.LogCacheRestore, reopenErr)
		}
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	os.Remove(preRestore)

	if err := bs.open(); err != nil {
		return fmt.Errorf("failed to reopen database after restore: %w", err)
	}

	log.Infof("%s Successfully restored from backup: %s", logcolors.LogCacheRestore, backupFileName)
	return nil
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}
	return destFile.Sync()
}
