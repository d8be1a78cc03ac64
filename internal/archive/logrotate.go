package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Retention for on-disk files.
const (
	LogRetention        = 30 * 24 * time.Hour
	LogArchiveRetention = 60 * 24 * time.Hour
	TempFileRetention   = 24 * time.Hour
)

// FileRotator handles the on-disk half of retention: application log files
// and temp scratch files. Database retention lives in Archiver.
type FileRotator struct {
	logDir  string
	tempDir string
	logger  *zap.Logger
}

func NewFileRotator(logDir, tempDir string, logger *zap.Logger) *FileRotator {
	return &FileRotator{
		logDir:  logDir,
		tempDir: tempDir,
		logger:  logger.With(zap.String("component", "file_rotator")),
	}
}

// RotateLogs moves log files older than 30 days into an archive
// subdirectory and deletes archived files older than 60 days. A missing
// log directory is not an error.
func (r *FileRotator) RotateLogs(ctx context.Context) error {
	if r.logDir == "" {
		return nil
	}
	archiveDir := filepath.Join(r.logDir, "archive")

	entries, err := os.ReadDir(r.logDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read log dir: %w", err)
	}

	now := time.Now()
	var moved, deleted int
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < LogRetention {
			continue
		}
		if err := os.MkdirAll(archiveDir, 0o755); err != nil {
			return fmt.Errorf("create archive dir: %w", err)
		}
		if err := os.Rename(filepath.Join(r.logDir, e.Name()), filepath.Join(archiveDir, e.Name())); err != nil {
			r.logger.Warn("failed to archive log file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		moved++
	}

	archived, err := os.ReadDir(archiveDir)
	if err == nil {
		for _, e := range archived {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) < LogArchiveRetention {
				continue
			}
			if err := os.Remove(filepath.Join(archiveDir, e.Name())); err != nil {
				r.logger.Warn("failed to delete archived log", zap.String("file", e.Name()), zap.Error(err))
				continue
			}
			deleted++
		}
	}

	r.logger.Info("log rotation complete", zap.Int("archived", moved), zap.Int("deleted", deleted))
	return nil
}

// CleanupTempFiles deletes scratch files older than one day.
func (r *FileRotator) CleanupTempFiles(ctx context.Context) error {
	if r.tempDir == "" {
		return nil
	}
	entries, err := os.ReadDir(r.tempDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read temp dir: %w", err)
	}

	now := time.Now()
	var deleted int
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < TempFileRetention {
			continue
		}
		path := filepath.Join(r.tempDir, e.Name())
		if e.IsDir() {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
		if err != nil {
			r.logger.Warn("failed to delete temp entry", zap.String("entry", e.Name()), zap.Error(err))
			continue
		}
		deleted++
	}

	r.logger.Info("temp cleanup complete", zap.Int("deleted", deleted))
	return nil
}
