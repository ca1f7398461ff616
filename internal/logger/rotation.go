package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotatingWriter is an io.WriteCloser over a log file that rotates by size and age.
type RotatingWriter struct {
	filename   string
	maxSize    int64
	maxAge     time.Duration
	maxBackups int
	compress   bool

	mu         sync.Mutex
	file       *os.File
	size       int64
	lastRotate time.Time
	now        func() time.Time
}

// NewRotatingWriter opens filename for appending. Zero maxSize or maxAge disables that trigger.
func NewRotatingWriter(filename string, maxSize int64, maxAge time.Duration, maxBackups int, compress bool) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		filename:   filename,
		maxSize:    maxSize,
		maxAge:     maxAge,
		maxBackups: maxBackups,
		compress:   compress,
		now:        time.Now,
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) open() error {
	file, err := os.OpenFile(rw.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rw.file = file
	rw.size = stat.Size()
	rw.lastRotate = rw.now()
	return nil
}

// Write implements io.Writer
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, os.ErrClosed
	}
	if rw.needsRotation(int64(len(p))) {
		if err := rw.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log file: %w", err)
		}
	}
	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// Close implements io.Closer
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}

func (rw *RotatingWriter) needsRotation(incoming int64) bool {
	if rw.size == 0 {
		return false
	}
	if rw.maxSize > 0 && rw.size+incoming > rw.maxSize {
		return true
	}
	return rw.maxAge > 0 && rw.now().Sub(rw.lastRotate) >= rw.maxAge
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("close current file: %w", err)
	}

	rotated := fmt.Sprintf("%s.%s", rw.filename, rw.now().Format("2006-01-02-15-04-05.000"))
	if err := os.Rename(rw.filename, rotated); err != nil {
		return fmt.Errorf("rename log file: %w", err)
	}

	// compression and cleanup failures do not block logging
	if rw.compress {
		if err := compressFile(rotated); err != nil {
			fmt.Fprintf(os.Stderr, "compress log file %s: %v\n", rotated, err)
		}
	}
	if err := rw.cleanupOldBackups(); err != nil {
		fmt.Fprintf(os.Stderr, "cleanup log backups: %v\n", err)
	}

	return rw.open()
}

func compressFile(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		_ = gz.Close()
		_ = dst.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(filename)
}

// cleanupOldBackups keeps the newest maxBackups rotated files. Zero keeps all.
func (rw *RotatingWriter) cleanupOldBackups() error {
	if rw.maxBackups <= 0 {
		return nil
	}
	dir := filepath.Dir(rw.filename)
	prefix := filepath.Base(rw.filename) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
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
		backups = append(backups, backup{path: filepath.Join(dir, entry.Name()), modTime: info.ModTime()})
	}
	if len(backups) <= rw.maxBackups {
		return nil
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].modTime.Before(backups[j].modTime) })
	for _, b := range backups[:len(backups)-rw.maxBackups] {
		if err := os.Remove(b.path); err != nil {
			return err
		}
	}
	return nil
}

// Setup builds a logger from config and installs it as the global logger.
// File outputs are wrapped in a RotatingWriter; the returned closer releases it.
func Setup(config *LogConfig) (*Logger, io.Closer, error) {
	if err := config.ValidateConfig(); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}

	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)
	if isFileOutput(config.Output) {
		rot := config.Rotation
		if rot == nil {
			rot = &RotationConfig{}
		}
		maxSize, _ := parseSize(rot.MaxSize)
		maxAge, _ := parseDuration(rot.MaxAge)
		rw, err := NewRotatingWriter(strings.TrimPrefix(config.Output, "file:"), maxSize, maxAge, rot.MaxBackups, rot.Compress)
		if err != nil {
			return nil, nil, fmt.Errorf("create rotating writer: %w", err)
		}
		output, closer = rw, rw
	} else {
		w, err := parseOutput(config.Output)
		if err != nil {
			return nil, nil, err
		}
		output = w
	}

	cfg, err := config.toConfig(output)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}

	l := New(cfg)
	SetGlobalLogger(l)
	return l, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
