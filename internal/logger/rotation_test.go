package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotatingWriter_RotatesBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pahedl.log")

	rw, err := NewRotatingWriter(path, 16, 0, 2, false)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer rw.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	rw.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 0; i < 5; i++ {
		if _, err := rw.Write([]byte("0123456789\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var backups int
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "pahedl.log.") {
			backups++
		}
	}
	if backups != 2 {
		t.Errorf("expected 2 backups after cleanup, got %d", backups)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "0123456789\n" {
		t.Errorf("current file = %q", data)
	}
}

func TestRotatingWriter_Compress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.log")

	rw, err := NewRotatingWriter(path, 4, 0, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	defer rw.Close()

	_, _ = rw.Write([]byte("first\n"))
	_, _ = rw.Write([]byte("second\n"))

	matches, _ := filepath.Glob(filepath.Join(dir, "c.log.*.gz"))
	if len(matches) != 1 {
		t.Errorf("expected one compressed backup, got %v", matches)
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "x.log"), 0, 0, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := rw.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := rw.Write([]byte("x")); err == nil {
		t.Error("expected error writing to closed writer")
	}
}

func TestSetup_FileOutput(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	config := DefaultLogConfig()
	config.Output = "file:" + path

	l, closer, err := Setup(config)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	l.WithComponent(ComponentApp).Info("to file")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file = %q", data)
	}
	if GetGlobalLogger() != l {
		t.Error("Setup should install the global logger")
	}
}

func TestSetup_InvalidConfig(t *testing.T) {
	config := DefaultLogConfig()
	config.Level = "nope"
	if _, _, err := Setup(config); err == nil {
		t.Error("expected validation error")
	}
}
