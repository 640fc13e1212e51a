package daemonctl

import (
	"os"
	"path/filepath"
	"testing"

	"archivist/internal/config"
)

func TestReadPIDFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archivistd.pid")

	if got := readPIDFile(path); got != 0 {
		t.Errorf("missing file pid = %d, want 0", got)
	}

	if err := os.WriteFile(path, []byte("12345\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readPIDFile(path); got != 12345 {
		t.Errorf("pid = %d, want 12345", got)
	}

	if err := os.WriteFile(path, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readPIDFile(path); got != 0 {
		t.Errorf("garbage pid = %d, want 0", got)
	}
}

func TestDeriveLogDir(t *testing.T) {
	if got := deriveLogDir("/var/lib/archivist/logs/archivistd.lock", nil); got != "/var/lib/archivist/logs" {
		t.Errorf("lock-derived dir = %q", got)
	}

	cfg := config.Default()
	cfg.Paths.LogDir = "/tmp/archivist-logs"
	if got := deriveLogDir("", &cfg); got != "/tmp/archivist-logs" {
		t.Errorf("config-derived dir = %q", got)
	}

	if got := deriveLogDir("", nil); got != "" {
		t.Errorf("empty inputs should yield empty dir, got %q", got)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "archivistd.sock")
	if _, err := Stop(socket, nil, 0); err != ErrDaemonNotRunning {
		t.Errorf("err = %v, want ErrDaemonNotRunning", err)
	}
}
