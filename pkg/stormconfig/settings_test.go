package stormconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempSettings(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write temp settings file: %v", err)
	}
	return path
}

func TestLoadBackendSettings_YAML(t *testing.T) {
	path := writeTempSettings(t, "settings.yaml", `
block_size: 2048
max_connections: 100
num_send_threads: 2
num_io_threads: 2
audit_driver: postgres
audit_dsn: "postgres://localhost/storm"
`)

	fs, settings, err := LoadBackendSettings(path)
	if err != nil {
		t.Fatalf("LoadBackendSettings failed: %v", err)
	}
	if settings.BlockSize != 2048 {
		t.Errorf("BlockSize = %d, want 2048", settings.BlockSize)
	}
	if settings.MaxConnections != 100 {
		t.Errorf("MaxConnections = %d, want 100", settings.MaxConnections)
	}
	if fs.AuditDriver != "postgres" {
		t.Errorf("AuditDriver = %q, want postgres", fs.AuditDriver)
	}
	// Fields absent from the file should keep their defaults.
	if settings.HeapSize != DefaultFileSettings().HeapSize {
		t.Errorf("HeapSize = %d, want default %d", settings.HeapSize, DefaultFileSettings().HeapSize)
	}
}

func TestLoadBackendSettings_RejectsUnknownAuditDriver(t *testing.T) {
	path := writeTempSettings(t, "settings.yaml", `
audit_driver: oracle
`)
	if _, _, err := LoadBackendSettings(path); err == nil {
		t.Fatalf("expected an error for an unrecognized audit driver")
	}
}

func TestLoadBackendSettings_RejectsOutOfRangeThreadCount(t *testing.T) {
	path := writeTempSettings(t, "settings.yaml", `
num_send_threads: 0
`)
	if _, _, err := LoadBackendSettings(path); err == nil {
		t.Fatalf("expected an error for zero send threads")
	}
}

func TestLoadBackendSettings_EnvOverride(t *testing.T) {
	path := writeTempSettings(t, "settings.yaml", `
num_send_threads: 2
`)
	t.Setenv("STORMSOCKET_NUMSENDTHREADS", "7")

	_, settings, err := LoadBackendSettings(path)
	if err != nil {
		t.Fatalf("LoadBackendSettings failed: %v", err)
	}
	if settings.NumSendThreads != 7 {
		t.Errorf("NumSendThreads = %d, want 7 (env override)", settings.NumSendThreads)
	}
}
