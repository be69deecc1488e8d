package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hap.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, "store: /tmp/p.yaml\ntimeout: 2m\nlog_level: debug\nsrp_group: 2048\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Store != "/tmp/p.yaml" || cfg.Timeout != 2*time.Minute || cfg.LogLevel != "debug" {
		t.Errorf("LoadConfig() = %+v", cfg)
	}
	group, err := cfg.Group()
	if err != nil {
		t.Fatalf("Group failed: %v", err)
	}
	if group != srp.Group2048 {
		t.Errorf("Group() = %s, want %s", group, srp.Group2048)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "log_level: info\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	def := DefaultConfig()
	if cfg.Store != def.Store || cfg.Timeout != def.Timeout || cfg.SRPGroup != 3072 {
		t.Errorf("LoadConfig() = %+v, want defaults %+v", cfg, def)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "store: [\n"},
		{"negative timeout", "timeout: -1s\n"},
		{"bad duration", "timeout: soon\n"},
		{"bad level", "log_level: chatty\n"},
		{"bad group", "srp_group: 1024\n"},
		{"empty store", "store: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.content)); err == nil {
				t.Error("LoadConfig succeeded, want error")
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig of a missing file succeeded")
	}
}

func TestConfig_LoggerFactory(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.LogLevel = "info"

	lf, err := cfg.LoggerFactory(&buf)
	if err != nil {
		t.Fatalf("LoggerFactory failed: %v", err)
	}
	log := lf.NewLogger("controller")
	log.Debug("hidden")
	log.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("log output = %q", out)
	}
}

func TestPinDeviceID(t *testing.T) {
	s := store.NewMemoryStorage()
	if err := pinDeviceID(s, testDeviceID); err != nil {
		t.Fatalf("pinDeviceID failed: %v", err)
	}
	if err := pinDeviceID(s, testDeviceID); err != nil {
		t.Fatalf("second pinDeviceID failed: %v", err)
	}
	if err := pinDeviceID(s, "FFFFFFFFFFFFFFFF"); err == nil {
		t.Error("pinDeviceID replaced an existing device id")
	}
}
