package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetup_Level(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"WARN", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"nonsense", logrus.InfoLevel},
	}
	for _, tt := range tests {
		Setup(Options{Level: tt.level, Format: "json"})
		if got := defaultLogger.GetLevel(); got != tt.want {
			t.Errorf("Setup(%q) level = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestSetup_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookrisk.log")
	Setup(Options{Level: "info", Format: "json", File: path})
	t.Cleanup(func() { defaultLogger = nil })

	Info("ranked %d events", 3)
	Debug("hidden")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "ranked 3 events") {
		t.Errorf("log file missing info entry: %s", s)
	}
	if strings.Contains(s, "hidden") {
		t.Errorf("debug entry written at info level: %s", s)
	}
}

func TestUninitialised(t *testing.T) {
	defaultLogger = nil
	Info("dropped")
	WithField("k", "v").Info("dropped")
}
