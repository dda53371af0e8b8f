package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for input, want := range tests {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestNewLoggerWithSinkWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frostlog.log")
	logger, err := NewLoggerWithSink("info", FileSink{Path: path, MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("unexpected logger error: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("poll finished", zap.String("outcome", "unchanged"))
	_ = logger.Sync()

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(contents), `"outcome":"unchanged"`) {
		t.Fatalf("expected structured entry in file, got %s", contents)
	}
	if strings.Contains(string(contents), "hidden") {
		t.Fatalf("debug entry must be filtered at info level")
	}
}
