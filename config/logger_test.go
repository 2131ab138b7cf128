package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggingPrepare_FileLog(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "test.log")
	conf := LoggingConfig{
		ConsoleLogger: LoggerConfig{Level: "none"},
		FileLogger:    LoggerConfig{Level: "normal", Destination: dest, Mode: "overwrite"},
	}

	log, err := conf.Prepare(nil)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	log.Debug("hidden message")
	log.Info("visible message")
	_ = log.Sync()

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.Contains(string(data), "visible message") {
		t.Errorf("log does not contain info message: %q", data)
	}
	if strings.Contains(string(data), "hidden message") {
		t.Errorf("normal level must not write debug messages: %q", data)
	}
}

func TestLoggingPrepare_ReportForcesDebug(t *testing.T) {
	tmpDir := t.TempDir()
	dest := filepath.Join(tmpDir, "test.log")
	conf := LoggingConfig{
		ConsoleLogger: LoggerConfig{Level: "none"},
		FileLogger:    LoggerConfig{Level: "none", Destination: dest},
	}

	rpt := &Report{entries: make(map[string]entry)}
	log, err := conf.Prepare(rpt)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	log.Debug("debug message")
	_ = log.Sync()

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.Contains(string(data), "debug message") {
		t.Errorf("report must force debug file log: %q", data)
	}
	if _, ok := rpt.entries["final.log"]; !ok {
		t.Error("file log must be stored in report")
	}
}

func TestLoggingPrepare_Quiet(t *testing.T) {
	conf := LoggingConfig{
		ConsoleLogger: LoggerConfig{Level: "none"},
		FileLogger:    LoggerConfig{Level: "none"},
	}
	log, err := conf.Prepare(nil)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if log.Core().Enabled(-1) {
		t.Error("quiet logger must not enable debug level")
	}
}
