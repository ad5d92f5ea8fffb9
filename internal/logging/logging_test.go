package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWithSessionKey(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	base := slog.New(handler)

	logger := WithSessionKey(base, "key-123")
	logger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "session_key=key-123") {
		t.Errorf("Expected session_key in output, got: %s", output)
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected message in output, got: %s", output)
	}
}

func TestWithSessionKey_NilLogger(t *testing.T) {
	if logger := WithSessionKey(nil, "key"); logger != nil {
		t.Error("WithSessionKey(nil, ...) should return nil")
	}
}

func TestWithClient(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	base := slog.New(handler)

	logger := WithClient(base, "client-abc", "key-xyz")
	logger.Info("client test")

	output := buf.String()
	if !strings.Contains(output, "client_id=client-abc") {
		t.Errorf("Expected client_id in output, got: %s", output)
	}
	if !strings.Contains(output, "session_key=key-xyz") {
		t.Errorf("Expected session_key in output, got: %s", output)
	}
}

func TestWithClient_NilLogger(t *testing.T) {
	if logger := WithClient(nil, "client", "key"); logger != nil {
		t.Error("WithClient(nil, ...) should return nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitialize_ComponentFilter(t *testing.T) {
	var buf bytes.Buffer
	if err := Initialize(Config{Level: "debug", Components: []string{"agent"}, Console: &buf}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer func() {
		SetComponents(nil)
		Close()
	}()

	Agent().Info("from agent")
	Web().Info("from web")

	output := buf.String()
	if !strings.Contains(output, "from agent") || !strings.Contains(output, "component=agent") {
		t.Errorf("Expected agent record in output, got: %s", output)
	}
	if strings.Contains(output, "from web") {
		t.Errorf("Web record should be filtered out, got: %s", output)
	}

	// Changing the filter applies to loggers created earlier.
	web := Web()
	SetComponents(nil)
	web.Info("web again")
	if !strings.Contains(buf.String(), "web again") {
		t.Errorf("Expected web record after clearing filter, got: %s", buf.String())
	}
}

func TestInitialize_FileLevels(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "adkinspect.log")

	err := Initialize(Config{
		Level:     "info",
		FileLevel: "debug",
		FileLog:   &FileLogConfig{Path: path},
		Console:   &console,
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Get().Debug("debug only in file")
	Get().Info("info everywhere")
	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	file := string(data)

	if !strings.Contains(file, "debug only in file") || !strings.Contains(file, "info everywhere") {
		t.Errorf("File should contain both records, got: %s", file)
	}
	if strings.Contains(console.String(), "debug only in file") {
		t.Errorf("Console should not contain debug record, got: %s", console.String())
	}
	if !strings.Contains(console.String(), "info everywhere") {
		t.Errorf("Console should contain info record, got: %s", console.String())
	}
}

func TestInitialize_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Initialize(Config{Level: "info", JSON: true, Console: &buf}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	Registry().Info("json record", "capacity", 100)

	output := buf.String()
	if !strings.Contains(output, `"msg":"json record"`) || !strings.Contains(output, `"component":"registry"`) {
		t.Errorf("Expected JSON record, got: %s", output)
	}
}
