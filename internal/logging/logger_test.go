package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/jscraik/firefly-narrative/internal/paths"
)

const (
	testSessionID = "2025-01-15-test-session"
	testComponent = "hooks"
	testAgent     = "claude-code"
	levelINFO     = "INFO"
)

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	_, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("git init: %v", err)
	}
	t.Chdir(dir)
	paths.ClearRepoRootCache()
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     slog.Level
	}{
		{"empty defaults to INFO", "", slog.LevelInfo},
		{"DEBUG lowercase", "debug", slog.LevelDebug},
		{"DEBUG uppercase", "DEBUG", slog.LevelDebug},
		{"WARN lowercase", "warn", slog.LevelWarn},
		{"ERROR uppercase", "ERROR", slog.LevelError},
		{"invalid defaults to INFO", "invalid", slog.LevelInfo},
		{"warning alias", "warning", slog.LevelWarn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLogLevel(tt.envValue); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.envValue, got, tt.want)
			}
		})
	}
}

func TestInit_CreatesLogFile(t *testing.T) {
	tmpDir := t.TempDir()
	initGitRepo(t, tmpDir)

	if err := Init(testSessionID); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer Close()

	logFile := filepath.Join(tmpDir, ".narrative", "logs", testSessionID+".log")
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Errorf("Init() did not create log file at %s", logFile)
	}
}

func TestInit_WritesJSONLogs(t *testing.T) {
	tmpDir := t.TempDir()
	initGitRepo(t, tmpDir)

	sessionID := "2025-01-15-json-test"
	if err := Init(sessionID); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	Info(context.Background(), "test message", slog.String("key", "value"))
	Close()

	content, err := os.ReadFile(filepath.Join(tmpDir, ".narrative", "logs", sessionID+".log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v\ncontent: %s", err, content)
	}
	if entry["msg"] != "test message" {
		t.Errorf("expected msg='test message', got %v", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("expected key='value', got %v", entry["key"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected time field")
	}
}

func TestInit_RespectsLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	initGitRepo(t, tmpDir)

	t.Setenv(LogLevelEnvVar, "WARN")
	sessionID := "2025-01-15-level-test"
	if err := Init(sessionID); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx := context.Background()
	Debug(ctx, "debug message")
	Info(ctx, "info message")
	Warn(ctx, "warn message")
	Close()

	content, err := os.ReadFile(filepath.Join(tmpDir, ".narrative", "logs", sessionID+".log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	s := string(content)
	if strings.Contains(s, "debug message") || strings.Contains(s, "info message") {
		t.Error("DEBUG/INFO should not be logged when level is WARN")
	}
	if !strings.Contains(s, "warn message") {
		t.Error("WARN message should be logged when level is WARN")
	}
}

func TestInit_FallsBackToStderrOnError(t *testing.T) {
	tmpDir := t.TempDir()
	initGitRepo(t, tmpDir)

	logsDir := filepath.Join(tmpDir, ".narrative", "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		t.Fatalf("mkdir logs dir: %v", err)
	}
	sessionID := "2025-01-15-fallback-test"
	logFilePath := filepath.Join(logsDir, sessionID+".log")
	if err := os.MkdirAll(logFilePath, 0o755); err != nil {
		t.Fatalf("create blocking dir: %v", err)
	}

	if err := Init(sessionID); err != nil {
		t.Errorf("Init() should not error, got: %v", err)
	}
	Info(context.Background(), "fallback test")
	Close()
}

func TestClose_SafeToCallMultipleTimes(t *testing.T) {
	tmpDir := t.TempDir()
	initGitRepo(t, tmpDir)

	if err := Init("2025-01-15-close-test"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	Close()
	Close()
	Close()
}

func TestLogging_BeforeInit(_ *testing.T) {
	resetLogger()
	ctx := context.Background()
	Debug(ctx, "debug before init")
	Info(ctx, "info before init")
	Warn(ctx, "warn before init")
	Error(ctx, "error before init")
}

func TestLogging_IncludesContextValues(t *testing.T) {
	tmpDir := t.TempDir()
	initGitRepo(t, tmpDir)

	sessionID := "2025-01-15-context-test"
	if err := Init(sessionID); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx := context.Background()
	ctx = WithSession(ctx, "context-session-id")
	ctx = WithToolCall(ctx, "toolu_123")
	ctx = WithComponent(ctx, testComponent)
	ctx = WithAgent(ctx, testAgent)
	Info(ctx, "context test message")
	Close()

	content, err := os.ReadFile(filepath.Join(tmpDir, ".narrative", "logs", sessionID+".log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
	if entry["session_id"] != sessionID {
		t.Errorf("expected session_id=%q (from Init), got %v", sessionID, entry["session_id"])
	}
	if entry["tool_call_id"] != "toolu_123" {
		t.Errorf("expected tool_call_id='toolu_123', got %v", entry["tool_call_id"])
	}
	if entry["component"] != testComponent {
		t.Errorf("expected component=%q, got %v", testComponent, entry["component"])
	}
	if entry["agent"] != testAgent {
		t.Errorf("expected agent=%q, got %v", testAgent, entry["agent"])
	}
}

func TestLogging_ParentSessionID(t *testing.T) {
	tmpDir := t.TempDir()
	initGitRepo(t, tmpDir)

	sessionID := "2025-01-15-parent-test"
	if err := Init(sessionID); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx := context.Background()
	ctx = WithSession(ctx, "parent-session")
	ctx = WithSession(ctx, "child-session")
	Info(ctx, "nested session test")
	Close()

	content, err := os.ReadFile(filepath.Join(tmpDir, ".narrative", "logs", sessionID+".log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
	if entry["session_id"] != sessionID {
		t.Errorf("expected session_id=%q (from Init), got %v", sessionID, entry["session_id"])
	}
	if entry["parent_session_id"] != "parent-session" {
		t.Errorf("expected parent_session_id='parent-session', got %v", entry["parent_session_id"])
	}
}

func TestLogDuration(t *testing.T) {
	tmpDir := t.TempDir()
	initGitRepo(t, tmpDir)

	sessionID := "2025-01-15-duration-test"
	if err := Init(sessionID); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx := WithComponent(context.Background(), testComponent)
	start := time.Now().Add(-100 * time.Millisecond)
	LogDuration(ctx, slog.LevelInfo, "operation completed", start,
		slog.String("hook", "post-commit"),
		slog.Bool("success", true),
	)
	Close()

	content, err := os.ReadFile(filepath.Join(tmpDir, ".narrative", "logs", sessionID+".log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
	durationMs, ok := entry["duration_ms"].(float64)
	if !ok {
		t.Fatalf("expected duration_ms to be a number, got %T", entry["duration_ms"])
	}
	if durationMs < 90 || durationMs > 300 {
		t.Errorf("expected duration_ms around 100, got %v", durationMs)
	}
	if entry["hook"] != "post-commit" {
		t.Errorf("expected hook='post-commit', got %v", entry["hook"])
	}
	if entry["level"] != levelINFO {
		t.Errorf("expected level=%q, got %v", levelINFO, entry["level"])
	}
}

func TestLogging_ContextSessionID_WhenNoGlobalSet(t *testing.T) {
	resetLogger()

	var buf bytes.Buffer
	mu.Lock()
	logger = createLogger(&buf, slog.LevelInfo)
	mu.Unlock()

	ctx := WithSession(context.Background(), "context-only-session")
	ctx = WithComponent(ctx, testComponent)
	Info(ctx, "context session test")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
	if entry["session_id"] != "context-only-session" {
		t.Errorf("expected session_id='context-only-session' from context, got %v", entry["session_id"])
	}
	resetLogger()
}

func TestInit_RejectsInvalidSessionIDs(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		wantErr   bool
	}{
		{"empty session ID", "", true},
		{"path traversal with slash", "../../../tmp/evil", true},
		{"contains forward slash", "2025-01-15/session", true},
		{"contains backslash", "2025-01-15\\session", true},
		{"valid session ID", "2025-01-15-valid-session", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetLogger()
			if !tt.wantErr {
				tmpDir := t.TempDir()
				initGitRepo(t, tmpDir)
			}
			err := Init(tt.sessionID)
			if (err != nil) != tt.wantErr {
				t.Errorf("Init(%q) error = %v, wantErr %v", tt.sessionID, err, tt.wantErr)
			}
			if err != nil && tt.wantErr && !strings.Contains(err.Error(), "session ID") {
				t.Errorf("Init(%q) error should mention 'session ID', got: %v", tt.sessionID, err)
			}
			Close()
		})
	}
}
