package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestNormalizeFormat(t *testing.T) {
	if got := normalizeFormat("JSON"); got != "json" {
		t.Fatalf("got %q", got)
	}
	if got := normalizeFormat("pretty"); got != "legacy" {
		t.Fatalf("unknown format should fall back to legacy, got %q", got)
	}
}

func TestBuildWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bot.log")
	logger, err := build(zapcore.InfoLevel, "json", false, true, path, false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	logger.Debug("hidden_event")
	logger.Info("ai_move_committed")
	_ = logger.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, `"msg":"ai_move_committed"`) {
		t.Fatalf("missing info line: %s", out)
	}
	if strings.Contains(out, "hidden_event") {
		t.Fatalf("debug line should be filtered: %s", out)
	}
}
