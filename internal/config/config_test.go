package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("IRIS_BASE_URL", "http://iris:3000")
	t.Setenv("IRIS_WS_URL", "ws://iris:3000/ws")
	t.Setenv("BOT_PREFIX", "!")
	t.Setenv("MSGCAT_DIR", "/tmp/templates")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IrisTransport != "auto" || cfg.LLMProvider != "openai" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ChessDefaultDifficulty != "intermediate" || cfg.ChessDefaultTimeControl != "unlimited" {
		t.Fatalf("unexpected chess defaults: %+v", cfg)
	}
	if cfg.ChessFirstMoveDelay != 750*time.Millisecond || cfg.ChessRetryDelay != 1500*time.Millisecond {
		t.Fatalf("unexpected delays: %v %v", cfg.ChessFirstMoveDelay, cfg.ChessRetryDelay)
	}
	if cfg.S3Enabled() {
		t.Fatalf("s3 should be disabled without endpoint")
	}
	if cfg.MsgcatDir != "/tmp/templates" {
		t.Fatalf("msgcat dir: %q", cfg.MsgcatDir)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("IRIS_TRANSPORT", "WS")
	t.Setenv("ALLOWED_ROOMS", " room-a, ,room-b ")
	t.Setenv("LLM_PROVIDER", "Claude")
	t.Setenv("LLM_TIMEOUT", "20")
	t.Setenv("CHESS_SESSION_TTL", "2h")
	t.Setenv("CHESS_HISTORY_LIMIT", "-3")
	t.Setenv("CHESS_ALLOW_UNDO", "false")
	t.Setenv("S3_ENDPOINT", "minio:9000")
	t.Setenv("S3_BUCKET", "pgn")
	t.Setenv("S3_USE_SSL", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IrisTransport != "ws" || cfg.LLMProvider != "claude" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if len(cfg.AllowedRooms) != 2 || cfg.AllowedRooms[0] != "room-a" || cfg.AllowedRooms[1] != "room-b" {
		t.Fatalf("allowed rooms: %v", cfg.AllowedRooms)
	}
	if cfg.LLMTimeout != 20*time.Second || cfg.ChessSessionTTL != 2*time.Hour {
		t.Fatalf("durations: %v %v", cfg.LLMTimeout, cfg.ChessSessionTTL)
	}
	if cfg.ChessHistoryLimit != 10 {
		t.Fatalf("negative limit should keep default, got %d", cfg.ChessHistoryLimit)
	}
	if cfg.ChessAllowUndo || !cfg.ChessAllowHints {
		t.Fatalf("flags: undo=%v hints=%v", cfg.ChessAllowUndo, cfg.ChessAllowHints)
	}
	if !cfg.S3Enabled() || !cfg.S3UseSSL {
		t.Fatalf("s3 should be enabled with ssl")
	}
}

func TestLoadRequiresIris(t *testing.T) {
	setRequired(t)
	t.Setenv("IRIS_WS_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing IRIS_WS_URL error")
	}
}
