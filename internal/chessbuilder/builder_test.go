package chessbuilder

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
	"github.com/park285/Cheese-LLMChess-bot/internal/config"
	"github.com/park285/Cheese-LLMChess-bot/internal/provider"
	"github.com/park285/Cheese-LLMChess-bot/internal/session"
)

func baseConfig() *config.AppConfig {
	return &config.AppConfig{
		BotPrefix:               "!",
		LLMProvider:             "openai",
		LLMTimeout:              5 * time.Second,
		OpenAIAPIKey:            "sk-test",
		ChessDefaultDifficulty:  "beginner",
		ChessDefaultTimeControl: "unlimited",
		ChessSessionTTL:         time.Hour,
		ChessHistoryLimit:       10,
		ChessPromptHistoryPlies: 20,
		ChessAllowUndo:          true,
		ChessAllowHints:         true,
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@cache:6380/2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.TLSConfig != nil {
		t.Fatalf("plain redis must not enable tls")
	}

	opts, err = parseRedisURL("rediss://cache")
	if err != nil {
		t.Fatalf("parse rediss: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.TLSConfig == nil {
		t.Fatalf("unexpected rediss options: %+v", opts)
	}

	if _, err := parseRedisURL("http://cache"); err == nil {
		t.Fatalf("expected scheme error")
	}
	if _, err := parseRedisURL("redis://cache/x"); err == nil {
		t.Fatalf("expected db error")
	}
}

func TestNewInMemory(t *testing.T) {
	deps, err := New(context.Background(), baseConfig(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = deps.Close() }()

	if deps.Service == nil || deps.Engine == nil || deps.Catalog == nil {
		t.Fatalf("incomplete deps: %+v", deps)
	}
	if got := deps.Keyring.Configured(); len(got) != 1 || got[0] != provider.OpenAI {
		t.Fatalf("configured providers: %v", got)
	}
	if _, err := deps.Registry.Adapter(provider.Cohere); err != nil {
		t.Fatalf("cohere adapter missing: %v", err)
	}

	meta := session.Meta{SessionID: "room:alice", Room: "room", Sender: "alice"}
	state, err := deps.Service.Start(context.Background(), meta, session.StartOptions{HumanSide: chess.White})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Difficulty.Name != "beginner" || state.Provider != provider.OpenAI {
		t.Fatalf("defaults not applied: %+v", state)
	}
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	deps, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	meta := session.Meta{SessionID: "room:bob", Room: "room", Sender: "bob"}
	if _, err := deps.Service.Start(context.Background(), meta, session.StartOptions{HumanSide: chess.White}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(mr.Keys()) != 1 {
		t.Fatalf("expected one session key in redis, got %v", mr.Keys())
	}
	if err := deps.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := deps.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := baseConfig()
	cfg.LLMProvider = "mistral"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected provider error")
	}
}

func TestAITurnTimeoutCoversEveryAttempt(t *testing.T) {
	cfg := &config.AppConfig{
		LLMTimeout:          45 * time.Second,
		ChessRetryDelay:     1500 * time.Millisecond,
		ChessFirstMoveDelay: 750 * time.Millisecond,
	}
	worst := 3*cfg.LLMTimeout + 2*cfg.ChessRetryDelay + cfg.ChessFirstMoveDelay
	got := AITurnTimeout(cfg)
	if got <= worst {
		t.Fatalf("turn timeout %v leaves no room after the worst case %v", got, worst)
	}
	if got != worst+aiTurnSlack {
		t.Fatalf("turn timeout = %v, want %v", got, worst+aiTurnSlack)
	}

	cfg.LLMTimeout = 10 * time.Second
	if got := AITurnTimeout(cfg); got != 30*time.Second+3*time.Second+750*time.Millisecond+aiTurnSlack {
		t.Fatalf("timeout should follow LLM_TIMEOUT, got %v", got)
	}
}
