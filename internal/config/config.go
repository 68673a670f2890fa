package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/park285/Cheese-LLMChess-bot/internal/msgcat"
)

type AppConfig struct {
	IrisBaseURL   string
	IrisWSURL     string
	IrisTransport string

	BotPrefix string

	XUserID    string
	XUserEmail string
	XSessionID string

	RedisURL    string
	DatabaseURL string

	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	AllowedRooms []string

	LLMProvider       string
	LLMModel          string
	LLMTimeout        time.Duration
	OpenAIAPIKey      string
	AnthropicAPIKey   string
	GeminiAPIKey      string
	CohereAPIKey      string
	OpenRouterAPIKey  string
	OpenRouterReferer string

	ChessDefaultDifficulty  string
	ChessDefaultTimeControl string
	ChessSessionTTL         time.Duration
	ChessHistoryLimit       int
	ChessPromptHistoryPlies int
	ChessRetryDelay         time.Duration
	ChessFirstMoveDelay     time.Duration
	ChessAllowUndo          bool
	ChessAllowHints         bool

	MsgcatDir string
}

// S3Enabled reports whether PGN files go to object storage.
func (c *AppConfig) S3Enabled() bool {
	return c.S3Endpoint != "" && c.S3Bucket != ""
}

// Load reads the environment, after merging a .env file when one exists.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		IrisTransport:           "auto",
		S3Region:                "us-east-1",
		LLMProvider:             "openai",
		LLMTimeout:              45 * time.Second,
		ChessDefaultDifficulty:  "intermediate",
		ChessDefaultTimeControl: "unlimited",
		ChessSessionTTL:         24 * time.Hour,
		ChessHistoryLimit:       10,
		ChessPromptHistoryPlies: 40,
		ChessRetryDelay:         1500 * time.Millisecond,
		ChessFirstMoveDelay:     750 * time.Millisecond,
		ChessAllowUndo:          true,
		ChessAllowHints:         true,
	}

	cfg.IrisBaseURL = env("IRIS_BASE_URL")
	cfg.IrisWSURL = env("IRIS_WS_URL")
	if v := strings.ToLower(env("IRIS_TRANSPORT")); v != "" {
		cfg.IrisTransport = v
	}
	cfg.BotPrefix = env("BOT_PREFIX")

	cfg.XUserID = env("X_USER_ID")
	cfg.XUserEmail = env("X_USER_EMAIL")
	cfg.XSessionID = env("X_SESSION_ID")

	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")

	cfg.S3Endpoint = env("S3_ENDPOINT")
	if v := env("S3_REGION"); v != "" {
		cfg.S3Region = v
	}
	cfg.S3AccessKey = env("S3_ACCESS_KEY")
	cfg.S3SecretKey = env("S3_SECRET_KEY")
	cfg.S3Bucket = env("S3_BUCKET")
	cfg.S3UseSSL = envBool("S3_USE_SSL", cfg.S3UseSSL)

	cfg.AllowedRooms = splitList(env("ALLOWED_ROOMS"))
	if len(cfg.AllowedRooms) == 0 {
		cfg.AllowedRooms = splitList(env("CHESS_ALLOWED_ROOMS"))
	}

	if v := strings.ToLower(env("LLM_PROVIDER")); v != "" {
		cfg.LLMProvider = v
	}
	cfg.LLMModel = env("LLM_MODEL")
	cfg.LLMTimeout = envDuration("LLM_TIMEOUT", cfg.LLMTimeout)
	cfg.OpenAIAPIKey = env("OPENAI_API_KEY")
	cfg.AnthropicAPIKey = env("ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = env("GEMINI_API_KEY")
	cfg.CohereAPIKey = env("COHERE_API_KEY")
	cfg.OpenRouterAPIKey = env("OPENROUTER_API_KEY")
	cfg.OpenRouterReferer = env("OPENROUTER_REFERER")

	// Chess specific
	if v := env("CHESS_DEFAULT_DIFFICULTY"); v != "" {
		cfg.ChessDefaultDifficulty = v
	}
	if v := env("CHESS_DEFAULT_TIME_CONTROL"); v != "" {
		cfg.ChessDefaultTimeControl = v
	}
	cfg.ChessSessionTTL = envDuration("CHESS_SESSION_TTL", cfg.ChessSessionTTL)
	cfg.ChessHistoryLimit = envInt("CHESS_HISTORY_LIMIT", cfg.ChessHistoryLimit)
	cfg.ChessPromptHistoryPlies = envInt("CHESS_PROMPT_HISTORY_PLIES", cfg.ChessPromptHistoryPlies)
	cfg.ChessRetryDelay = envDuration("CHESS_RETRY_DELAY", cfg.ChessRetryDelay)
	cfg.ChessFirstMoveDelay = envDuration("CHESS_FIRST_MOVE_DELAY", cfg.ChessFirstMoveDelay)
	cfg.ChessAllowUndo = envBool("CHESS_ALLOW_UNDO", cfg.ChessAllowUndo)
	cfg.ChessAllowHints = envBool("CHESS_ALLOW_HINTS", cfg.ChessAllowHints)

	cfg.MsgcatDir = env("MSGCAT_DIR")
	if cfg.MsgcatDir == "" {
		cfg.MsgcatDir = msgcat.DefaultOverrideDir()
	}

	if cfg.IrisBaseURL == "" {
		return nil, errors.New("IRIS_BASE_URL is required")
	}
	if cfg.IrisWSURL == "" {
		return nil, errors.New("IRIS_WS_URL is required")
	}
	if cfg.BotPrefix == "" {
		return nil, errors.New("BOT_PREFIX is required")
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envBool(key string, def bool) bool {
	if v := env(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := env(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// envDuration accepts a Go duration ("90s") or whole seconds ("90").
func envDuration(key string, def time.Duration) time.Duration {
	v := env(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
