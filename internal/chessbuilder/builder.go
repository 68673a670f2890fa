// Package chessbuilder wires storage, providers and the session controller
// from AppConfig.
package chessbuilder

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/Cheese-LLMChess-bot/internal/arbiter"
	"github.com/park285/Cheese-LLMChess-bot/internal/archive"
	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
	"github.com/park285/Cheese-LLMChess-bot/internal/config"
	"github.com/park285/Cheese-LLMChess-bot/internal/msgcat"
	"github.com/park285/Cheese-LLMChess-bot/internal/prompt"
	"github.com/park285/Cheese-LLMChess-bot/internal/provider"
	"github.com/park285/Cheese-LLMChess-bot/internal/session"
)

type Deps struct {
	Service  *session.Service
	Engine   *arbiter.Engine
	Catalog  *msgcat.Catalog
	Keyring  provider.Keyring
	Registry *provider.Registry

	redis *redis.Client
	db    *sql.DB
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := &Deps{}
	ok := false
	defer func() {
		if !ok {
			_ = deps.Close()
		}
	}()

	cat, err := msgcat.New(cfg.MsgcatDir)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	deps.Catalog = cat

	// Session store (Redis optional)
	var store session.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, perr := parseRedisURL(cfg.RedisURL)
		if perr != nil {
			return nil, fmt.Errorf("parse redis url: %w", perr)
		}
		deps.redis = redis.NewClient(opts)
		if err := deps.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		store = session.NewRedisStore(deps.redis, cfg.ChessSessionTTL)
	} else {
		logger.Warn("session_store_in_memory", zap.String("reason", "REDIS_URL not set"))
		store = session.NewMemoryStore(cfg.ChessSessionTTL)
	}

	// Finished games (Postgres optional)
	var repo archive.Repository
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		deps.db, err = archive.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := archive.Migrate(ctx, deps.db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		repo = archive.NewRepository(deps.db)
	} else {
		logger.Warn("game_archive_in_memory", zap.String("reason", "DATABASE_URL not set"))
		repo = archive.NewMemoryRepository()
	}

	var pgn archive.PGNStore
	if cfg.S3Enabled() {
		s3, err := archive.NewS3PGNStore(archive.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init pgn store: %w", err)
		}
		pgn = s3
	}
	recorder, err := archive.NewRecorder(repo, pgn, logger)
	if err != nil {
		return nil, err
	}

	// Providers
	deps.Keyring = KeyringFromConfig(cfg)
	deps.Registry, err = provider.NewRegistry(provider.Options{
		Timeout:           cfg.LLMTimeout,
		GeminiHTTPClient:  &http.Client{Timeout: cfg.LLMTimeout},
		OpenRouterReferer: cfg.OpenRouterReferer,
	})
	if err != nil {
		return nil, fmt.Errorf("init providers: %w", err)
	}
	if len(deps.Keyring.Configured()) == 0 {
		logger.Warn("no_llm_credentials", zap.String("hint", "every AI move will be a random legal move"))
	}

	prompts, err := prompt.NewBuilder(cat, prompt.WithHistoryPlies(cfg.ChessPromptHistoryPlies))
	if err != nil {
		return nil, err
	}
	oracle := chess.NewOracle()
	deps.Engine, err = arbiter.NewEngine(prompts, deps.Registry, oracle,
		arbiter.WithRetryDelay(cfg.ChessRetryDelay),
		arbiter.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	defaultProvider, err := provider.ParseID(cfg.LLMProvider)
	if err != nil {
		return nil, fmt.Errorf("LLM_PROVIDER: %w", err)
	}
	svcCfg := session.Config{
		DefaultDifficulty:  cfg.ChessDefaultDifficulty,
		DefaultProvider:    defaultProvider,
		DefaultModel:       cfg.LLMModel,
		DefaultTimeControl: cfg.ChessDefaultTimeControl,
		HistoryLimit:       cfg.ChessHistoryLimit,
		AllowedRooms:       append([]string(nil), cfg.AllowedRooms...),
		AllowUndo:          cfg.ChessAllowUndo,
		AllowHints:         cfg.ChessAllowHints,
		FirstMoveDelay:     cfg.ChessFirstMoveDelay,
	}
	deps.Service, err = session.NewService(store, deps.Engine, oracle, recorder, deps.Keyring, svcCfg, logger)
	if err != nil {
		return nil, err
	}

	ok = true
	return deps, nil
}

// aiTurnSlack covers prompt building, store round trips and the reply.
const aiTurnSlack = 15 * time.Second

// AITurnTimeout bounds one AI turn: every provider attempt may run to
// LLMTimeout, with the retry waits and the opening delay in between.
func AITurnTimeout(cfg *config.AppConfig) time.Duration {
	attempts := time.Duration(arbiter.DefaultMaxAttempts)
	return attempts*cfg.LLMTimeout +
		(attempts-1)*cfg.ChessRetryDelay +
		cfg.ChessFirstMoveDelay +
		aiTurnSlack
}

// KeyringFromConfig collects the configured API keys.
func KeyringFromConfig(cfg *config.AppConfig) provider.Keyring {
	return provider.Keyring{
		provider.OpenAI:     cfg.OpenAIAPIKey,
		provider.Claude:     cfg.AnthropicAPIKey,
		provider.Google:     cfg.GeminiAPIKey,
		provider.Cohere:     cfg.CohereAPIKey,
		provider.OpenRouter: cfg.OpenRouterAPIKey,
	}
}

// Close releases the Redis and Postgres handles.
func (d *Deps) Close() error {
	var result *multierror.Error
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close redis: %w", err))
		}
		d.redis = nil
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close postgres: %w", err))
		}
		d.db = nil
	}
	return result.ErrorOrNil()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := u.Port()
	if portStr == "" {
		portStr = "6379"
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return nil, err
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{
		Addr:     host + ":" + portStr,
		Username: u.User.Username(),
		Password: pass,
		DB:       db,
	}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}
	return opts, nil
}
