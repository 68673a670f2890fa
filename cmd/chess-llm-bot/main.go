package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-LLMChess-bot/internal/chatbot"
	"github.com/park285/Cheese-LLMChess-bot/internal/chessbuilder"
	appcfg "github.com/park285/Cheese-LLMChess-bot/internal/config"
	"github.com/park285/Cheese-LLMChess-bot/internal/irisfast"
	"github.com/park285/Cheese-LLMChess-bot/internal/obslog"
	"github.com/park285/Cheese-LLMChess-bot/internal/provider"
)

const shutdownGrace = 15 * time.Second

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := chessbuilder.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("chess_init_error", zap.Error(err))
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("deps_close_failed", zap.Error(err))
		}
	}()

	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.XUserID != "" {
			h["X-User-Id"] = cfg.XUserID
		}
		if cfg.XUserEmail != "" {
			h["X-User-Email"] = cfg.XUserEmail
		}
		if cfg.XSessionID != "" {
			h["X-Session-Id"] = cfg.XSessionID
		}
		return h
	}

	client := irisfast.NewClient(cfg.IrisBaseURL, irisfast.WithHeaderProvider(headers))

	ws := irisfast.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
	ws.SetHeaderProvider(headers)
	ws.SetLogger(logger)
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		logger.Info("ws_state", zap.String("state", string(state)))
	})

	egress := irisfast.NewEgress(cfg.IrisTransport, false, client, ws, logger)
	formatter := chatbot.NewFormatter(deps.Catalog, cfg.BotPrefix)
	handler := chatbot.NewHandler(deps.Service, egress, formatter, cfg.BotPrefix, logger,
		chatbot.WithAITimeout(chessbuilder.AITurnTimeout(cfg)),
		chatbot.WithConfiguredProviders(func() []provider.ID { return deps.Keyring.Configured() }),
	)

	ws.OnMessage(func(msg *irisfast.Message) {
		if msg == nil || msg.Msg == "" {
			return
		}
		// Avoid blocking the WS loop
		go handler.HandleMessage(ctx, msg)
	})

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := ws.Connect(cctx); err != nil {
		cancel()
		logger.Fatal("ws_connect_error", zap.Error(err))
	}
	cancel()
	logger.Info("bot_started",
		zap.String("prefix", cfg.BotPrefix),
		zap.String("transport", cfg.IrisTransport),
		zap.Int("allowed_rooms", len(cfg.AllowedRooms)),
	)

	<-ctx.Done()
	logger.Info("bot_stopping")

	sctx, scancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer scancel()
	if err := handler.Wait(sctx); err != nil {
		logger.Warn("ai_turns_not_drained", zap.Error(err))
	}
	_ = ws.Close(sctx)
}
