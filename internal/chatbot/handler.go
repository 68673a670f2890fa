// Package chatbot turns KakaoTalk chat commands into game session calls
// and sends the formatted results back through Iris.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
	"github.com/park285/Cheese-LLMChess-bot/internal/domain"
	"github.com/park285/Cheese-LLMChess-bot/internal/irisfast"
	"github.com/park285/Cheese-LLMChess-bot/internal/provider"
	"github.com/park285/Cheese-LLMChess-bot/internal/session"
)

const (
	defaultAITimeout = 3 * time.Minute
	// Replies after an AI turn get their own budget; the turn's may be spent.
	aiReplyTimeout = 10 * time.Second
)

// Sessions is the game controller surface the chat commands use.
type Sessions interface {
	Start(ctx context.Context, meta session.Meta, opts session.StartOptions) (*session.State, error)
	Status(ctx context.Context, meta session.Meta) (*session.State, error)
	PlayHuman(ctx context.Context, meta session.Meta, moveText string) (*session.TurnResult, error)
	PlayAI(ctx context.Context, meta session.Meta, ticket session.Ticket) (*session.TurnResult, error)
	Resume(ctx context.Context, meta session.Meta) (*session.State, error)
	Undo(ctx context.Context, meta session.Meta) (*session.State, error)
	Resign(ctx context.Context, meta session.Meta) (*session.TurnResult, error)
	Reset(ctx context.Context, meta session.Meta) (*session.State, error)
	Hint(ctx context.Context, meta session.Meta) ([]string, error)
	Stats(ctx context.Context, meta session.Meta) (*session.Stats, error)
	History(ctx context.Context, meta session.Meta, limit int) ([]*domain.ChessGame, error)
	Game(ctx context.Context, meta session.Meta, gameID int64) (*domain.ChessGame, error)
	Profile(ctx context.Context, meta session.Meta) (*domain.ChessProfile, error)
	UpdateSettings(ctx context.Context, meta session.Meta, opts session.StartOptions) (*domain.ChessProfile, *session.State, error)
}

type Handler struct {
	sessions   Sessions
	egress     irisfast.Egress
	formatter  *Formatter
	prefix     string
	configured func() []provider.ID
	aiTimeout  time.Duration
	async      bool
	wg         sync.WaitGroup
	logger     *zap.Logger
}

type Option func(*Handler)

func WithAITimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.aiTimeout = d
		}
	}
}

// WithSyncAI runs AI turns inline instead of on a goroutine.
func WithSyncAI() Option {
	return func(h *Handler) { h.async = false }
}

// WithConfiguredProviders lists the backends shown by the models command.
func WithConfiguredProviders(fn func() []provider.ID) Option {
	return func(h *Handler) { h.configured = fn }
}

func NewHandler(sessions Sessions, egress irisfast.Egress, formatter *Formatter, prefix string, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		sessions:   sessions,
		egress:     egress,
		formatter:  formatter,
		prefix:     strings.TrimSpace(prefix),
		configured: func() []provider.ID { return nil },
		aiTimeout:  defaultAITimeout,
		async:      true,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Wait blocks until in-flight AI turns finish or ctx ends.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// HandleMessage dispatches one chat message. Messages without the bot
// prefix are ignored.
func (h *Handler) HandleMessage(ctx context.Context, msg *irisfast.Message) {
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Msg)
	if h.prefix == "" || !strings.HasPrefix(text, h.prefix) {
		return
	}
	parts := strings.Fields(strings.TrimPrefix(text, h.prefix))
	if len(parts) == 0 {
		h.reply(ctx, msg.Room, h.formatter.Help())
		return
	}

	switch strings.ToLower(parts[0]) {
	case "help", "도움말":
		h.reply(ctx, msg.Room, h.formatter.Help())
	case "체스", "chess":
		h.handleChess(ctx, msg, parts[1:])
	}
}

func metaFor(msg *irisfast.Message) session.Meta {
	sender := msg.SenderName()
	if sender == "" {
		sender = "player"
	}
	return session.Meta{
		SessionID: fmt.Sprintf("%s:%s", strings.TrimSpace(msg.Room), sender),
		Room:      msg.Room,
		Sender:    sender,
		Name:      msg.DisplayName(),
	}
}

func (h *Handler) handleChess(ctx context.Context, msg *irisfast.Message, args []string) {
	meta := metaFor(msg)
	room := msg.Room
	if len(args) == 0 {
		h.reply(ctx, room, h.formatter.Help())
		return
	}
	sub := strings.ToLower(strings.TrimSpace(args[0]))
	rest := args[1:]

	switch sub {
	case "시작", "start":
		opts, bad := parseStartOptions(rest)
		if bad != "" {
			h.reply(ctx, room, h.formatter.BadOption(bad))
			return
		}
		state, err := h.sessions.Start(ctx, meta, opts)
		if errors.Is(err, session.ErrSessionInProgress) && state != nil {
			h.reply(ctx, room, h.formatter.Start(state, true))
			return
		}
		if h.fail(ctx, room, "start", err) {
			return
		}
		h.reply(ctx, room, h.formatter.Start(state, false))
		h.scheduleAI(meta, room, state.Pending)
	case "현황", "status":
		state, err := h.sessions.Status(ctx, meta)
		if h.fail(ctx, room, "status", err) {
			return
		}
		h.reply(ctx, room, h.formatter.Status(state))
	case "무르기", "undo":
		state, err := h.sessions.Undo(ctx, meta)
		if h.fail(ctx, room, "undo", err) {
			return
		}
		h.reply(ctx, room, h.formatter.Undo(state))
	case "기권", "resign":
		turn, err := h.sessions.Resign(ctx, meta)
		if h.fail(ctx, room, "resign", err) {
			return
		}
		h.reply(ctx, room, "🏳️ 기권 처리되었습니다.\n"+h.formatter.Finished(turn.State))
	case "리셋", "reset":
		state, err := h.sessions.Reset(ctx, meta)
		if h.fail(ctx, room, "reset", err) {
			return
		}
		h.reply(ctx, room, h.formatter.Reset(state))
		h.scheduleAI(meta, room, state.Pending)
	case "재개", "resume":
		state, err := h.sessions.Resume(ctx, meta)
		if h.fail(ctx, room, "resume", err) {
			return
		}
		if state.Pending == nil {
			h.reply(ctx, room, h.formatter.Status(state))
			return
		}
		h.reply(ctx, room, h.formatter.turnLine(state))
		h.scheduleAI(meta, room, state.Pending)
	case "힌트", "hint":
		moves, err := h.sessions.Hint(ctx, meta)
		if h.fail(ctx, room, "hint", err) {
			return
		}
		h.reply(ctx, room, h.formatter.Hint(moves))
	case "통계", "stats":
		st, err := h.sessions.Stats(ctx, meta)
		if h.fail(ctx, room, "stats", err) {
			return
		}
		h.reply(ctx, room, h.formatter.Stats(st))
	case "기록", "history":
		limit := 0
		if len(rest) > 0 {
			if n, err := strconv.Atoi(rest[0]); err == nil && n > 0 {
				limit = n
			}
		}
		games, err := h.sessions.History(ctx, meta, limit)
		if h.fail(ctx, room, "history", err) {
			return
		}
		h.reply(ctx, room, h.formatter.History(games))
	case "기보", "game":
		if len(rest) == 0 {
			h.reply(ctx, room, fmt.Sprintf("용법: %s체스 기보 <ID>", h.prefix))
			return
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(rest[0], "#"), 10, 64)
		if err != nil {
			h.reply(ctx, room, h.formatter.BadOption(rest[0]))
			return
		}
		game, err := h.sessions.Game(ctx, meta, id)
		if h.fail(ctx, room, "game", err) {
			return
		}
		h.reply(ctx, room, h.formatter.Game(game))
	case "프로필", "profile":
		profile, err := h.sessions.Profile(ctx, meta)
		if h.fail(ctx, room, "profile", err) {
			return
		}
		h.reply(ctx, room, h.formatter.Profile(profile))
	case "설정", "settings":
		opts, bad := parseSettings(rest)
		if bad != "" {
			h.reply(ctx, room, h.formatter.BadOption(bad))
			return
		}
		profile, state, err := h.sessions.UpdateSettings(ctx, meta, opts)
		if h.fail(ctx, room, "settings", err) {
			return
		}
		h.reply(ctx, room, h.formatter.SettingsUpdated(profile, state))
	case "모델", "models":
		h.reply(ctx, room, h.formatter.Models(provider.OpenRouterCatalog(), h.configured()))
	default:
		turn, err := h.sessions.PlayHuman(ctx, meta, args[0])
		if h.fail(ctx, room, "play", err) {
			return
		}
		h.reply(ctx, room, h.formatter.HumanMove(turn))
		if !turn.Finished {
			h.scheduleAI(meta, room, turn.State.Pending)
		}
	}
}

// scheduleAI runs the claimed AI turn. Its context is detached from the
// chat message so a slow provider is not cut off by the ingress loop.
func (h *Handler) scheduleAI(meta session.Meta, room string, ticket *session.Ticket) {
	if ticket == nil {
		return
	}
	t := *ticket
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.aiTimeout)
		defer cancel()
		h.playAI(ctx, meta, room, t)
	}
	if !h.async {
		run()
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		run()
	}()
}

func (h *Handler) playAI(ctx context.Context, meta session.Meta, room string, ticket session.Ticket) {
	turn, err := h.sessions.PlayAI(ctx, meta, ticket)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), aiReplyTimeout)
	defer cancel()
	switch {
	case errors.Is(err, session.ErrStaleGeneration):
		h.logger.Info("ai_result_discarded",
			zap.String("session_id", ticket.SessionID),
			zap.Int64("generation", ticket.Generation),
		)
		return
	case err != nil:
		h.logger.Error("ai_turn_failed", zap.String("room", room), zap.Error(err))
		h.reply(ctx, room, h.formatter.AIFailed())
		return
	}
	if turn.FallbackErr != nil {
		h.logger.Warn("ai_fallback_move", zap.String("room", room), zap.Error(turn.FallbackErr))
	}
	h.reply(ctx, room, h.formatter.AIMove(turn))
}

// fail replies with the mapped error text and reports whether err was set.
func (h *Handler) fail(ctx context.Context, room, op string, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, session.ErrRoomNotAllowed) {
		return true
	}
	h.logger.Debug("chess_command_failed", zap.String("op", op), zap.String("room", room), zap.Error(err))
	h.reply(ctx, room, h.formatter.Error(err))
	return true
}

func (h *Handler) reply(ctx context.Context, room, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := h.egress.SendText(ctx, room, text); err != nil {
		h.logger.Warn("reply_failed", zap.String("room", room), zap.Error(err))
	}
}

// parseStartOptions accepts side, difficulty, provider and time control in
// any order. The first unknown token is returned.
func parseStartOptions(args []string) (session.StartOptions, string) {
	var opts session.StartOptions
	for _, arg := range args {
		if side, err := chess.ParseSide(arg); err == nil {
			opts.HumanSide = side
			continue
		}
		if p, err := chess.GetProfile(arg); err == nil {
			opts.Difficulty = p.Name
			continue
		}
		if id, err := provider.ParseID(arg); err == nil {
			opts.Provider = id
			continue
		}
		if tc, err := chess.ParseTimeControl(arg); err == nil {
			opts.TimeControl = tc.Name
			continue
		}
		return opts, arg
	}
	return opts, ""
}

// parseSettings reads "<difficulty> [provider] [model]".
func parseSettings(args []string) (session.StartOptions, string) {
	var opts session.StartOptions
	if len(args) == 0 {
		return opts, "-"
	}
	for i, arg := range args {
		if p, err := chess.GetProfile(arg); err == nil && opts.Difficulty == "" {
			opts.Difficulty = p.Name
			continue
		}
		if id, err := provider.ParseID(arg); err == nil && opts.Provider == "" {
			opts.Provider = id
			continue
		}
		if opts.Provider != "" && i == len(args)-1 {
			opts.Model = resolveModelArg(arg)
			continue
		}
		return opts, arg
	}
	return opts, ""
}

func resolveModelArg(arg string) string {
	if m, ok := provider.LookupCatalogModel(arg); ok {
		return m.ID
	}
	return arg
}
