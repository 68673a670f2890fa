package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Cheese-LLMChess-bot/internal/arbiter"
	"github.com/park285/Cheese-LLMChess-bot/internal/archive"
	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
	"github.com/park285/Cheese-LLMChess-bot/internal/domain"
	"github.com/park285/Cheese-LLMChess-bot/internal/provider"
)

const (
	maxHistoryLimit       = 50
	defaultFirstMoveDelay = 750 * time.Millisecond
	// A claimed AI turn older than this may be claimed again.
	staleThinkingAfter = 2 * time.Minute
	playerLabelLimit   = 24

	// Bookkeeping after the engine returns may outlive the caller's deadline.
	detachedWriteTimeout = 5 * time.Second
)

// MoveChooser picks the AI move for a position.
type MoveChooser interface {
	ChooseMove(ctx context.Context, req arbiter.Request) (arbiter.Outcome, error)
}

// Archive stores finished games and player profiles.
type Archive interface {
	Record(ctx context.Context, game *domain.ChessGame) (int64, *domain.ChessProfile, int, error)
	RecentGames(ctx context.Context, playerHash string, limit int) ([]*domain.ChessGame, error)
	Game(ctx context.Context, id int64, playerHash string) (*domain.ChessGame, error)
	Profile(ctx context.Context, playerHash, roomHash string) (*domain.ChessProfile, error)
	SavePreferences(ctx context.Context, playerHash, roomHash, difficulty, provider string) (*domain.ChessProfile, error)
}

type CredentialSource interface {
	Credentials(id provider.ID) string
}

type Config struct {
	DefaultDifficulty  string
	DefaultProvider    provider.ID
	DefaultModel       string
	DefaultTimeControl string
	HistoryLimit       int
	AllowedRooms       []string
	AllowUndo          bool
	AllowHints         bool
	FirstMoveDelay     time.Duration
}

// Service is the game session controller. It owns turn state: a human move
// claims the AI turn and returns a Ticket, and only PlayAI with a ticket
// matching the stored generation may commit the AI reply.
type Service struct {
	store        Store
	engine       MoveChooser
	oracle       chess.Oracle
	archive      Archive
	creds        CredentialSource
	cfg          Config
	allowedRooms map[string]struct{}
	logger       *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(store Store, engine MoveChooser, oracle chess.Oracle, archive Archive, creds CredentialSource, cfg Config, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("move engine is required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("rules oracle is required")
	}
	if archive == nil {
		return nil, fmt.Errorf("game archive is required")
	}
	if creds == nil {
		creds = provider.Keyring{}
	}

	defaultDifficulty := strings.TrimSpace(cfg.DefaultDifficulty)
	if defaultDifficulty == "" {
		defaultDifficulty = chess.DefaultProfileName
	}
	profile, err := chess.GetProfile(defaultDifficulty)
	if err != nil {
		return nil, fmt.Errorf("default difficulty validation failed: %w", err)
	}
	cfg.DefaultDifficulty = profile.Name

	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = provider.OpenAI
	}
	if _, err := provider.ParseID(string(cfg.DefaultProvider)); err != nil {
		return nil, fmt.Errorf("default provider validation failed: %w", err)
	}
	if _, err := chess.ParseTimeControl(cfg.DefaultTimeControl); err != nil {
		return nil, fmt.Errorf("default time control validation failed: %w", err)
	}
	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > maxHistoryLimit {
		cfg.HistoryLimit = 10
	}
	if cfg.FirstMoveDelay < 0 {
		cfg.FirstMoveDelay = defaultFirstMoveDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allowedRooms := make(map[string]struct{})
	for _, room := range cfg.AllowedRooms {
		normalized := strings.ToLower(strings.TrimSpace(room))
		if normalized == "" {
			continue
		}
		allowedRooms[normalized] = struct{}{}
	}
	cfg.AllowedRooms = append([]string(nil), cfg.AllowedRooms...)

	return &Service{
		store:        store,
		engine:       engine,
		oracle:       oracle,
		archive:      archive,
		creds:        creds,
		cfg:          cfg,
		allowedRooms: allowedRooms,
		logger:       logger,
		now:          time.Now,
		sleep:        sleepContext,
	}, nil
}

// Start opens a new game. An existing game is returned with ErrSessionInProgress.
// When the human plays black the returned state carries the AI's Pending ticket.
func (s *Service) Start(ctx context.Context, meta Meta, opts StartOptions) (*State, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	id := deriveIdentity(meta)

	existing, err := s.store.Load(ctx, id.SessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.stateFrom(id.SessionID, existing), ErrSessionInProgress
	}

	p, err := s.newPayload(ctx, id, meta, opts)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, id.SessionID, p, 0); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrSessionInProgress
		}
		return nil, err
	}
	s.logger.Info("session_started",
		zap.String("session_id", id.SessionID),
		zap.String("session_uuid", p.SessionUUID),
		zap.String("difficulty", p.Difficulty),
		zap.String("provider", string(p.Provider)),
		zap.String("human_side", string(p.HumanSide)),
	)
	return s.stateFrom(id.SessionID, p), nil
}

func (s *Service) newPayload(ctx context.Context, id identity, meta Meta, opts StartOptions) (*Payload, error) {
	var profile *domain.ChessProfile
	if p, err := s.archive.Profile(ctx, id.PlayerHash, id.RoomHash); err == nil {
		profile = p
	} else {
		s.logger.Warn("profile_lookup_failed", zap.Error(err))
	}

	difficulty := strings.TrimSpace(opts.Difficulty)
	if difficulty == "" && profile != nil {
		difficulty = profile.PreferredDifficulty
	}
	if difficulty == "" {
		difficulty = s.cfg.DefaultDifficulty
	}
	dp, err := chess.GetProfile(difficulty)
	if err != nil {
		return nil, err
	}

	pid := opts.Provider
	if pid == "" && profile != nil && profile.PreferredProvider != "" {
		if parsed, err := provider.ParseID(profile.PreferredProvider); err == nil {
			pid = parsed
		}
	}
	if pid == "" {
		pid = s.cfg.DefaultProvider
	}
	if s.creds.Credentials(pid) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoCredentials, pid)
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" && pid == s.cfg.DefaultProvider {
		model = s.cfg.DefaultModel
	}

	side := opts.HumanSide
	if !side.Valid() {
		side = chess.White
	}
	tcRaw := opts.TimeControl
	if strings.TrimSpace(tcRaw) == "" {
		tcRaw = s.cfg.DefaultTimeControl
	}
	tc, err := chess.ParseTimeControl(tcRaw)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &Payload{
		SessionUUID:   uuid.NewString(),
		PlayerHash:    id.PlayerHash,
		RoomHash:      id.RoomHash,
		PlayerName:    normalizePlayerLabel(firstNonEmpty(meta.Name, meta.Sender)),
		Difficulty:    dp.Name,
		Provider:      pid,
		Model:         model,
		HumanSide:     side,
		TimeControl:   tc,
		Clock:         chess.NewClock(tc),
		Position:      chess.NewPosition(),
		History:       []HistoryEntry{},
		TurnStartedAt: now,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	if p.Position.Turn() != side {
		p.Thinking = true
		p.ThinkingSince = now
	}
	return p, nil
}

func (s *Service) Status(ctx context.Context, meta Meta) (*State, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	id := deriveIdentity(meta)
	p, err := s.load(ctx, id.SessionID)
	if err != nil {
		return nil, err
	}
	state := s.stateFrom(id.SessionID, p)
	if profile, err := s.archive.Profile(ctx, id.PlayerHash, id.RoomHash); err == nil {
		state.Profile = profile
	}
	return state, nil
}

// PlayHuman applies the player's move and claims the AI turn.
func (s *Service) PlayHuman(ctx context.Context, meta Meta, moveText string) (*TurnResult, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(moveText)
	if text == "" {
		return nil, ErrInvalidMove
	}

	id := deriveIdentity(meta)
	p, err := s.load(ctx, id.SessionID)
	if err != nil {
		return nil, err
	}
	if p.Thinking {
		return nil, ErrAIThinking
	}
	if p.Position.Turn() != p.HumanSide {
		return nil, ErrNotYourTurn
	}

	now := s.now()
	elapsed := now.Sub(p.TurnStartedAt)
	clock, flagged := p.Clock.Charge(p.TimeControl, p.HumanSide, elapsed)
	p.Clock = clock
	if flagged {
		return s.finish(ctx, id, p, chess.ReasonTimeout, p.aiSide(), &TurnResult{})
	}

	res, err := s.oracle.Apply(p.Position, text)
	if err != nil {
		if errors.Is(err, chess.ErrGameOver) {
			return nil, fmt.Errorf("%w: game already finished", ErrInvalidMove)
		}
		return nil, err
	}
	if !res.Accepted {
		return nil, ErrInvalidMove
	}

	entry := HistoryEntry{
		Ply:     p.Position.Ply() + 1,
		SAN:     res.SAN,
		UCI:     res.UCI,
		Mover:   MoverHuman,
		FEN:     res.Position.FEN,
		Elapsed: elapsed,
		Capture: res.Capture,
		Check:   res.Check,
		Castle:  res.Castle,
	}
	p.Position = res.Position
	p.History = append(p.History, entry)
	p.UpdatedAt = now

	turn := &TurnResult{Human: &entry}
	if res.Terminal {
		return s.finish(ctx, id, p, res.Reason, res.Winner, turn)
	}

	p.Thinking = true
	p.ThinkingSince = now
	if err := s.save(ctx, id.SessionID, p); err != nil {
		return nil, err
	}
	turn.State = s.stateFrom(id.SessionID, p)
	return turn, nil
}

// PlayAI runs arbitration for a claimed turn. The reply is discarded with
// ErrStaleGeneration when the session moved on while the provider was busy.
func (s *Service) PlayAI(ctx context.Context, meta Meta, ticket Ticket) (*TurnResult, error) {
	id := deriveIdentity(meta)
	if ticket.SessionID == "" {
		ticket.SessionID = id.SessionID
	}
	p, err := s.store.Load(ctx, ticket.SessionID)
	if err != nil {
		return nil, err
	}
	if !ticketMatches(p, ticket) || !p.Thinking {
		s.logStale(ticket, p)
		return nil, ErrStaleGeneration
	}

	if p.Position.Ply() == 0 && s.cfg.FirstMoveDelay > 0 {
		if err := s.sleep(ctx, s.cfg.FirstMoveDelay); err != nil {
			s.releaseTurn(ctx, ticket)
			return nil, err
		}
	}

	profile, err := chess.GetProfile(p.Difficulty)
	if err != nil {
		profile, _ = chess.GetProfile(s.cfg.DefaultDifficulty)
	}
	out, err := s.engine.ChooseMove(ctx, arbiter.Request{
		Position:    p.Position,
		History:     sanHistory(p.History),
		Provider:    p.Provider,
		Credentials: s.creds.Credentials(p.Provider),
		Model:       p.Model,
		Profile:     profile,
		Side:        p.aiSide(),
	})
	if err != nil {
		s.logger.Error("ai_move_failed", zap.String("session_id", ticket.SessionID), zap.Int64("generation", ticket.Generation), zap.Error(err))
		s.releaseTurn(ctx, ticket)
		return nil, err
	}

	// The move exists now; record it even if ctx ran out while choosing.
	ctx, cancel := detached(ctx)
	defer cancel()

	current, err := s.store.Load(ctx, ticket.SessionID)
	if err != nil {
		return nil, err
	}
	if !ticketMatches(current, ticket) {
		s.logStale(ticket, current)
		return nil, ErrStaleGeneration
	}

	res, err := s.oracle.Apply(current.Position, out.Move)
	if err == nil && !res.Accepted {
		err = fmt.Errorf("apply ai move %q: rejected by rules oracle", out.Move)
	}
	if err != nil {
		s.logger.Error("ai_move_rejected", zap.String("session_id", ticket.SessionID), zap.String("move", out.Move), zap.Error(err))
		s.releaseTurn(ctx, ticket)
		return nil, err
	}

	now := s.now()
	entry := HistoryEntry{
		Ply:      current.Position.Ply() + 1,
		SAN:      res.SAN,
		UCI:      res.UCI,
		Mover:    MoverAI,
		FEN:      res.Position.FEN,
		Provider: out.ProviderID,
		Elapsed:  out.Duration,
		Fallback: out.UsedFallback,
		Method:   out.Method,
		Attempts: out.Attempts,
		Capture:  res.Capture,
		Check:    res.Check,
		Castle:   res.Castle,
	}
	current.Position = res.Position
	current.History = append(current.History, entry)
	current.Thinking = false
	current.ThinkingSince = time.Time{}
	current.TurnStartedAt = now
	current.UpdatedAt = now

	turn := &TurnResult{AI: &entry}
	if out.UsedFallback {
		turn.FallbackErr = out.Err
	}

	clock, flagged := current.Clock.Charge(current.TimeControl, current.aiSide(), out.Duration)
	current.Clock = clock
	if flagged && !res.Terminal {
		return s.finishClaimed(ctx, id, ticket, current, chess.ReasonTimeout, current.HumanSide, turn)
	}
	if res.Terminal {
		return s.finishClaimed(ctx, id, ticket, current, res.Reason, res.Winner, turn)
	}

	if err := s.store.Save(ctx, ticket.SessionID, current, ticket.Generation); err != nil {
		if errors.Is(err, ErrConflict) {
			s.logStale(ticket, nil)
			return nil, ErrStaleGeneration
		}
		return nil, err
	}
	turn.State = s.stateFrom(ticket.SessionID, current)
	return turn, nil
}

// Resume claims the AI turn again when it is the AI's move and no live claim
// exists, e.g. after a failed provider call or a restart.
func (s *Service) Resume(ctx context.Context, meta Meta) (*State, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	id := deriveIdentity(meta)
	p, err := s.load(ctx, id.SessionID)
	if err != nil {
		return nil, err
	}
	if p.Position.Turn() != p.aiSide() {
		return s.stateFrom(id.SessionID, p), nil
	}
	if p.Thinking && s.now().Sub(p.ThinkingSince) < staleThinkingAfter {
		return nil, ErrAIThinking
	}
	p.Thinking = true
	p.ThinkingSince = s.now()
	if err := s.save(ctx, id.SessionID, p); err != nil {
		return nil, err
	}
	return s.stateFrom(id.SessionID, p), nil
}

// Undo takes back the player's last move and any AI reply after it. It also
// invalidates a pending AI turn.
func (s *Service) Undo(ctx context.Context, meta Meta) (*State, error) {
	if !s.cfg.AllowUndo {
		return nil, ErrUndoDisabled
	}
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	id := deriveIdentity(meta)
	p, err := s.load(ctx, id.SessionID)
	if err != nil {
		return nil, err
	}

	cut := len(p.History)
	for cut > 0 && p.History[cut-1].Mover == MoverAI {
		cut--
	}
	if cut == 0 {
		return nil, ErrUndoNotAvailable
	}
	cut--

	pos, err := p.Position.Truncate(cut)
	if err != nil {
		return nil, err
	}
	p.Position = pos
	p.History = append([]HistoryEntry(nil), p.History[:cut]...)
	p.Thinking = false
	p.ThinkingSince = time.Time{}
	p.TurnStartedAt = s.now()
	p.UpdatedAt = s.now()

	if err := s.save(ctx, id.SessionID, p); err != nil {
		return nil, err
	}
	return s.stateFrom(id.SessionID, p), nil
}

func (s *Service) Resign(ctx context.Context, meta Meta) (*TurnResult, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	id := deriveIdentity(meta)
	p, err := s.load(ctx, id.SessionID)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, id, p, chess.ReasonResignation, p.aiSide(), &TurnResult{})
}

// Reset abandons the current game and starts a fresh board with the same
// settings. The new game gets a new uuid and a higher generation.
func (s *Service) Reset(ctx context.Context, meta Meta) (*State, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	id := deriveIdentity(meta)
	old, err := s.load(ctx, id.SessionID)
	if err != nil {
		return nil, err
	}
	p, err := s.newPayload(ctx, id, meta, StartOptions{
		Difficulty:  old.Difficulty,
		Provider:    old.Provider,
		Model:       old.Model,
		HumanSide:   old.HumanSide,
		TimeControl: old.TimeControl.Name,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, id.SessionID, p, old.Generation); err != nil {
		return nil, err
	}
	s.logger.Info("session_reset",
		zap.String("session_id", id.SessionID),
		zap.String("old_session_uuid", old.SessionUUID),
		zap.String("session_uuid", p.SessionUUID),
		zap.Int64("generation", p.Generation),
	)
	return s.stateFrom(id.SessionID, p), nil
}

// Hint lists the player's legal moves.
func (s *Service) Hint(ctx context.Context, meta Meta) ([]string, error) {
	if !s.cfg.AllowHints {
		return nil, ErrHintsDisabled
	}
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	id := deriveIdentity(meta)
	p, err := s.load(ctx, id.SessionID)
	if err != nil {
		return nil, err
	}
	if p.Thinking {
		return nil, ErrAIThinking
	}
	if p.Position.Turn() != p.HumanSide {
		return nil, ErrNotYourTurn
	}
	return s.oracle.LegalMoves(p.Position)
}

func (s *Service) Stats(ctx context.Context, meta Meta) (*Stats, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	id := deriveIdentity(meta)
	p, err := s.load(ctx, id.SessionID)
	if err != nil {
		return nil, err
	}
	return computeStats(p)
}

// UpdateSettings stores difficulty and provider preferences and applies them
// to the running game, if any.
func (s *Service) UpdateSettings(ctx context.Context, meta Meta, opts StartOptions) (*domain.ChessProfile, *State, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, nil, err
	}
	id := deriveIdentity(meta)

	difficulty := ""
	if strings.TrimSpace(opts.Difficulty) != "" {
		dp, err := chess.GetProfile(opts.Difficulty)
		if err != nil {
			return nil, nil, err
		}
		difficulty = dp.Name
	}
	if opts.Provider != "" && s.creds.Credentials(opts.Provider) == "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoCredentials, opts.Provider)
	}

	profile, err := s.archive.SavePreferences(ctx, id.PlayerHash, id.RoomHash, difficulty, string(opts.Provider))
	if err != nil {
		return nil, nil, err
	}

	p, err := s.store.Load(ctx, id.SessionID)
	if err != nil || p == nil {
		return profile, nil, err
	}
	if p.Thinking {
		return profile, s.stateFrom(id.SessionID, p), ErrAIThinking
	}
	if difficulty != "" {
		p.Difficulty = difficulty
	}
	if opts.Provider != "" {
		if opts.Provider != p.Provider {
			p.Model = ""
		}
		p.Provider = opts.Provider
	}
	if m := strings.TrimSpace(opts.Model); m != "" {
		p.Model = m
	}
	p.UpdatedAt = s.now()
	if err := s.save(ctx, id.SessionID, p); err != nil {
		return profile, nil, err
	}
	return profile, s.stateFrom(id.SessionID, p), nil
}

func (s *Service) History(ctx context.Context, meta Meta, limit int) ([]*domain.ChessGame, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	id := deriveIdentity(meta)
	return s.archive.RecentGames(ctx, id.PlayerHash, limit)
}

func (s *Service) Game(ctx context.Context, meta Meta, gameID int64) (*domain.ChessGame, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	id := deriveIdentity(meta)
	game, err := s.archive.Game(ctx, gameID, id.PlayerHash)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	return game, nil
}

func (s *Service) Profile(ctx context.Context, meta Meta) (*domain.ChessProfile, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	id := deriveIdentity(meta)
	return s.archive.Profile(ctx, id.PlayerHash, id.RoomHash)
}

func (s *Service) finish(ctx context.Context, id identity, p *Payload, reason chess.TerminalReason, winner chess.Side, turn *TurnResult) (*TurnResult, error) {
	return s.finishClaimed(ctx, id, Ticket{SessionID: id.SessionID, SessionUUID: p.SessionUUID, Generation: p.Generation}, p, reason, winner, turn)
}

// finishClaimed records the game and removes the session, provided the
// stored generation still matches ticket.
func (s *Service) finishClaimed(ctx context.Context, id identity, ticket Ticket, p *Payload, reason chess.TerminalReason, winner chess.Side, turn *TurnResult) (*TurnResult, error) {
	// Closing the session through a CAS write keeps a concurrent Undo or
	// Reset from being overwritten by the final position.
	p.Thinking = false
	if err := s.store.Save(ctx, ticket.SessionID, p, ticket.Generation); err != nil {
		if errors.Is(err, ErrConflict) {
			s.logStale(ticket, nil)
			return nil, ErrStaleGeneration
		}
		return nil, err
	}

	now := s.now()
	result := humanResult(p.HumanSide, winner)
	white, black := s.playerLabels(p)
	pgn, err := chess.PGN(p.Position, map[string]string{
		"Event": "Cheese LLM Chess",
		"Site":  "KakaoTalk",
		"Date":  p.StartedAt.Format("2006.01.02"),
		"White": white,
		"Black": black,
	}, reason, winner)
	if err != nil {
		s.logger.Warn("pgn_export_failed", zap.String("session_uuid", p.SessionUUID), zap.Error(err))
	}

	stats, _ := computeStats(p)
	game := &domain.ChessGame{
		SessionUUID:  p.SessionUUID,
		PlayerHash:   p.PlayerHash,
		RoomHash:     p.RoomHash,
		Difficulty:   p.Difficulty,
		Provider:     string(p.Provider),
		Model:        provider.ResolveModel(p.Provider, p.Model, tierOf(p.Difficulty)),
		HumanSide:    string(p.HumanSide),
		TimeControl:  p.TimeControl.Name,
		Result:       result,
		ResultMethod: string(reason),
		MovesUCI:     append([]string(nil), p.Position.Moves...),
		MovesSAN:     sanHistory(p.History),
		PGN:          pgn,
		StartedAt:    p.StartedAt,
		EndedAt:      now,
		Duration:     now.Sub(p.StartedAt),
	}
	if stats != nil {
		game.AIMoves = stats.AIMoves
		game.Fallbacks = stats.Fallbacks
		game.AIThinkTime = stats.AIThinkTotal
	}

	gameID, profile, delta, err := s.archive.Record(ctx, game)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, ticket.SessionID); err != nil {
		s.logger.Warn("failed to delete finished chess session", zap.Error(err))
	}
	s.logger.Info("session_finished",
		zap.String("session_id", ticket.SessionID),
		zap.String("session_uuid", p.SessionUUID),
		zap.String("reason", string(reason)),
		zap.String("result", result),
		zap.Int64("game_id", gameID),
	)

	state := s.stateFrom(ticket.SessionID, p)
	state.Terminal = true
	state.Reason = reason
	state.Winner = winner
	state.Result = result
	state.GameID = gameID
	state.Profile = profile
	state.RatingDelta = delta
	state.Pending = nil
	turn.State = state
	turn.Finished = true
	return turn, nil
}

// releaseTurn clears the claim so Resume can run at once. It works even when
// ctx is already done.
func (s *Service) releaseTurn(ctx context.Context, ticket Ticket) {
	ctx, cancel := detached(ctx)
	defer cancel()
	p, err := s.store.Load(ctx, ticket.SessionID)
	if err != nil || !ticketMatches(p, ticket) {
		return
	}
	p.Thinking = false
	p.ThinkingSince = time.Time{}
	if err := s.store.Save(ctx, ticket.SessionID, p, ticket.Generation); err != nil {
		s.logger.Warn("release_turn_failed", zap.String("session_id", ticket.SessionID), zap.Error(err))
	}
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), detachedWriteTimeout)
}

func (s *Service) logStale(ticket Ticket, current *Payload) {
	fields := []zap.Field{
		zap.String("session_id", ticket.SessionID),
		zap.String("session_uuid", ticket.SessionUUID),
		zap.Int64("generation", ticket.Generation),
	}
	if current != nil {
		fields = append(fields, zap.Int64("current_generation", current.Generation))
	}
	s.logger.Info("session_stale_result", fields...)
}

func (s *Service) load(ctx context.Context, sessionID string) (*Payload, error) {
	p, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrSessionNotFound
	}
	return p, nil
}

func (s *Service) save(ctx context.Context, sessionID string, p *Payload) error {
	if err := s.store.Save(ctx, sessionID, p, p.Generation); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrStaleGeneration
		}
		return err
	}
	return nil
}

func (s *Service) stateFrom(sessionID string, p *Payload) *State {
	dp, err := chess.GetProfile(p.Difficulty)
	if err != nil {
		dp = chess.DifficultyProfile{Name: p.Difficulty}
	}
	state := &State{
		SessionUUID: p.SessionUUID,
		PlayerName:  p.PlayerName,
		Difficulty:  dp,
		Provider:    p.Provider,
		Model:       provider.ResolveModel(p.Provider, p.Model, dp.Tier),
		HumanSide:   p.HumanSide,
		Turn:        p.Position.Turn(),
		FEN:         p.Position.FEN,
		MovesSAN:    sanHistory(p.History),
		History:     append([]HistoryEntry(nil), p.History...),
		MoveCount:   len(p.History),
		Phase:       chess.PhaseOf(p.Position.FEN),
		TimeControl: p.TimeControl,
		Clock:       p.Clock,
		Thinking:    p.Thinking,
		Generation:  p.Generation,
		StartedAt:   p.StartedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if code, title := chess.Opening(p.Position); code != "" {
		state.Opening = code + " " + title
	}
	if material, captured, err := chess.Material(p.Position); err == nil {
		state.Material = material
		state.Captured = captured
	}
	if p.Thinking {
		state.Pending = &Ticket{SessionID: sessionID, SessionUUID: p.SessionUUID, Generation: p.Generation}
	}
	return state
}

func (s *Service) playerLabels(p *Payload) (string, string) {
	human := p.PlayerName
	if human == "" {
		human = "Player"
	}
	ai := fmt.Sprintf("%s (%s)", p.Provider, provider.ResolveModel(p.Provider, p.Model, tierOf(p.Difficulty)))
	if p.HumanSide == chess.Black {
		return ai, human
	}
	return human, ai
}

func (s *Service) ensureRoomAllowed(meta Meta) error {
	if len(s.allowedRooms) == 0 {
		return nil
	}

	room := strings.ToLower(strings.TrimSpace(meta.Room))
	if room == "" {
		room = "unknown-room"
	}
	if _, ok := s.allowedRooms[room]; ok {
		return nil
	}

	s.logger.Info("chess room access denied",
		zap.String("room", room),
		zap.String("sender", strings.TrimSpace(meta.Sender)),
	)
	return ErrRoomNotAllowed
}

func ticketMatches(p *Payload, t Ticket) bool {
	return p != nil && p.SessionUUID == t.SessionUUID && p.Generation == t.Generation
}

func humanResult(human, winner chess.Side) string {
	switch winner {
	case "":
		return archive.ResultDraw
	case human:
		return archive.ResultWin
	default:
		return archive.ResultLoss
	}
}

func tierOf(difficulty string) chess.ModelTier {
	if dp, err := chess.GetProfile(difficulty); err == nil {
		return dp.Tier
	}
	return chess.TierStandard
}

func sanHistory(entries []HistoryEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.SAN)
	}
	return out
}

func deriveIdentity(meta Meta) identity {
	sessionID := strings.ToLower(strings.TrimSpace(meta.SessionID))
	room := strings.ToLower(strings.TrimSpace(meta.Room))
	sender := strings.ToLower(strings.TrimSpace(meta.Sender))

	return identity{
		SessionID:  sessionID,
		RoomHash:   hashString(room),
		PlayerHash: hashString(room + ":" + sender),
	}
}

func hashString(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func normalizePlayerLabel(raw string) string {
	label := strings.TrimSpace(raw)
	if label == "" {
		return ""
	}
	runes := []rune(label)
	if len(runes) > playerLabelLimit {
		label = string(runes[:playerLabelLimit])
	}
	return label
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
