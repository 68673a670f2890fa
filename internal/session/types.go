package session

import (
	"errors"
	"time"

	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
	"github.com/park285/Cheese-LLMChess-bot/internal/domain"
	"github.com/park285/Cheese-LLMChess-bot/internal/provider"
	"github.com/park285/Cheese-LLMChess-bot/internal/resolver"
)

var (
	ErrSessionNotFound   = errors.New("chess session not found")
	ErrSessionInProgress = errors.New("chess session already in progress")
	ErrInvalidMove       = errors.New("invalid chess move")
	ErrNotYourTurn       = errors.New("not the player's turn")
	ErrAIThinking        = errors.New("ai move in progress")
	ErrStaleGeneration   = errors.New("stale session generation")
	ErrUndoNotAvailable  = errors.New("no moves available to undo")
	ErrUndoDisabled      = errors.New("undo disabled")
	ErrHintsDisabled     = errors.New("hints disabled")
	ErrGameNotFound      = errors.New("chess game not found")
	ErrRoomNotAllowed    = errors.New("chess room not allowed")
	ErrNoCredentials     = errors.New("no credentials for provider")
)

// Meta identifies the chat context a command came from.
type Meta struct {
	SessionID string
	Room      string
	Sender    string
	// Name is the display name used in PGN headers; Sender when empty.
	Name string
}

type identity struct {
	SessionID  string
	RoomHash   string
	PlayerHash string
}

// StartOptions are per-game choices; empty fields use profile or config defaults.
type StartOptions struct {
	Difficulty  string
	Provider    provider.ID
	Model       string
	HumanSide   chess.Side
	TimeControl string
}

type Mover string

const (
	MoverHuman Mover = "human"
	MoverAI    Mover = "ai"
)

// HistoryEntry is appended right after a move is accepted.
type HistoryEntry struct {
	Ply      int             `json:"ply"`
	SAN      string          `json:"san"`
	UCI      string          `json:"uci"`
	Mover    Mover           `json:"mover"`
	FEN      string          `json:"fen"`
	Provider provider.ID     `json:"provider,omitempty"`
	Elapsed  time.Duration   `json:"elapsed"`
	Fallback bool            `json:"fallback,omitempty"`
	Method   resolver.Method `json:"method,omitempty"`
	Attempts int             `json:"attempts,omitempty"`
	Capture  bool            `json:"capture,omitempty"`
	Check    bool            `json:"check,omitempty"`
	Castle   bool            `json:"castle,omitempty"`
}

// Payload is the persisted session. Generation increases on every save;
// an AI result is committed only against the generation it was claimed at.
type Payload struct {
	SessionUUID   string            `json:"session_uuid"`
	PlayerHash    string            `json:"player_hash"`
	RoomHash      string            `json:"room_hash"`
	PlayerName    string            `json:"player_name,omitempty"`
	Generation    int64             `json:"generation"`
	Difficulty    string            `json:"difficulty"`
	Provider      provider.ID       `json:"provider"`
	Model         string            `json:"model,omitempty"`
	HumanSide     chess.Side        `json:"human_side"`
	TimeControl   chess.TimeControl `json:"time_control"`
	Clock         chess.Clock       `json:"clock"`
	Position      chess.Position    `json:"position"`
	History       []HistoryEntry    `json:"history"`
	Thinking      bool              `json:"thinking,omitempty"`
	ThinkingSince time.Time         `json:"thinking_since,omitempty"`
	TurnStartedAt time.Time         `json:"turn_started_at"`
	StartedAt     time.Time         `json:"started_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (p *Payload) aiSide() chess.Side { return p.HumanSide.Opponent() }

// Ticket is the claim on one pending AI turn.
type Ticket struct {
	SessionID   string `json:"session_id"`
	SessionUUID string `json:"session_uuid"`
	Generation  int64  `json:"generation"`
}

// State is a read-only view of a session.
type State struct {
	SessionUUID string
	PlayerName  string
	Difficulty  chess.DifficultyProfile
	Provider    provider.ID
	Model       string
	HumanSide   chess.Side
	Turn        chess.Side
	FEN         string
	MovesSAN    []string
	History     []HistoryEntry
	MoveCount   int
	Opening     string
	Phase       chess.Phase
	Material    chess.MaterialScore
	Captured    chess.CapturedPieces
	TimeControl chess.TimeControl
	Clock       chess.Clock
	Thinking    bool
	Generation  int64
	StartedAt   time.Time
	UpdatedAt   time.Time
	Pending     *Ticket
	Profile     *domain.ChessProfile
	Terminal    bool
	Reason      chess.TerminalReason
	Winner      chess.Side
	RatingDelta int
	GameID      int64
	Result      string
}

// TurnResult reports one human or AI move and what followed it.
type TurnResult struct {
	State    *State
	Human    *HistoryEntry
	AI       *HistoryEntry
	Finished bool
	// FallbackErr is set when the AI move was a random legal move.
	FallbackErr error
}
