package chess

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrInvalidPosition = errors.New("invalid chess position")
	ErrInvalidSide     = errors.New("invalid side")
)

// Side identifies a colour in the game.
type Side string

const (
	White Side = "white"
	Black Side = "black"
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

func (s Side) Valid() bool { return s == White || s == Black }

// Title returns the capitalised side name used in prompts and messages.
func (s Side) Title() string {
	switch s {
	case White:
		return "White"
	case Black:
		return "Black"
	default:
		return ""
	}
}

// ParseSide accepts white/black and their one-letter forms.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "white", "w", "백":
		return White, nil
	case "black", "b", "흑":
		return Black, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSide, raw)
}

func sideFromColor(c nchess.Color) Side {
	switch c {
	case nchess.White:
		return White
	case nchess.Black:
		return Black
	default:
		return ""
	}
}

// Position is an immutable board state. FEN is the serialized current
// position; StartFEN and Moves (UCI) let the oracle rebuild the game with
// its repetition history. Values are never modified in place: every move
// produces a new Position.
type Position struct {
	StartFEN string   `json:"start_fen,omitempty"`
	Moves    []string `json:"moves"`
	FEN      string   `json:"fen"`
}

// NewPosition returns the standard starting position.
func NewPosition() Position {
	return Position{Moves: []string{}, FEN: StartFEN}
}

// PositionFromFEN returns a position that starts at fen.
func PositionFromFEN(fen string) (Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == StartFEN || strings.EqualFold(fen, "startpos") {
		return NewPosition(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	game := nchess.NewGame(opt)
	return Position{StartFEN: fen, Moves: []string{}, FEN: game.FEN()}, nil
}

// Ply returns the number of half-moves played since the start position.
func (p Position) Ply() int { return len(p.Moves) }

// Turn reads the side to move from the FEN without replaying the game.
func (p Position) Turn() Side {
	fields := strings.Fields(p.FEN)
	if len(fields) < 2 {
		return ""
	}
	switch fields[1] {
	case "w":
		return White
	case "b":
		return Black
	}
	return ""
}

// with returns a copy extended by one UCI move and the resulting FEN.
func (p Position) with(uci, fen string) Position {
	moves := make([]string, len(p.Moves), len(p.Moves)+1)
	copy(moves, p.Moves)
	return Position{StartFEN: p.StartFEN, Moves: append(moves, uci), FEN: fen}
}

// Truncate returns the position after the first n plies.
func (p Position) Truncate(n int) (Position, error) {
	if n < 0 || n > len(p.Moves) {
		return Position{}, fmt.Errorf("%w: truncate %d of %d plies", ErrInvalidPosition, n, len(p.Moves))
	}
	base := Position{StartFEN: p.StartFEN, Moves: append([]string{}, p.Moves[:n]...)}
	game, err := replay(base)
	if err != nil {
		return Position{}, err
	}
	base.FEN = game.FEN()
	return base, nil
}

func replay(p Position) (*nchess.Game, error) {
	var game *nchess.Game
	if start := strings.TrimSpace(p.StartFEN); start != "" && start != StartFEN {
		opt, err := nchess.FEN(start)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
		}
		game = nchess.NewGame(opt)
	} else {
		game = nchess.NewGame()
	}
	notation := nchess.UCINotation{}
	for _, mv := range p.Moves {
		move, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(mv)))
		if err != nil {
			return nil, fmt.Errorf("%w: decode move %s: %v", ErrInvalidPosition, mv, err)
		}
		if err := game.Move(move, nil); err != nil {
			return nil, fmt.Errorf("%w: apply move %s: %v", ErrInvalidPosition, mv, err)
		}
		claimAutomaticDraw(game)
	}
	return game, nil
}
