package chess

import (
	"errors"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var ErrGameOver = errors.New("game is already over")

// TerminalReason explains why a game ended.
type TerminalReason string

const (
	ReasonNone                 TerminalReason = ""
	ReasonCheckmate            TerminalReason = "checkmate"
	ReasonStalemate            TerminalReason = "stalemate"
	ReasonThreefoldRepetition  TerminalReason = "threefold_repetition"
	ReasonFivefoldRepetition   TerminalReason = "fivefold_repetition"
	ReasonFiftyMoveRule        TerminalReason = "fifty_move_rule"
	ReasonSeventyFiveMoveRule  TerminalReason = "seventy_five_move_rule"
	ReasonInsufficientMaterial TerminalReason = "insufficient_material"
	ReasonResignation          TerminalReason = "resignation"
	ReasonTimeout              TerminalReason = "timeout"
)

// ApplyResult is the outcome of applying move text to a position.
// When Accepted is false every other field is zero.
type ApplyResult struct {
	Position Position
	Accepted bool
	SAN      string
	UCI      string
	Capture  bool
	Check    bool
	Castle   bool

	Terminal bool
	Reason   TerminalReason
	// Winner is empty for draws and unfinished games.
	Winner Side
}

// Oracle is the rules engine consumed by the arbitration core.
type Oracle interface {
	LegalMoves(pos Position) ([]string, error)
	Apply(pos Position, moveText string) (ApplyResult, error)
	SideToMove(pos Position) (Side, error)
}

// RulesOracle implements Oracle on top of corentings/chess. It keeps no
// state; every call rebuilds a scratch game from the position.
type RulesOracle struct{}

func NewOracle() *RulesOracle { return &RulesOracle{} }

// LegalMoves lists the legal moves in SAN, in generator order.
// A finished game has no legal moves.
func (o *RulesOracle) LegalMoves(pos Position) ([]string, error) {
	game, err := replay(pos)
	if err != nil {
		return nil, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return []string{}, nil
	}
	position := game.Position()
	valid := game.ValidMoves()
	notation := nchess.AlgebraicNotation{}
	out := make([]string, 0, len(valid))
	for i := range valid {
		mv := valid[i]
		out = append(out, notation.Encode(position, &mv))
	}
	return out, nil
}

func (o *RulesOracle) SideToMove(pos Position) (Side, error) {
	game, err := replay(pos)
	if err != nil {
		return "", err
	}
	return sideFromColor(game.Position().Turn()), nil
}

// Apply parses moveText as SAN, then UCI, then long algebraic notation and
// plays it on a copy of pos. Text that matches none of them is reported as
// not accepted rather than as an error.
func (o *RulesOracle) Apply(pos Position, moveText string) (ApplyResult, error) {
	game, err := replay(pos)
	if err != nil {
		return ApplyResult{}, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return ApplyResult{}, ErrGameOver
	}
	before := game.Position()
	move, ok := decodeMove(before, moveText)
	if !ok {
		return ApplyResult{}, nil
	}

	san := nchess.AlgebraicNotation{}.Encode(before, move)
	uci := nchess.UCINotation{}.Encode(before, move)
	if err := game.Move(move, nil); err != nil {
		return ApplyResult{}, nil
	}
	claimAutomaticDraw(game)

	res := ApplyResult{
		Position: pos.with(uci, game.FEN()),
		Accepted: true,
		SAN:      san,
		UCI:      uci,
		Capture:  move.HasTag(nchess.Capture) || move.HasTag(nchess.EnPassant),
		Check:    move.HasTag(nchess.Check),
		Castle:   move.HasTag(nchess.KingSideCastle) || move.HasTag(nchess.QueenSideCastle),
	}
	res.Terminal, res.Reason, res.Winner = terminalState(game)
	return res, nil
}

// History returns the moves of pos in SAN.
func (o *RulesOracle) History(pos Position) ([]string, error) {
	return SANMoves(pos)
}

// SANMoves converts the UCI move list of pos to SAN.
func SANMoves(pos Position) ([]string, error) {
	game, err := replay(pos)
	if err != nil {
		return nil, err
	}
	positions := game.Positions()
	moves := game.Moves()
	out := make([]string, len(moves))
	notation := nchess.AlgebraicNotation{}
	for i, mv := range moves {
		if i < len(positions) {
			out[i] = notation.Encode(positions[i], mv)
		}
	}
	return out, nil
}

// Status reports whether pos is terminal without applying a move.
func Status(pos Position) (bool, TerminalReason, Side, error) {
	game, err := replay(pos)
	if err != nil {
		return false, ReasonNone, "", err
	}
	terminal, reason, winner := terminalState(game)
	return terminal, reason, winner, nil
}

func decodeMove(pos *nchess.Position, text string) (*nchess.Move, bool) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, false
	}
	candidates := []string{raw}
	if trimmed := strings.TrimRight(raw, "+#!?."); trimmed != raw && trimmed != "" {
		candidates = append(candidates, trimmed)
	}
	for _, c := range candidates {
		if mv, err := (nchess.AlgebraicNotation{}).Decode(pos, c); err == nil && mv != nil {
			return mv, true
		}
		if mv, err := (nchess.UCINotation{}).Decode(pos, strings.ToLower(c)); err == nil && mv != nil {
			return mv, true
		}
		if mv, err := (nchess.LongAlgebraicNotation{}).Decode(pos, c); err == nil && mv != nil {
			return mv, true
		}
	}
	return nil, false
}

// claimAutomaticDraw ends the game on threefold repetition or the
// fifty-move rule without waiting for a claim.
func claimAutomaticDraw(game *nchess.Game) {
	if game.Outcome() != nchess.NoOutcome {
		return
	}
	for _, m := range game.EligibleDraws() {
		if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
			_ = game.Draw(m)
			return
		}
	}
}

func terminalState(game *nchess.Game) (bool, TerminalReason, Side) {
	outcome := game.Outcome()
	if outcome == nchess.NoOutcome {
		return false, ReasonNone, ""
	}
	var winner Side
	switch outcome {
	case nchess.WhiteWon:
		winner = White
	case nchess.BlackWon:
		winner = Black
	}
	return true, reasonFromMethod(game.Method()), winner
}

func reasonFromMethod(m nchess.Method) TerminalReason {
	switch m {
	case nchess.Checkmate:
		return ReasonCheckmate
	case nchess.Stalemate:
		return ReasonStalemate
	case nchess.ThreefoldRepetition:
		return ReasonThreefoldRepetition
	case nchess.FivefoldRepetition:
		return ReasonFivefoldRepetition
	case nchess.FiftyMoveRule:
		return ReasonFiftyMoveRule
	case nchess.SeventyFiveMoveRule:
		return ReasonSeventyFiveMoveRule
	case nchess.InsufficientMaterial:
		return ReasonInsufficientMaterial
	case nchess.Resignation:
		return ReasonResignation
	default:
		return TerminalReason(strings.ToLower(m.String()))
	}
}
