package chess

import (
	"strconv"
	"strings"
)

// Phase is a coarse stage of the game used to pick strategic guidance.
type Phase string

const (
	PhaseOpening    Phase = "opening"
	PhaseMiddlegame Phase = "middlegame"
	PhaseEndgame    Phase = "endgame"
)

const (
	openingFullmoveLimit = 10
	endgameMaterialLimit = 13
)

// PhaseOf classifies a FEN by move number and non-pawn material.
// Endgame: at most 13 points of pieces (excluding pawns and kings) remain.
// Opening: within the first 10 moves and not yet an endgame.
func PhaseOf(fen string) Phase {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return PhaseMiddlegame
	}
	material := 0
	for _, r := range fields[0] {
		switch r {
		case 'N', 'n', 'B', 'b':
			material += 3
		case 'R', 'r':
			material += 5
		case 'Q', 'q':
			material += 9
		}
	}
	if material <= endgameMaterialLimit {
		return PhaseEndgame
	}
	if FullmoveNumber(fen) <= openingFullmoveLimit {
		return PhaseOpening
	}
	return PhaseMiddlegame
}

// FullmoveNumber reads the sixth FEN field, defaulting to 1.
func FullmoveNumber(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) >= 6 {
		if n, err := strconv.Atoi(fields[5]); err == nil && n > 0 {
			return n
		}
	}
	return 1
}
