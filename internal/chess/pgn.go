package chess

import (
	"sort"

	nchess "github.com/corentings/chess/v2"
)

// PGN renders pos as PGN text. Resignation and timeout are not visible on
// the board, so the caller passes the final reason and winner; the winner is
// empty for draws and unfinished games.
func PGN(pos Position, tags map[string]string, reason TerminalReason, winner Side) (string, error) {
	game, err := replay(pos)
	if err != nil {
		return "", err
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		game.AddTagPair(k, tags[k])
	}
	if game.Outcome() == nchess.NoOutcome && (reason == ReasonResignation || reason == ReasonTimeout) {
		switch winner {
		case White:
			game.Resign(nchess.Black)
		case Black:
			game.Resign(nchess.White)
		}
		if reason == ReasonTimeout {
			game.AddTagPair("Termination", "time forfeit")
		}
	}
	return game.String(), nil
}
