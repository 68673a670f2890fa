package chess

import (
	"sync"

	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// Opening returns the ECO code and title of the deepest named opening the
// position's move sequence passes through. Both are empty when none match.
func Opening(pos Position) (string, string) {
	if len(pos.Moves) == 0 || (pos.StartFEN != "" && pos.StartFEN != StartFEN) {
		return "", ""
	}
	game, err := replay(pos)
	if err != nil {
		return "", ""
	}
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	if ecoBook == nil {
		return "", ""
	}
	if eco := ecoBook.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}
