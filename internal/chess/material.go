package chess

import (
	nchess "github.com/corentings/chess/v2"
)

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   1,
	nchess.Knight: 3,
	nchess.Bishop: 3,
	nchess.Rook:   5,
	nchess.Queen:  9,
}

var pieceSymbols = map[nchess.PieceType]string{
	nchess.Pawn:   "p",
	nchess.Knight: "n",
	nchess.Bishop: "b",
	nchess.Rook:   "r",
	nchess.Queen:  "q",
}

// MaterialScore is the summed piece value still on the board per side.
type MaterialScore struct {
	White int `json:"white"`
	Black int `json:"black"`
}

func (m MaterialScore) Diff() int { return m.White - m.Black }

// CapturedPieces lists, per capturing side, the symbols of the pieces it
// took in capture order (p, n, b, r, q).
type CapturedPieces struct {
	White []string `json:"white"`
	Black []string `json:"black"`
}

func (c CapturedPieces) IsEmpty() bool { return len(c.White) == 0 && len(c.Black) == 0 }

// Recent returns up to limit pieces taken by side, newest first.
func (c CapturedPieces) Recent(side Side, limit int) []string {
	if limit <= 0 {
		return nil
	}
	order := c.White
	if side == Black {
		order = c.Black
	}
	start := len(order) - limit
	if start < 0 {
		start = 0
	}
	subset := order[start:]
	out := make([]string, len(subset))
	for i := range subset {
		out[i] = subset[len(subset)-1-i]
	}
	return out
}

// Material counts the material on the board and walks the move list to
// find every captured piece.
func Material(pos Position) (MaterialScore, CapturedPieces, error) {
	game, err := replay(pos)
	if err != nil {
		return MaterialScore{}, CapturedPieces{}, err
	}
	var score MaterialScore
	board := game.Position().Board()
	for sq := nchess.A1; sq <= nchess.H8; sq++ {
		piece := board.Piece(sq)
		if piece == nchess.NoPiece {
			continue
		}
		switch piece.Color() {
		case nchess.White:
			score.White += pieceValues[piece.Type()]
		case nchess.Black:
			score.Black += pieceValues[piece.Type()]
		}
	}

	captured := CapturedPieces{White: []string{}, Black: []string{}}
	moves := game.Moves()
	positions := game.Positions()
	for i, mv := range moves {
		if i >= len(positions) {
			break
		}
		if !mv.HasTag(nchess.Capture) && !mv.HasTag(nchess.EnPassant) {
			continue
		}
		before := positions[i]
		target := mv.S2()
		if mv.HasTag(nchess.EnPassant) {
			if before.Turn() == nchess.White {
				target = nchess.NewSquare(target.File(), target.Rank()-1)
			} else {
				target = nchess.NewSquare(target.File(), target.Rank()+1)
			}
		}
		piece := before.Board().Piece(target)
		symbol, ok := pieceSymbols[piece.Type()]
		if piece == nchess.NoPiece || !ok {
			continue
		}
		if before.Turn() == nchess.White {
			captured.White = append(captured.White, symbol)
		} else {
			captured.Black = append(captured.Black, symbol)
		}
	}
	return score, captured, nil
}
