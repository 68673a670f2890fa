package session

import (
	"time"

	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
	"github.com/park285/Cheese-LLMChess-bot/internal/resolver"
)

// MoverStats counts one side's notable moves.
type MoverStats struct {
	Moves    int
	Captures int
	Checks   int
	Castles  int
}

type Stats struct {
	TotalMoves   int
	Human        MoverStats
	AI           MoverStats
	AIMoves      int
	AIThinkTotal time.Duration
	AIThinkAvg   time.Duration
	Fallbacks    int

	// Repaired counts AI replies that needed capture-tolerant or oracle matching.
	Repaired int

	Material chess.MaterialScore
	Captured chess.CapturedPieces
}

func computeStats(p *Payload) (*Stats, error) {
	st := &Stats{TotalMoves: len(p.History)}
	for _, e := range p.History {
		ms := &st.Human
		if e.Mover == MoverAI {
			ms = &st.AI
			st.AIThinkTotal += e.Elapsed
			if e.Fallback {
				st.Fallbacks++
			} else if e.Method != resolver.MethodNone && e.Method != resolver.MethodExact {
				st.Repaired++
			}
		}
		ms.Moves++
		if e.Capture {
			ms.Captures++
		}
		if e.Check {
			ms.Checks++
		}
		if e.Castle {
			ms.Castles++
		}
	}
	st.AIMoves = st.AI.Moves
	if st.AIMoves > 0 {
		st.AIThinkAvg = st.AIThinkTotal / time.Duration(st.AIMoves)
	}

	material, captured, err := chess.Material(p.Position)
	if err != nil {
		return st, err
	}
	st.Material = material
	st.Captured = captured
	return st, nil
}
