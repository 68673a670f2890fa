package chess

import (
	"errors"
	"testing"
)

func playAll(t *testing.T, o *RulesOracle, moves ...string) Position {
	t.Helper()
	pos := NewPosition()
	for _, mv := range moves {
		res, err := o.Apply(pos, mv)
		if err != nil {
			t.Fatalf("apply %s: %v", mv, err)
		}
		if !res.Accepted {
			t.Fatalf("move %s rejected", mv)
		}
		pos = res.Position
	}
	return pos
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func TestLegalMovesFromStart(t *testing.T) {
	o := NewOracle()
	moves, err := o.LegalMoves(NewPosition())
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	if len(moves) != 20 {
		t.Fatalf("expected 20 legal moves, got %d (%v)", len(moves), moves)
	}
	for _, want := range []string{"e4", "Nf3", "a3", "Nc3"} {
		if !contains(moves, want) {
			t.Fatalf("expected %s in %v", want, moves)
		}
	}
}

func TestApplyAcceptsSANAndUCI(t *testing.T) {
	o := NewOracle()
	start := NewPosition()

	san, err := o.Apply(start, "e4")
	if err != nil || !san.Accepted {
		t.Fatalf("SAN apply: accepted=%v err=%v", san.Accepted, err)
	}
	uci, err := o.Apply(start, "e2e4")
	if err != nil || !uci.Accepted {
		t.Fatalf("UCI apply: accepted=%v err=%v", uci.Accepted, err)
	}
	if san.SAN != "e4" || uci.SAN != "e4" {
		t.Fatalf("canonical SAN mismatch: %q %q", san.SAN, uci.SAN)
	}
	if san.Position.FEN != uci.Position.FEN {
		t.Fatalf("positions differ: %s vs %s", san.Position.FEN, uci.Position.FEN)
	}
	if san.Position.Turn() != Black {
		t.Fatalf("expected black to move, got %s", san.Position.Turn())
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	o := NewOracle()
	pos := playAll(t, o, "e4", "e5")
	before := append([]string(nil), pos.Moves...)
	fen := pos.FEN

	if _, err := o.Apply(pos, "Nf3"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if pos.FEN != fen || len(pos.Moves) != len(before) {
		t.Fatalf("input position changed: %s %v", pos.FEN, pos.Moves)
	}
}

func TestApplyRejectsGarbage(t *testing.T) {
	o := NewOracle()
	for _, text := range []string{"", "hello", "Ke2", "e5"} {
		res, err := o.Apply(NewPosition(), text)
		if err != nil {
			t.Fatalf("apply %q: unexpected error %v", text, err)
		}
		if res.Accepted {
			t.Fatalf("apply %q: expected rejection", text)
		}
	}
}

func TestApplyStripsCheckSuffix(t *testing.T) {
	o := NewOracle()
	pos := playAll(t, o, "e4", "f5")
	res, err := o.Apply(pos, "Qh5+")
	if err != nil || !res.Accepted {
		t.Fatalf("Qh5+: accepted=%v err=%v", res.Accepted, err)
	}
	if !res.Check {
		t.Fatalf("expected check flag")
	}
}

func TestFoolsMateIsTerminal(t *testing.T) {
	o := NewOracle()
	pos := playAll(t, o, "f3", "e5", "g4")
	res, err := o.Apply(pos, "Qh4#")
	if err != nil || !res.Accepted {
		t.Fatalf("mate: accepted=%v err=%v", res.Accepted, err)
	}
	if !res.Terminal || res.Reason != ReasonCheckmate || res.Winner != Black {
		t.Fatalf("unexpected terminal state: %+v", res)
	}
	moves, err := o.LegalMoves(res.Position)
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	if len(moves) != 0 {
		t.Fatalf("expected no legal moves after mate, got %v", moves)
	}
	if _, err := o.Apply(res.Position, "e4"); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
}

func TestThreefoldRepetitionEndsGame(t *testing.T) {
	o := NewOracle()
	pos := playAll(t, o, "Nf3", "Nf6", "Ng1", "Ng8", "Nf3", "Nf6", "Ng1")
	res, err := o.Apply(pos, "Ng8")
	if err != nil || !res.Accepted {
		t.Fatalf("Ng8: accepted=%v err=%v", res.Accepted, err)
	}
	if !res.Terminal || res.Reason != ReasonThreefoldRepetition || res.Winner != "" {
		t.Fatalf("expected threefold draw, got %+v", res)
	}
}

func TestSideToMoveAndTruncate(t *testing.T) {
	o := NewOracle()
	pos := playAll(t, o, "d4", "d5", "c4")
	side, err := o.SideToMove(pos)
	if err != nil || side != Black {
		t.Fatalf("SideToMove: %s %v", side, err)
	}
	back, err := pos.Truncate(1)
	if err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if back.Turn() != Black || len(back.Moves) != 1 {
		t.Fatalf("unexpected truncated position: %+v", back)
	}
	if _, err := pos.Truncate(9); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
}

func TestPositionFromFEN(t *testing.T) {
	o := NewOracle()
	pos, err := PositionFromFEN("4k3/8/8/8/8/8/4P3/4K3 b - - 0 40")
	if err != nil {
		t.Fatalf("PositionFromFEN: %v", err)
	}
	if pos.Turn() != Black {
		t.Fatalf("expected black to move")
	}
	res, err := o.Apply(pos, "Kd7")
	if err != nil || !res.Accepted {
		t.Fatalf("Kd7: accepted=%v err=%v", res.Accepted, err)
	}
	if res.Position.StartFEN != pos.StartFEN {
		t.Fatalf("start FEN lost")
	}
	if _, err := PositionFromFEN("not a fen"); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
}

func TestSANMovesAndOpening(t *testing.T) {
	o := NewOracle()
	pos := playAll(t, o, "e2e4", "c7c5")
	san, err := SANMoves(pos)
	if err != nil {
		t.Fatalf("SANMoves: %v", err)
	}
	if len(san) != 2 || san[0] != "e4" || san[1] != "c5" {
		t.Fatalf("unexpected SAN history: %v", san)
	}
	code, title := Opening(pos)
	if code == "" || title == "" {
		t.Fatalf("expected an ECO match for the Sicilian, got %q %q", code, title)
	}
}

func TestMaterialTracksCaptures(t *testing.T) {
	o := NewOracle()
	pos := playAll(t, o, "e4", "d5", "exd5", "Qxd5")
	score, captured, err := Material(pos)
	if err != nil {
		t.Fatalf("Material: %v", err)
	}
	if score.Diff() != 0 {
		t.Fatalf("expected equal material, got %+v", score)
	}
	if len(captured.White) != 1 || captured.White[0] != "p" {
		t.Fatalf("white captures: %v", captured.White)
	}
	if len(captured.Black) != 1 || captured.Black[0] != "p" {
		t.Fatalf("black captures: %v", captured.Black)
	}
}

func TestPGNIncludesResult(t *testing.T) {
	o := NewOracle()
	pos := playAll(t, o, "e4", "e5")
	pgn, err := PGN(pos, map[string]string{"Event": "test"}, ReasonResignation, Black)
	if err != nil {
		t.Fatalf("PGN: %v", err)
	}
	if pgn == "" {
		t.Fatalf("empty PGN")
	}
}
