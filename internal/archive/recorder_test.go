package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/park285/Cheese-LLMChess-bot/internal/domain"
)

func finishedGame(session string, result string, endedAt time.Time) *domain.ChessGame {
	return &domain.ChessGame{
		SessionUUID:  session,
		PlayerHash:   "player-hash-0123456789abcdef",
		RoomHash:     "room-hash",
		Difficulty:   "intermediate",
		Provider:     "openai",
		HumanSide:    "white",
		Result:       result,
		ResultMethod: "checkmate",
		MovesUCI:     []string{"e2e4", "e7e5"},
		MovesSAN:     []string{"e4", "e5"},
		PGN:          "1. e4 e5 *",
		StartedAt:    endedAt.Add(-5 * time.Minute),
		EndedAt:      endedAt,
	}
}

func TestRecorderStoresGameAndArchivesPGN(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	store := NewMemoryPGNStore()
	rec, err := NewRecorder(repo, store, nil)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	ended := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	game := finishedGame("s-1", ResultWin, ended)
	id, profile, delta, err := rec.Record(ctx, game)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected game id")
	}
	if profile == nil || profile.Wins != 1 || profile.GamesPlayed != 1 {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if delta <= 0 {
		t.Fatalf("win should raise rating, delta=%d", delta)
	}

	wantKey := "games/player-hash-0123/2026/03/09/s-1.pgn"
	if game.PGNObjectKey != wantKey {
		t.Fatalf("object key = %q, want %q", game.PGNObjectKey, wantKey)
	}
	pgn, err := store.Get(ctx, wantKey)
	if err != nil || !strings.Contains(pgn, "1. e4 e5") {
		t.Fatalf("pgn not archived: %q %v", pgn, err)
	}

	stored, err := rec.Game(ctx, id, game.PlayerHash)
	if err != nil || stored == nil {
		t.Fatalf("get game: %v", err)
	}
	if stored.PGNObjectKey != wantKey {
		t.Fatalf("stored key = %q", stored.PGNObjectKey)
	}
	if other, _ := rec.Game(ctx, id, "someone-else"); other != nil {
		t.Fatalf("game leaked to another player")
	}
}

func TestRecorderDuplicateSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rec, _ := NewRecorder(NewMemoryRepository(), nil, nil)
	ended := time.Now()

	id1, _, _, err := rec.Record(ctx, finishedGame("dup", ResultLoss, ended))
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	id2, profile, delta, err := rec.Record(ctx, finishedGame("dup", ResultLoss, ended))
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if id1 != id2 || delta != 0 {
		t.Fatalf("duplicate should return same id and zero delta: %d %d %d", id1, id2, delta)
	}
	if profile == nil || profile.GamesPlayed != 1 {
		t.Fatalf("profile counted duplicate: %+v", profile)
	}
}

func TestRecentGamesNewestFirst(t *testing.T) {
	ctx := context.Background()
	rec, _ := NewRecorder(NewMemoryRepository(), nil, nil)
	base := time.Now()
	for i, s := range []string{"a", "b", "c"} {
		if _, _, _, err := rec.Record(ctx, finishedGame(s, ResultDraw, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("record %s: %v", s, err)
		}
	}
	games, err := rec.RecentGames(ctx, "player-hash-0123456789abcdef", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(games) != 2 || games[0].SessionUUID != "c" || games[1].SessionUUID != "b" {
		t.Fatalf("unexpected order: %+v", games)
	}
}

func TestApplyGameResultStreaks(t *testing.T) {
	now := time.Now()
	p, _ := ApplyGameResult(nil, "p", "r", "expert", ResultWin, now)
	p, _ = ApplyGameResult(p, "p", "r", "expert", ResultWin, now)
	if p.Streak != 2 || p.StreakType != ResultWin {
		t.Fatalf("streak = %d %s", p.Streak, p.StreakType)
	}
	p, delta := ApplyGameResult(p, "p", "r", "beginner", ResultLoss, now)
	if p.Streak != 1 || p.StreakType != ResultLoss || delta >= 0 {
		t.Fatalf("loss handling: streak=%d type=%s delta=%d", p.Streak, p.StreakType, delta)
	}
	if p.GamesPlayed != 3 || p.LastDifficulty != "beginner" {
		t.Fatalf("unexpected profile: %+v", p)
	}
}

func TestSavePreferencesCreatesProfile(t *testing.T) {
	ctx := context.Background()
	rec, _ := NewRecorder(NewMemoryRepository(), nil, nil)
	p, err := rec.SavePreferences(ctx, "p", "r", "expert", "claude")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if p.Rating != defaultPlayerRating || p.PreferredDifficulty != "expert" || p.PreferredProvider != "claude" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	got, _ := rec.Profile(ctx, "p", "r")
	if got == nil || got.PreferredProvider != "claude" {
		t.Fatalf("profile not stored: %+v", got)
	}
}
