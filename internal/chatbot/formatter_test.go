package chatbot

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/park285/Cheese-LLMChess-bot/internal/arbiter"
	"github.com/park285/Cheese-LLMChess-bot/internal/archive"
	"github.com/park285/Cheese-LLMChess-bot/internal/domain"
	"github.com/park285/Cheese-LLMChess-bot/internal/msgcat"
	"github.com/park285/Cheese-LLMChess-bot/internal/session"
)

func newTestFormatter(t *testing.T) *Formatter {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return NewFormatter(cat, "!")
}

func TestWithSeeMorePadsAndStripsHeader(t *testing.T) {
	out := withSeeMore("HEAD", "HEAD\nbody")
	if !strings.HasPrefix(out, "HEAD"+kakaoZeroWidthSpace) {
		t.Fatalf("missing padding after header")
	}
	if strings.Count(out, "HEAD") != 1 {
		t.Fatalf("duplicated header should be stripped: %q", out)
	}
	if !strings.HasSuffix(out, "\nbody") {
		t.Fatalf("body missing: %q", out)
	}
	if got := withSeeMore("HEAD", "  "); got != "HEAD" {
		t.Fatalf("empty body should return header only, got %q", got)
	}
}

func TestFormatKST(t *testing.T) {
	ts := time.Date(2024, 3, 1, 15, 4, 0, 0, time.UTC)
	if got := formatKST(ts); got != "2024-03-02 00:04" {
		t.Fatalf("got %q", got)
	}
	if got := formatKST(time.Time{}); got != "-" {
		t.Fatalf("zero time should render as dash, got %q", got)
	}
}

func TestErrorMapping(t *testing.T) {
	f := newTestFormatter(t)
	cases := map[error]string{
		session.ErrSessionNotFound:                         "!체스 시작",
		fmt.Errorf("wrap: %w", session.ErrInvalidMove):     "!체스 힌트",
		session.ErrUndoDisabled:                            "무르기를 사용할 수 없습니다",
		fmt.Errorf("%w: cohere", session.ErrNoCredentials): "cohere API 키",
		errors.New("boom"):                                 "요청을 처리하지 못했습니다",
	}
	for err, want := range cases {
		if got := f.Error(err); !strings.Contains(got, want) {
			t.Fatalf("Error(%v)=%q, want substring %q", err, got, want)
		}
	}
}

func TestFallbackNotice(t *testing.T) {
	f := newTestFormatter(t)
	if got := f.FallbackNotice(nil); got != "" {
		t.Fatalf("nil error should render nothing, got %q", got)
	}
	got := f.FallbackNotice(&arbiter.FallbackUsed{Attempts: 3})
	if !strings.Contains(got, "3회") {
		t.Fatalf("attempt count missing: %q", got)
	}
}

func TestHistoryAndGame(t *testing.T) {
	f := newTestFormatter(t)
	if got := f.History(nil); !strings.Contains(got, "저장된 기보가 없습니다") {
		t.Fatalf("empty history text: %q", got)
	}
	game := &domain.ChessGame{
		ID:           7,
		Result:       archive.ResultWin,
		ResultMethod: "checkmate",
		Difficulty:   "expert",
		Provider:     "openai",
		Model:        "gpt-4o",
		MovesSAN:     []string{"e4", "e5"},
		PGN:          "1. e4 e5 *",
		EndedAt:      time.Now(),
	}
	if got := f.History([]*domain.ChessGame{game}); !strings.Contains(got, "#7") {
		t.Fatalf("history missing game id: %q", got)
	}
	got := f.Game(game)
	if !strings.Contains(got, "체크메이트") || !strings.Contains(got, "1. e4 e5") {
		t.Fatalf("game detail incomplete: %q", got)
	}
}

func TestHint(t *testing.T) {
	f := newTestFormatter(t)
	if got := f.Hint([]string{"e4", "d4"}); !strings.Contains(got, "2개") || !strings.Contains(got, "e4, d4") {
		t.Fatalf("hint text: %q", got)
	}
}
