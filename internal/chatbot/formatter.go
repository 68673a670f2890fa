package chatbot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-LLMChess-bot/internal/arbiter"
	"github.com/park285/Cheese-LLMChess-bot/internal/archive"
	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
	"github.com/park285/Cheese-LLMChess-bot/internal/domain"
	"github.com/park285/Cheese-LLMChess-bot/internal/msgcat"
	"github.com/park285/Cheese-LLMChess-bot/internal/provider"
	"github.com/park285/Cheese-LLMChess-bot/internal/session"
)

const (
	helpHeader    = "♞ LLM 체스 명령어 안내"
	historyHeader = "♜ 최근 기보"
	profileHeader = "♞ 체스 프로필"
	modelsHeader  = "♞ OpenRouter 모델"

	recentMovesLimit    = 6
	capturedRecentLimit = 3
)

// Formatter renders session results into KakaoTalk text blocks.
type Formatter struct {
	cat    *msgcat.Catalog
	prefix string
}

func NewFormatter(cat *msgcat.Catalog, prefix string) *Formatter {
	return &Formatter{cat: cat, prefix: strings.TrimSpace(prefix)}
}

func (f *Formatter) render(key string, data map[string]any) string {
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["Prefix"]; !ok {
		data["Prefix"] = f.prefix
	}
	return f.cat.MustRender(key, data)
}

func (f *Formatter) Help() string {
	return withSeeMore(helpHeader, f.render("chess.help", nil))
}

func (f *Formatter) Start(state *session.State, resumed bool) string {
	key := "chess.started"
	if resumed {
		key = "chess.resumed"
	}
	var sb strings.Builder
	sb.WriteString(f.render(key, map[string]any{
		"Difficulty":  difficultyLabel(state.Difficulty),
		"Provider":    string(state.Provider),
		"Model":       state.Model,
		"Side":        sideLabel(state.HumanSide),
		"TimeControl": timeControlLabel(state.TimeControl),
	}))
	if p := state.Profile; p != nil {
		sb.WriteString("\n")
		sb.WriteString(formatProfileSummary(p, 0))
	}
	sb.WriteString("\n")
	sb.WriteString(f.turnLine(state))
	return strings.TrimRight(sb.String(), "\n")
}

func (f *Formatter) turnLine(state *session.State) string {
	if state.Thinking {
		return f.render("chess.ai_thinking", map[string]any{"Provider": string(state.Provider)})
	}
	return f.render("chess.your_turn", nil)
}

// Status is the full board summary.
func (f *Formatter) Status(state *session.State) string {
	var sb strings.Builder
	sb.WriteString("♞ 체스 현황\n")
	sb.WriteString(fmt.Sprintf("• 난이도: %s\n", difficultyLabel(state.Difficulty)))
	sb.WriteString(fmt.Sprintf("• AI: %s (%s)\n", state.Provider, state.Model))
	sb.WriteString(fmt.Sprintf("• 진행: %d수, %s 차례\n", state.MoveCount, sideLabel(state.Turn)))
	if len(state.MovesSAN) > 0 {
		sb.WriteString(fmt.Sprintf("• 최근: %s\n", formatRecentMoves(state.MovesSAN)))
	}
	if state.Opening != "" {
		sb.WriteString(fmt.Sprintf("• 오프닝: %s\n", state.Opening))
	}
	sb.WriteString(fmt.Sprintf("• 국면: %s\n", phaseLabel(state.Phase)))
	appendMaterialLine(&sb, state.Material)
	appendCapturedLine(&sb, state.Captured)
	if !state.TimeControl.Unlimited() {
		sb.WriteString(fmt.Sprintf("• 남은 시간: 백 %s / 흑 %s\n", formatClock(state.Clock.White), formatClock(state.Clock.Black)))
	}
	if info := formatProfileSummary(state.Profile, 0); info != "" {
		sb.WriteString(info)
	}
	sb.WriteString(fmt.Sprintf("• FEN: %s\n", state.FEN))
	sb.WriteString("\n")
	sb.WriteString(f.turnLine(state))
	return sb.String()
}

// HumanMove acknowledges the player's move; a finished game gets the summary.
func (f *Formatter) HumanMove(turn *session.TurnResult) string {
	if turn.Finished {
		return f.Finished(turn.State)
	}
	var sb strings.Builder
	if turn.Human != nil {
		sb.WriteString(fmt.Sprintf("♙ 나의 수: %s", turn.Human.SAN))
		if turn.Human.Check {
			sb.WriteString(" (체크)")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(f.turnLine(turn.State))
	return sb.String()
}

func (f *Formatter) AIMove(turn *session.TurnResult) string {
	var sb strings.Builder
	if turn.AI != nil {
		sb.WriteString(f.render("chess.ai_move", map[string]any{"SAN": turn.AI.SAN}))
		if turn.AI.Check {
			sb.WriteString(" (체크)")
		}
		sb.WriteString("\n")
	}
	if notice := f.FallbackNotice(turn.FallbackErr); notice != "" {
		sb.WriteString(notice)
		sb.WriteString("\n")
	}
	if turn.Finished {
		sb.WriteString("\n")
		sb.WriteString(f.Finished(turn.State))
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("• 최근: %s\n", formatRecentMoves(turn.State.MovesSAN)))
	sb.WriteString(f.turnLine(turn.State))
	return sb.String()
}

// FallbackNotice is empty unless err reports a random fallback move.
func (f *Formatter) FallbackNotice(err error) string {
	var fb *arbiter.FallbackUsed
	if !errors.As(err, &fb) {
		return ""
	}
	return f.render("chess.fallback_notice", map[string]any{"Attempts": fb.Attempts})
}

func (f *Formatter) Finished(state *session.State) string {
	if state == nil {
		return "게임이 종료되었습니다."
	}
	var sb strings.Builder
	sb.WriteString(f.render("chess.outcome."+outcomeKey(state.Result), nil))
	if state.Reason != chess.ReasonNone {
		sb.WriteString(fmt.Sprintf(" (%s)", f.render("chess.reason."+string(state.Reason), nil)))
	}
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("• 난이도: %s\n", difficultyLabel(state.Difficulty)))
	sb.WriteString(fmt.Sprintf("• 총 %d수\n", state.MoveCount))
	if info := formatProfileSummary(state.Profile, state.RatingDelta); info != "" {
		sb.WriteString(info)
	}
	if state.GameID > 0 {
		sb.WriteString(fmt.Sprintf("기보 ID: #%d (`%s체스 기보 %d`)\n", state.GameID, f.prefix, state.GameID))
	}
	return sb.String()
}

func (f *Formatter) Undo(state *session.State) string {
	var sb strings.Builder
	sb.WriteString("↩️ 마지막 한 수를 되돌렸습니다.\n")
	sb.WriteString(fmt.Sprintf("• 현재 진행 수: %d\n", state.MoveCount))
	if len(state.MovesSAN) > 0 {
		sb.WriteString(fmt.Sprintf("• 최근: %s\n", formatRecentMoves(state.MovesSAN)))
	}
	sb.WriteString("\n")
	sb.WriteString(f.turnLine(state))
	return sb.String()
}

func (f *Formatter) Reset(state *session.State) string {
	return "🔄 같은 설정으로 새 게임을 시작했습니다.\n" + f.Start(state, false)
}

func (f *Formatter) Hint(moves []string) string {
	if len(moves) == 0 {
		return "둘 수 있는 수가 없습니다."
	}
	return fmt.Sprintf("💡 가능한 수 (%d개)\n%s", len(moves), strings.Join(moves, ", "))
}

func (f *Formatter) Stats(st *session.Stats) string {
	var sb strings.Builder
	sb.WriteString("📊 이번 게임 통계\n")
	sb.WriteString(fmt.Sprintf("• 총 %d수 (나 %d / AI %d)\n", st.TotalMoves, st.Human.Moves, st.AI.Moves))
	sb.WriteString(fmt.Sprintf("• 잡기: 나 %d / AI %d\n", st.Human.Captures, st.AI.Captures))
	sb.WriteString(fmt.Sprintf("• 체크: 나 %d / AI %d\n", st.Human.Checks, st.AI.Checks))
	sb.WriteString(fmt.Sprintf("• 캐슬링: 나 %d / AI %d\n", st.Human.Castles, st.AI.Castles))
	if st.AIMoves > 0 {
		sb.WriteString(fmt.Sprintf("• AI 평균 생각 시간: %s\n", formatDuration(st.AIThinkAvg)))
	}
	if st.Fallbacks > 0 || st.Repaired > 0 {
		sb.WriteString(fmt.Sprintf("• 무작위 대체 %d회, 응답 보정 %d회\n", st.Fallbacks, st.Repaired))
	}
	appendMaterialLine(&sb, st.Material)
	appendCapturedLine(&sb, st.Captured)
	return strings.TrimRight(sb.String(), "\n")
}

func (f *Formatter) History(games []*domain.ChessGame) string {
	if len(games) == 0 {
		return fmt.Sprintf("저장된 기보가 없습니다. `%s체스 시작`으로 첫 게임을 시작하세요.", f.prefix)
	}
	var sb strings.Builder
	for _, game := range games {
		sb.WriteString(fmt.Sprintf("• #%d %s %s — %s, %s (수: %d)\n",
			game.ID, formatResultBadge(game.Result), formatKST(game.EndedAt), game.Difficulty, game.Provider, len(game.MovesSAN)))
		if d := formatDuration(game.Duration); d != "" {
			sb.WriteString(fmt.Sprintf("  소요 시간: %s\n", d))
		}
	}
	sb.WriteString(fmt.Sprintf("\n자세히 보려면 `%s체스 기보 <ID>` 명령을 사용하세요.", f.prefix))
	return withSeeMore(historyHeader, sb.String())
}

func (f *Formatter) Game(game *domain.ChessGame) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("♜ 기보 상세 #%d\n", game.ID))
	sb.WriteString(fmt.Sprintf("• 결과: %s (%s)\n", formatResultBadge(game.Result), f.render("chess.reason."+game.ResultMethod, nil)))
	sb.WriteString(fmt.Sprintf("• 난이도: %s\n", game.Difficulty))
	sb.WriteString(fmt.Sprintf("• AI: %s (%s)\n", game.Provider, game.Model))
	sb.WriteString(fmt.Sprintf("• 시작: %s\n", formatKST(game.StartedAt)))
	if d := formatDuration(game.Duration); d != "" {
		sb.WriteString(fmt.Sprintf("• 소요 시간: %s\n", d))
	}
	if game.AIMoves > 0 {
		sb.WriteString(fmt.Sprintf("• AI 수: %d (무작위 대체 %d)\n", game.AIMoves, game.Fallbacks))
	}
	if pgn := strings.TrimSpace(game.PGN); pgn != "" {
		sb.WriteString("\n```pgn\n")
		sb.WriteString(pgn)
		sb.WriteString("\n```")
	}
	return sb.String()
}

func (f *Formatter) Profile(profile *domain.ChessProfile) string {
	if profile == nil {
		return "저장된 체스 프로필이 없습니다."
	}
	var sb strings.Builder
	sb.WriteString(formatProfileSummary(profile, 0))
	if profile.Streak > 1 {
		sb.WriteString(fmt.Sprintf("• 연속 기록: %d%s 진행 중\n", profile.Streak, formatStreakSuffix(profile.StreakType)))
	}
	if profile.PreferredProvider != "" {
		sb.WriteString(fmt.Sprintf("• 선호 AI: %s\n", profile.PreferredProvider))
	}
	if !profile.LastPlayedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("• 마지막 경기: %s\n", formatKST(profile.LastPlayedAt)))
	}
	sb.WriteString(fmt.Sprintf("\n새 게임: `%s체스 시작`, 기록: `%s체스 기록`", f.prefix, f.prefix))
	return withSeeMore(profileHeader, sb.String())
}

func (f *Formatter) SettingsUpdated(profile *domain.ChessProfile, state *session.State) string {
	var sb strings.Builder
	sb.WriteString("✅ 설정을 저장했습니다.\n")
	if profile != nil {
		if profile.PreferredDifficulty != "" {
			sb.WriteString(fmt.Sprintf("• 기본 난이도: %s\n", profile.PreferredDifficulty))
		}
		if profile.PreferredProvider != "" {
			sb.WriteString(fmt.Sprintf("• 기본 AI: %s\n", profile.PreferredProvider))
		}
	}
	if state != nil {
		sb.WriteString(fmt.Sprintf("• 진행 중인 게임에도 적용: %s, %s (%s)\n", difficultyLabel(state.Difficulty), state.Provider, state.Model))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (f *Formatter) Models(models []provider.CatalogModel, configured []provider.ID) string {
	var sb strings.Builder
	for _, m := range models {
		sb.WriteString(fmt.Sprintf("• %s — %s (%s)\n", m.ID, m.Name, m.Vendor))
	}
	if len(configured) > 0 {
		names := make([]string, 0, len(configured))
		for _, id := range configured {
			names = append(names, string(id))
		}
		sb.WriteString(fmt.Sprintf("\n사용 가능한 AI: %s\n", strings.Join(names, ", ")))
	}
	sb.WriteString(fmt.Sprintf("모델 변경: `%s체스 설정 <난이도> openrouter <모델 ID>`", f.prefix))
	return withSeeMore(modelsHeader, sb.String())
}

// Error maps session errors onto player-facing text.
func (f *Formatter) Error(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return f.render("chess.errors.no_session", nil)
	case errors.Is(err, session.ErrSessionInProgress):
		return f.render("chess.errors.in_progress", nil)
	case errors.Is(err, session.ErrInvalidMove):
		return f.render("chess.errors.invalid_move", nil)
	case errors.Is(err, session.ErrNotYourTurn):
		return f.render("chess.errors.not_your_turn", nil)
	case errors.Is(err, session.ErrAIThinking):
		return f.render("chess.errors.ai_thinking", nil)
	case errors.Is(err, session.ErrStaleGeneration):
		return f.render("chess.errors.stale", nil)
	case errors.Is(err, session.ErrUndoNotAvailable):
		return f.render("chess.errors.undo_unavailable", nil)
	case errors.Is(err, session.ErrUndoDisabled):
		return f.render("chess.errors.undo_disabled", nil)
	case errors.Is(err, session.ErrHintsDisabled):
		return f.render("chess.errors.hints_disabled", nil)
	case errors.Is(err, session.ErrGameNotFound):
		return f.render("chess.errors.game_not_found", nil)
	case errors.Is(err, session.ErrNoCredentials):
		return f.render("chess.errors.no_credentials", map[string]any{"Provider": credentialProvider(err)})
	default:
		return f.render("chess.errors.internal", nil)
	}
}

func (f *Formatter) BadOption(value string) string {
	return f.render("chess.errors.bad_option", map[string]any{"Value": value})
}

func (f *Formatter) AIFailed() string {
	return f.render("chess.errors.ai_failed", nil)
}

func credentialProvider(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return "AI"
}

func outcomeKey(result string) string {
	switch result {
	case archive.ResultWin, archive.ResultLoss:
		return result
	default:
		return archive.ResultDraw
	}
}

func difficultyLabel(p chess.DifficultyProfile) string {
	if p.Label == "" {
		return p.Name
	}
	return fmt.Sprintf("%s (%s)", p.Label, p.Name)
}

func sideLabel(s chess.Side) string {
	if s == chess.Black {
		return "흑"
	}
	return "백"
}

func phaseLabel(p chess.Phase) string {
	switch p {
	case chess.PhaseOpening:
		return "오프닝"
	case chess.PhaseEndgame:
		return "엔드게임"
	default:
		return "미들게임"
	}
}

func timeControlLabel(tc chess.TimeControl) string {
	if tc.Unlimited() {
		return "무제한"
	}
	return fmt.Sprintf("%s (각 %s)", tc.Name, formatClock(tc.Initial))
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func formatProfileSummary(profile *domain.ChessProfile, ratingDelta int) string {
	if profile == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("• 현재 레이팅: %d", profile.Rating))
	if ratingDelta > 0 {
		sb.WriteString(fmt.Sprintf(" (▲%d)", ratingDelta))
	} else if ratingDelta < 0 {
		sb.WriteString(fmt.Sprintf(" (▼%d)", -ratingDelta))
	} else if profile.GamesPlayed > 0 {
		sb.WriteString(" (변동 없음)")
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("• 누적 전적: %d승 %d패 %d무 (%d판)\n", profile.Wins, profile.Losses, profile.Draws, profile.GamesPlayed))
	return sb.String()
}

func formatStreakSuffix(streakType string) string {
	switch streakType {
	case archive.ResultWin:
		return "연승"
	case archive.ResultLoss:
		return "연패"
	case archive.ResultDraw:
		return "연속 무승부"
	default:
		return "연속 기록"
	}
}

func formatRecentMoves(moves []string) string {
	if len(moves) == 0 {
		return "-"
	}
	if len(moves) <= recentMovesLimit {
		return strings.Join(moves, " ")
	}
	return "… " + strings.Join(moves[len(moves)-recentMovesLimit:], " ")
}

func formatResultBadge(result string) string {
	switch result {
	case archive.ResultWin:
		return "✅ 승"
	case archive.ResultLoss:
		return "❌ 패"
	case archive.ResultDraw:
		return "🤝 무"
	default:
		return "▫️ 진행"
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func appendMaterialLine(sb *strings.Builder, material chess.MaterialScore) {
	diff := material.Diff()
	switch {
	case diff > 0:
		sb.WriteString(fmt.Sprintf("• 기물 점수: 백 +%d\n", diff))
	case diff < 0:
		sb.WriteString(fmt.Sprintf("• 기물 점수: 흑 +%d\n", -diff))
	default:
		sb.WriteString("• 기물 점수: 동등\n")
	}
}

func appendCapturedLine(sb *strings.Builder, captured chess.CapturedPieces) {
	if captured.IsEmpty() {
		return
	}
	var parts []string
	if white := captured.Recent(chess.White, capturedRecentLimit); len(white) > 0 {
		parts = append(parts, "백 "+strings.ToUpper(strings.Join(white, " ")))
	}
	if black := captured.Recent(chess.Black, capturedRecentLimit); len(black) > 0 {
		parts = append(parts, "흑 "+strings.ToUpper(strings.Join(black, " ")))
	}
	sb.WriteString("• 잡은 기물: ")
	sb.WriteString(strings.Join(parts, " / "))
	sb.WriteString("\n")
}
