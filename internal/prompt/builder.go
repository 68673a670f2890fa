package prompt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
	"github.com/park285/Cheese-LLMChess-bot/internal/msgcat"
)

var ErrNoLegalMoves = errors.New("prompt requires at least one legal move")

const (
	frameKey           = "prompt.frame"
	guidanceKeyPattern = "prompt.guidance.%s.%s"

	// DefaultHistoryPlies bounds how much of the game is written into the prompt.
	DefaultHistoryPlies = 60
)

// Input is everything a prompt depends on. Side is the side the model plays;
// when empty it is read from the position.
type Input struct {
	Position   chess.Position
	History    []string
	LegalMoves []string
	Profile    chess.DifficultyProfile
	Side       chess.Side
}

// Builder renders move-request prompts from the template catalog. It holds
// no mutable state, so the same Input always yields the same text.
type Builder struct {
	cat          *msgcat.Catalog
	historyPlies int
}

type Option func(*Builder)

// WithHistoryPlies keeps only the last n plies of history; n <= 0 keeps all.
func WithHistoryPlies(n int) Option {
	return func(b *Builder) { b.historyPlies = n }
}

func NewBuilder(cat *msgcat.Catalog, opts ...Option) (*Builder, error) {
	if cat == nil {
		return nil, errors.New("prompt builder requires a template catalog")
	}
	if !cat.Has(frameKey) {
		return nil, fmt.Errorf("template catalog has no %s", frameKey)
	}
	b := &Builder{cat: cat, historyPlies: DefaultHistoryPlies}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Builder) Build(in Input) (string, error) {
	if len(in.LegalMoves) == 0 {
		return "", ErrNoLegalMoves
	}
	side := in.Side
	if !side.Valid() {
		side = in.Position.Turn()
	}
	if !side.Valid() {
		return "", fmt.Errorf("%w: cannot determine side to move", chess.ErrInvalidPosition)
	}

	phase := chess.PhaseOf(in.Position.FEN)
	guidance, err := b.guidance(in.Profile, phase)
	if err != nil {
		return "", err
	}

	opening := ""
	if code, title := chess.Opening(in.Position); code != "" {
		opening = code + " " + title
	}

	data := map[string]any{
		"SideUpper":     strings.ToUpper(string(side)),
		"OpponentUpper": strings.ToUpper(string(side.Opponent())),
		"SideTitle":     side.Title(),
		"FEN":           in.Position.FEN,
		"Opening":       opening,
		"History":       FormatHistory(in.History, startingNumber(in.Position), startingSide(in.Position), b.historyPlies),
		"LegalMoves":    in.LegalMoves,
		"Phase":         string(phase),
		"Guidance":      guidance,
	}
	return b.cat.Render(frameKey, data)
}

func (b *Builder) guidance(p chess.DifficultyProfile, phase chess.Phase) (string, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = chess.DefaultProfileName
	}
	key := fmt.Sprintf(guidanceKeyPattern, name, phase)
	if !b.cat.Has(key) {
		key = fmt.Sprintf(guidanceKeyPattern, chess.DefaultProfileName, phase)
	}
	return b.cat.Render(key, nil)
}

// FormatHistory renders SAN plies as numbered move text ("1. e4 e5 2. Nf3").
// firstNumber and firstSide describe the ply at index 0. When limit > 0 only
// the last limit plies are shown, prefixed with "...".
func FormatHistory(history []string, firstNumber int, firstSide chess.Side, limit int) string {
	if len(history) == 0 {
		return ""
	}
	start := 0
	if limit > 0 && len(history) > limit {
		start = len(history) - limit
	}
	if firstNumber < 1 {
		firstNumber = 1
	}
	offset := 0
	if firstSide == chess.Black {
		offset = 1
	}

	var sb strings.Builder
	if start > 0 {
		sb.WriteString("... ")
	}
	for i := start; i < len(history); i++ {
		idx := i + offset
		number := firstNumber + idx/2
		white := idx%2 == 0
		switch {
		case white:
			if i > start {
				sb.WriteByte(' ')
			}
			sb.WriteString(strconv.Itoa(number))
			sb.WriteString(". ")
		case i == start:
			sb.WriteString(strconv.Itoa(number))
			sb.WriteString("... ")
		default:
			sb.WriteByte(' ')
		}
		sb.WriteString(history[i])
	}
	return sb.String()
}

func startingNumber(pos chess.Position) int {
	if pos.StartFEN == "" {
		return 1
	}
	return chess.FullmoveNumber(pos.StartFEN)
}

func startingSide(pos chess.Position) chess.Side {
	if pos.StartFEN == "" {
		return chess.White
	}
	start := chess.Position{FEN: pos.StartFEN}
	if s := start.Turn(); s.Valid() {
		return s
	}
	return chess.White
}
