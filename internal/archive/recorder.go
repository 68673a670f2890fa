package archive

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-LLMChess-bot/internal/domain"
)

const (
	ResultWin  = "win"
	ResultLoss = "loss"
	ResultDraw = "draw"

	defaultPlayerRating = 1200
	kFactor             = 24
)

// Recorder persists finished games, archives their PGN and keeps the
// player's rating profile current.
type Recorder struct {
	repo   Repository
	pgn    PGNStore
	logger *zap.Logger
}

// NewRecorder accepts a nil PGNStore; PGN then lives only in the row.
func NewRecorder(repo Repository, pgn PGNStore, logger *zap.Logger) (*Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("chess repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{repo: repo, pgn: pgn, logger: logger}, nil
}

// Record stores game and returns its id, the updated profile and the rating delta.
// Recording the same session twice returns the existing id with a zero delta.
func (r *Recorder) Record(ctx context.Context, game *domain.ChessGame) (int64, *domain.ChessProfile, int, error) {
	if game == nil {
		return 0, nil, 0, fmt.Errorf("nil chess game")
	}

	if r.pgn != nil && strings.TrimSpace(game.PGN) != "" {
		key := PGNObjectKey(game.PlayerHash, game.SessionUUID, game.EndedAt)
		if err := r.pgn.Put(ctx, key, game.PGN); err != nil {
			r.logger.Warn("pgn_archive_failed", zap.String("session_uuid", game.SessionUUID), zap.Error(err))
		} else {
			game.PGNObjectKey = key
		}
	}

	gameID, err := r.repo.InsertGame(ctx, game)
	if err != nil {
		if errors.Is(err, ErrDuplicateGame) {
			existing, fetchErr := r.repo.GetGameBySession(ctx, game.SessionUUID, game.PlayerHash)
			if fetchErr != nil || existing == nil {
				return 0, nil, 0, err
			}
			profile, profErr := r.repo.GetProfile(ctx, game.PlayerHash, game.RoomHash)
			if profErr != nil {
				return existing.ID, nil, 0, profErr
			}
			return existing.ID, profile, 0, nil
		}
		return 0, nil, 0, err
	}
	game.ID = gameID

	profile, err := r.repo.GetProfile(ctx, game.PlayerHash, game.RoomHash)
	if err != nil {
		return gameID, nil, 0, err
	}
	profile, delta := ApplyGameResult(profile, game.PlayerHash, game.RoomHash, game.Difficulty, game.Result, game.EndedAt)
	if err := r.repo.UpsertProfile(ctx, profile); err != nil {
		return gameID, nil, 0, err
	}
	r.logger.Info("chess_game_recorded",
		zap.Int64("game_id", gameID),
		zap.String("result", game.Result),
		zap.String("method", game.ResultMethod),
		zap.Int("rating_delta", delta),
	)
	return gameID, profile, delta, nil
}

func (r *Recorder) RecentGames(ctx context.Context, playerHash string, limit int) ([]*domain.ChessGame, error) {
	return r.repo.GetRecentGames(ctx, playerHash, limit)
}

func (r *Recorder) Game(ctx context.Context, id int64, playerHash string) (*domain.ChessGame, error) {
	game, err := r.repo.GetGame(ctx, id, playerHash)
	if err != nil || game == nil {
		return game, err
	}
	if strings.TrimSpace(game.PGN) == "" && game.PGNObjectKey != "" && r.pgn != nil {
		if pgn, err := r.pgn.Get(ctx, game.PGNObjectKey); err == nil {
			game.PGN = pgn
		}
	}
	return game, nil
}

func (r *Recorder) Profile(ctx context.Context, playerHash, roomHash string) (*domain.ChessProfile, error) {
	return r.repo.GetProfile(ctx, playerHash, roomHash)
}

// SavePreferences stores the player's default difficulty and provider.
func (r *Recorder) SavePreferences(ctx context.Context, playerHash, roomHash, difficulty, provider string) (*domain.ChessProfile, error) {
	profile, err := r.repo.GetProfile(ctx, playerHash, roomHash)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		now := time.Now()
		profile = &domain.ChessProfile{
			PlayerHash: playerHash,
			RoomHash:   roomHash,
			Rating:     defaultPlayerRating,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	if d := strings.TrimSpace(difficulty); d != "" {
		profile.PreferredDifficulty = d
	}
	if p := strings.TrimSpace(provider); p != "" {
		profile.PreferredProvider = p
	}
	if err := r.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// ApplyGameResult updates streaks and an Elo rating against the
// difficulty's nominal strength.
func ApplyGameResult(profile *domain.ChessProfile, playerHash, roomHash, difficulty, result string, endedAt time.Time) (*domain.ChessProfile, int) {
	if profile == nil {
		profile = &domain.ChessProfile{
			PlayerHash: playerHash,
			RoomHash:   roomHash,
			Rating:     defaultPlayerRating,
			CreatedAt:  endedAt,
		}
	}

	prevRating := profile.Rating

	profile.GamesPlayed++
	profile.LastDifficulty = difficulty
	profile.LastPlayedAt = endedAt
	profile.UpdatedAt = endedAt

	var score float64
	switch result {
	case ResultWin:
		profile.Wins++
		score = 1.0
	case ResultLoss:
		profile.Losses++
		score = 0.0
	default:
		profile.Draws++
		result = ResultDraw
		score = 0.5
	}

	if profile.StreakType == result {
		profile.Streak++
	} else {
		profile.Streak = 1
		profile.StreakType = result
	}

	opponent := DifficultyApproxRating(difficulty)
	expected := 1 / (1 + math.Pow(10, float64(opponent-profile.Rating)/400))
	profile.Rating = int(math.Round(float64(profile.Rating) + kFactor*(score-expected)))

	return profile, profile.Rating - prevRating
}

func DifficultyApproxRating(difficulty string) int {
	switch strings.ToLower(strings.TrimSpace(difficulty)) {
	case "beginner":
		return 800
	case "intermediate":
		return 1100
	case "advanced":
		return 1400
	case "expert":
		return 1700
	default:
		return 1200
	}
}
