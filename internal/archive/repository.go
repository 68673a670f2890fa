package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/Cheese-LLMChess-bot/internal/domain"
)

var ErrDuplicateGame = errors.New("chess game already exists")

type Repository interface {
	InsertGame(ctx context.Context, game *domain.ChessGame) (int64, error)
	GetRecentGames(ctx context.Context, playerHash string, limit int) ([]*domain.ChessGame, error)
	GetGame(ctx context.Context, id int64, playerHash string) (*domain.ChessGame, error)
	GetGameBySession(ctx context.Context, sessionUUID string, playerHash string) (*domain.ChessGame, error)
	GetProfile(ctx context.Context, playerHash string, roomHash string) (*domain.ChessProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.ChessProfile) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// OpenPostgres opens and pings a lib/pq pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const gameColumns = `
			id,
			session_uuid,
			player_hash,
			room_hash,
			difficulty,
			provider,
			model,
			human_side,
			time_control,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			pgn_object_key,
			started_at,
			ended_at,
			duration_ms,
			ai_moves,
			fallbacks,
			ai_think_ms`

func (r *repository) InsertGame(ctx context.Context, game *domain.ChessGame) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil chess game payload")
	}

	movesUCI, err := json.Marshal(game.MovesUCI)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(game.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO llm_chess_games (
			session_uuid,
			player_hash,
			room_hash,
			difficulty,
			provider,
			model,
			human_side,
			time_control,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			pgn_object_key,
			started_at,
			ended_at,
			duration_ms,
			ai_moves,
			fallbacks,
			ai_think_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12::jsonb, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (session_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		game.SessionUUID,
		game.PlayerHash,
		game.RoomHash,
		game.Difficulty,
		game.Provider,
		game.Model,
		game.HumanSide,
		game.TimeControl,
		game.Result,
		game.ResultMethod,
		movesUCI,
		movesSAN,
		game.PGN,
		game.PGNObjectKey,
		game.StartedAt,
		game.EndedAt,
		game.Duration.Milliseconds(),
		game.AIMoves,
		game.Fallbacks,
		game.AIThinkTime.Milliseconds(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert chess game: %w", err)
	}
	return id.Int64, nil
}

func (r *repository) GetRecentGames(ctx context.Context, playerHash string, limit int) ([]*domain.ChessGame, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT` + gameColumns + `
		FROM llm_chess_games
		WHERE player_hash = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, playerHash, limit)
	if err != nil {
		return nil, fmt.Errorf("select chess games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.ChessGame, 0, limit)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chess games: %w", err)
	}
	return games, nil
}

func (r *repository) GetGame(ctx context.Context, id int64, playerHash string) (*domain.ChessGame, error) {
	query := `SELECT` + gameColumns + `
		FROM llm_chess_games
		WHERE id = $1 AND player_hash = $2`

	game, err := scanGame(r.db.QueryRowContext(ctx, query, id, playerHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return game, err
}

func (r *repository) GetGameBySession(ctx context.Context, sessionUUID string, playerHash string) (*domain.ChessGame, error) {
	query := `SELECT` + gameColumns + `
		FROM llm_chess_games
		WHERE session_uuid = $1 AND player_hash = $2
		ORDER BY ended_at DESC
		LIMIT 1`

	game, err := scanGame(r.db.QueryRowContext(ctx, query, sessionUUID, playerHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return game, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.ChessGame, error) {
	var (
		game         domain.ChessGame
		movesUCIJSON []byte
		movesSANJSON []byte
		durationMS   sql.NullInt64
		thinkMS      sql.NullInt64
		objectKey    sql.NullString
	)
	err := row.Scan(
		&game.ID,
		&game.SessionUUID,
		&game.PlayerHash,
		&game.RoomHash,
		&game.Difficulty,
		&game.Provider,
		&game.Model,
		&game.HumanSide,
		&game.TimeControl,
		&game.Result,
		&game.ResultMethod,
		&movesUCIJSON,
		&movesSANJSON,
		&game.PGN,
		&objectKey,
		&game.StartedAt,
		&game.EndedAt,
		&durationMS,
		&game.AIMoves,
		&game.Fallbacks,
		&thinkMS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan chess game: %w", err)
	}

	game.PGNObjectKey = objectKey.String
	if durationMS.Valid {
		game.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if thinkMS.Valid {
		game.AIThinkTime = time.Duration(thinkMS.Int64) * time.Millisecond
	}
	if err := json.Unmarshal(movesUCIJSON, &game.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &game.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &game, nil
}

func (r *repository) GetProfile(ctx context.Context, playerHash string, roomHash string) (*domain.ChessProfile, error) {
	const query = `
		SELECT
			player_hash,
			room_hash,
			preferred_difficulty,
			preferred_provider,
			rating,
			games_played,
			wins,
			losses,
			draws,
			streak,
			streak_type,
			last_difficulty,
			last_played_at,
			updated_at,
			created_at
		FROM llm_chess_profiles
		WHERE player_hash = $1 AND room_hash = $2
		LIMIT 1`

	var profile domain.ChessProfile
	err := r.db.QueryRowContext(ctx, query, playerHash, roomHash).Scan(
		&profile.PlayerHash,
		&profile.RoomHash,
		&profile.PreferredDifficulty,
		&profile.PreferredProvider,
		&profile.Rating,
		&profile.GamesPlayed,
		&profile.Wins,
		&profile.Losses,
		&profile.Draws,
		&profile.Streak,
		&profile.StreakType,
		&profile.LastDifficulty,
		&profile.LastPlayedAt,
		&profile.UpdatedAt,
		&profile.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select chess profile: %w", err)
	}
	return &profile, nil
}

func (r *repository) UpsertProfile(ctx context.Context, profile *domain.ChessProfile) error {
	if profile == nil {
		return fmt.Errorf("nil chess profile payload")
	}
	const query = `
		INSERT INTO llm_chess_profiles (
			player_hash,
			room_hash,
			preferred_difficulty,
			preferred_provider,
			rating,
			games_played,
			wins,
			losses,
			draws,
			streak,
			streak_type,
			last_difficulty,
			last_played_at,
			updated_at,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		ON CONFLICT (player_hash, room_hash)
		DO UPDATE SET
			preferred_difficulty = EXCLUDED.preferred_difficulty,
			preferred_provider = EXCLUDED.preferred_provider,
			rating = EXCLUDED.rating,
			games_played = EXCLUDED.games_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			streak = EXCLUDED.streak,
			streak_type = EXCLUDED.streak_type,
			last_difficulty = EXCLUDED.last_difficulty,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = NOW()`

	_, err := r.db.ExecContext(
		ctx,
		query,
		profile.PlayerHash,
		profile.RoomHash,
		profile.PreferredDifficulty,
		profile.PreferredProvider,
		profile.Rating,
		profile.GamesPlayed,
		profile.Wins,
		profile.Losses,
		profile.Draws,
		profile.Streak,
		profile.StreakType,
		profile.LastDifficulty,
		profile.LastPlayedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert chess profile: %w", err)
	}
	return nil
}
