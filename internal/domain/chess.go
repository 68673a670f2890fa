package domain

import "time"

// ChessGame is a finished game against the language model.
type ChessGame struct {
	ID           int64
	SessionUUID  string
	PlayerHash   string
	RoomHash     string
	Difficulty   string
	Provider     string
	Model        string
	HumanSide    string
	TimeControl  string
	Result       string
	ResultMethod string
	MovesUCI     []string
	MovesSAN     []string
	PGN          string
	PGNObjectKey string
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     time.Duration
	AIMoves      int
	Fallbacks    int
	AIThinkTime  time.Duration
}

type ChessProfile struct {
	PlayerHash          string
	RoomHash            string
	PreferredDifficulty string
	PreferredProvider   string
	Rating              int
	GamesPlayed         int
	Wins                int
	Losses              int
	Draws               int
	Streak              int
	StreakType          string
	LastDifficulty      string
	LastPlayedAt        time.Time
	UpdatedAt           time.Time
	CreatedAt           time.Time
}
