// models/models.go
package models

// Question is immutable once fetched and shared by both players of a room.
type Question struct {
	ID           string   `json:"id" yaml:"id"`
	Category     string   `json:"category" yaml:"category"`
	Text         string   `json:"text" yaml:"text"`
	Options      []string `json:"options" yaml:"options"`
	CorrectIndex int      `json:"correctIndex" yaml:"correct_index"`
}

type ChallengeStatus string

const (
	ChallengePending    ChallengeStatus = "pending"
	ChallengeTieBreaker ChallengeStatus = "tie_breaker"
	ChallengeCompleted  ChallengeStatus = "completed"
)

// Outcome of a completed challenge.
const (
	OutcomeWin     = "win"
	OutcomeTie     = "tie"
	OutcomeForfeit = "forfeit"
)

// PlayerStats 玩家统计信息
type PlayerStats struct {
	TotalGames int `json:"totalGames"`
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	Ties       int `json:"ties"`
}

type LeaderboardEntry struct {
	UserID       string `json:"userId"`
	RankingScore int    `json:"rankingScore"`
	Rank         int    `json:"rank"`
}
