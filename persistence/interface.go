// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/quizarena/models"
)

var (
	ErrRecordNotFound       = errors.New("record not found")
	ErrNotEnoughQuestions   = errors.New("not enough questions in category")
	ErrDuplicateChallengeID = errors.New("challenge id already exists")
)

// QuestionSource returns random questions for a category.
type QuestionSource interface {
	FetchRandomQuestions(ctx context.Context, count int, category string) ([]models.Question, error)
}

// ChallengeStore persists async challenges and live match records.
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c *models.Challenge) error
	GetChallenge(ctx context.Context, id string) (*models.Challenge, error)
	SaveChallenge(ctx context.Context, c *models.Challenge) error
	PlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error)
}

// RankingStore holds ranking profiles. UpdateProfile runs fn against the
// current profile (zero-valued if absent) and stores the result atomically.
type RankingStore interface {
	GetProfile(ctx context.Context, userID string) (*models.RankingProfile, error)
	UpdateProfile(ctx context.Context, userID string, fn func(p *models.RankingProfile)) (*models.RankingProfile, error)
	TopProfiles(ctx context.Context, limit int) ([]models.RankingProfile, error)
}

// Database is the relational backend for challenges and rankings.
type Database interface {
	ChallengeStore
	RankingStore
	Close() error
}

// tally counts a completed challenge from userID's side into stats.
func tally(stats *models.PlayerStats, c *models.Challenge, userID string) {
	if c.Status != models.ChallengeCompleted || !c.HasParticipant(userID) {
		return
	}
	stats.TotalGames++
	switch {
	case c.WinnerID == "":
		stats.Ties++
	case c.WinnerID == userID:
		stats.Wins++
	default:
		stats.Losses++
	}
}
