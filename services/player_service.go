// services/player_service.go
package services

import (
	"context"
	"errors"

	"github.com/wfunc/quizarena/logger"
	"github.com/wfunc/quizarena/models"
	"github.com/wfunc/quizarena/persistence"
)

// RankReader is the read side of the leaderboard mirror.
type RankReader interface {
	Top(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	Rank(ctx context.Context, userID string) (int, error)
}

// PlayerSummary combines the ranking profile with game history.
type PlayerSummary struct {
	Profile models.RankingProfile `json:"profile"`
	Stats   models.PlayerStats    `json:"stats"`
	Rank    int                   `json:"rank,omitempty"`
}

type PlayerService struct {
	db    persistence.Database
	ranks RankReader
}

// NewPlayerService builds the service; ranks may be nil.
func NewPlayerService(db persistence.Database, ranks RankReader) *PlayerService {
	return &PlayerService{db: db, ranks: ranks}
}

// GetPlayerWithStats 获取玩家信息和统计
// A user who never finished a game gets a zero profile.
func (s *PlayerService) GetPlayerWithStats(ctx context.Context, userID string) (*PlayerSummary, error) {
	profile, err := s.db.GetProfile(ctx, userID)
	switch {
	case errors.Is(err, persistence.ErrRecordNotFound):
		profile = &models.RankingProfile{UserID: userID}
	case err != nil:
		return nil, err
	}

	stats, err := s.db.PlayerStats(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &PlayerSummary{Profile: *profile, Stats: *stats}
	if s.ranks != nil {
		rank, err := s.ranks.Rank(ctx, userID)
		if err != nil {
			logger.Log.Warnf("Rank lookup for %s failed: %v", userID, err)
		}
		summary.Rank = rank
	}
	return summary, nil
}

// WinningStreak returns the current streak, 0 for unknown users.
func (s *PlayerService) WinningStreak(ctx context.Context, userID string) int {
	profile, err := s.db.GetProfile(ctx, userID)
	if err != nil {
		return 0
	}
	return profile.WinningStreak
}

// GetLeaderboard prefers the Redis mirror and falls back to the database.
func (s *PlayerService) GetLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if s.ranks != nil {
		entries, err := s.ranks.Top(ctx, limit)
		if err == nil {
			return entries, nil
		}
		logger.Log.Warnf("Leaderboard mirror unavailable, reading database: %v", err)
	}

	profiles, err := s.db.TopProfiles(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]models.LeaderboardEntry, len(profiles))
	for i, p := range profiles {
		entries[i] = models.LeaderboardEntry{UserID: p.UserID, RankingScore: p.RankingScore, Rank: i + 1}
	}
	return entries, nil
}
