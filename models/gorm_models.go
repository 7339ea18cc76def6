// models/gorm_models.go
package models

import (
	"time"
)

// Challenge is an async challenge, and also the history record of a finished live match.
type Challenge struct {
	ID               string          `json:"id" gorm:"primaryKey;size:64"`
	ChallengerID     string          `json:"challengerId" gorm:"index;not null;size:64"`
	OpponentID       string          `json:"opponentId" gorm:"index;not null;size:64"`
	Category         string          `json:"category" gorm:"size:100"`
	QuestionIDs      []string        `json:"questionIds" gorm:"serializer:json;type:jsonb"`
	ChallengerScore  int             `json:"challengerScore" gorm:"default:0"`
	OpponentScore    int             `json:"opponentScore" gorm:"default:0"`
	CompletedBy      []string        `json:"completedBy" gorm:"serializer:json;type:jsonb"`
	Status           ChallengeStatus `json:"status" gorm:"index;not null;size:20;default:'pending'"`
	TieBreakerRounds int             `json:"tieBreakerRounds" gorm:"default:0"`
	IsLive           bool            `json:"isLive" gorm:"default:false"`
	Outcome          string          `json:"outcome,omitempty" gorm:"size:20"`
	WinnerID         string          `json:"winnerId,omitempty" gorm:"size:64"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
}

func (Challenge) TableName() string {
	return "challenges"
}

// HasParticipant reports whether userID is one of the two sides.
func (c *Challenge) HasParticipant(userID string) bool {
	return userID == c.ChallengerID || userID == c.OpponentID
}

// Clone returns a deep copy so stores never share slices with callers.
func (c *Challenge) Clone() *Challenge {
	cp := *c
	cp.QuestionIDs = append([]string(nil), c.QuestionIDs...)
	cp.CompletedBy = append([]string(nil), c.CompletedBy...)
	if c.CompletedAt != nil {
		at := *c.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// RankingProfile is the ranking subset of a user record.
type RankingProfile struct {
	UserID        string    `json:"userId" gorm:"primaryKey;size:64"`
	RankingScore  int       `json:"rankingScore" gorm:"not null;default:0"`
	WinningStreak int       `json:"winningStreak" gorm:"not null;default:0"`
	MaxStreak     int       `json:"maxStreak" gorm:"not null;default:0"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (RankingProfile) TableName() string {
	return "ranking_profiles"
}
