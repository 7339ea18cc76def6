// Package ranking applies win/loss/tie results to ranking profiles.
//
// The mutator does not deduplicate: callers invoke ApplyResult exactly once
// per terminal transition of a room or challenge.
package ranking

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/quizarena/logger"
	"github.com/wfunc/quizarena/models"
	"github.com/wfunc/quizarena/persistence"
)

const (
	WinPoints    = 10
	LiveWinBonus = 5
	LossPenalty  = 5
	TiePoints    = 2
)

var ErrInvalidOutcome = errors.New("invalid ranking outcome")

// Outcome names the two sides of a finished game. For a tie, WinnerID and
// LoserID are simply the two participants.
type Outcome struct {
	WinnerID string
	LoserID  string
	IsTie    bool
	IsLive   bool
}

// Leaderboard mirrors ranking scores for fast top-N reads.
type Leaderboard interface {
	Update(ctx context.Context, userID string, score int) error
}

type Mutator struct {
	store       persistence.RankingStore
	leaderboard Leaderboard
}

// NewMutator builds a mutator; leaderboard may be nil.
func NewMutator(store persistence.RankingStore, leaderboard Leaderboard) *Mutator {
	return &Mutator{store: store, leaderboard: leaderboard}
}

// ApplyResult mutates both profiles. Either side may be empty for a one-sided result.
func (m *Mutator) ApplyResult(ctx context.Context, o Outcome) error {
	if o.WinnerID == "" && o.LoserID == "" {
		return ErrInvalidOutcome
	}
	if o.WinnerID == o.LoserID {
		return fmt.Errorf("%w: both sides are %q", ErrInvalidOutcome, o.WinnerID)
	}

	var errs []error
	if o.IsTie {
		errs = append(errs, m.apply(ctx, o.WinnerID, ApplyTie), m.apply(ctx, o.LoserID, ApplyTie))
	} else {
		win := func(p *models.RankingProfile) { ApplyWin(p, o.IsLive) }
		errs = append(errs, m.apply(ctx, o.WinnerID, win), m.apply(ctx, o.LoserID, ApplyLoss))
	}
	return errors.Join(errs...)
}

func (m *Mutator) apply(ctx context.Context, userID string, fn func(p *models.RankingProfile)) error {
	if userID == "" {
		return nil
	}
	prof, err := m.store.UpdateProfile(ctx, userID, fn)
	if err != nil {
		return fmt.Errorf("update ranking for %s: %w", userID, err)
	}
	if m.leaderboard != nil {
		if err := m.leaderboard.Update(ctx, userID, prof.RankingScore); err != nil {
			logger.Log.Warnf("Leaderboard update for %s failed: %v", userID, err)
		}
	}
	return nil
}

func ApplyWin(p *models.RankingProfile, isLive bool) {
	p.RankingScore += WinPoints
	if isLive {
		p.RankingScore += LiveWinBonus
	}
	p.WinningStreak++
	if p.WinningStreak > p.MaxStreak {
		p.MaxStreak = p.WinningStreak
	}
}

func ApplyLoss(p *models.RankingProfile) {
	p.RankingScore = max(0, p.RankingScore-LossPenalty)
	p.WinningStreak = 0
}

// ApplyTie leaves streaks untouched.
func ApplyTie(p *models.RankingProfile) {
	p.RankingScore += TiePoints
}
