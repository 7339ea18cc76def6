// Package challenge runs asynchronous challenges, where each side answers the
// same questions at its own pace, and extends tied challenges with tie-breaker rounds.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/quizarena/logger"
	"github.com/wfunc/quizarena/models"
	"github.com/wfunc/quizarena/persistence"
	"github.com/wfunc/quizarena/ranking"
)

var (
	ErrNotParticipant  = errors.New("user is not part of this challenge")
	ErrChallengeClosed = errors.New("challenge already completed")
	ErrInvalidScore    = errors.New("score out of range")
	ErrInvalidRequest  = errors.New("invalid challenge request")
)

// ResultApplier is satisfied by *ranking.Mutator.
type ResultApplier interface {
	ApplyResult(ctx context.Context, o ranking.Outcome) error
}

type Options struct {
	TieBreakerQuestions int
	// MaxTieBreakerRounds caps tie-breakers; 0 means unbounded.
	MaxTieBreakerRounds int
	MaxQuestionCount    int
}

// Escalator owns the async challenge lifecycle:
// pending -> (tie_breaker -> ...) -> completed.
type Escalator struct {
	store     persistence.ChallengeStore
	questions persistence.QuestionSource
	ranking   ResultApplier
	opts      Options
	locks     keyedMutex

	// OnCompleted and OnTieBreaker are optional and run after the state is stored.
	OnCompleted  func(ctx context.Context, c *models.Challenge)
	OnTieBreaker func(ctx context.Context, c *models.Challenge)
}

func NewEscalator(store persistence.ChallengeStore, questions persistence.QuestionSource, applier ResultApplier, opts Options) *Escalator {
	if opts.TieBreakerQuestions <= 0 {
		opts.TieBreakerQuestions = 5
	}
	return &Escalator{
		store:     store,
		questions: questions,
		ranking:   applier,
		opts:      opts,
	}
}

// Create starts a pending challenge with count questions from category.
func (e *Escalator) Create(ctx context.Context, challengerID, opponentID, category string, count int) (*models.Challenge, error) {
	challengerID, opponentID = strings.TrimSpace(challengerID), strings.TrimSpace(opponentID)
	switch {
	case challengerID == "" || opponentID == "":
		return nil, fmt.Errorf("%w: both players are required", ErrInvalidRequest)
	case challengerID == opponentID:
		return nil, fmt.Errorf("%w: cannot challenge yourself", ErrInvalidRequest)
	case strings.TrimSpace(category) == "":
		return nil, fmt.Errorf("%w: category is required", ErrInvalidRequest)
	case count <= 0 || (e.opts.MaxQuestionCount > 0 && count > e.opts.MaxQuestionCount):
		return nil, fmt.Errorf("%w: question count %d", ErrInvalidRequest, count)
	}

	qs, err := e.questions.FetchRandomQuestions(ctx, count, category)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}

	c := &models.Challenge{
		ID:           uuid.New().String(),
		ChallengerID: challengerID,
		OpponentID:   opponentID,
		Category:     category,
		QuestionIDs:  questionIDs(qs),
		CompletedBy:  []string{},
		Status:       models.ChallengePending,
	}
	if err := e.store.CreateChallenge(ctx, c); err != nil {
		return nil, err
	}
	logger.Log.Infof("Challenge %s created: %s vs %s, %d %s questions", c.ID, challengerID, opponentID, count, category)
	return c, nil
}

func (e *Escalator) Get(ctx context.Context, id string) (*models.Challenge, error) {
	return e.store.GetChallenge(ctx, id)
}

// SubmitScore records userID's cumulative score. Once both sides have
// submitted, a tie extends the challenge with a tie-breaker round and any
// other result completes it and applies ranking exactly once.
// Submissions for one challenge are serialized, including the question fetch.
func (e *Escalator) SubmitScore(ctx context.Context, id, userID string, score int) (*models.Challenge, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	c, err := e.store.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	if c.Status == models.ChallengeCompleted {
		return nil, ErrChallengeClosed
	}
	if score < 0 || score > len(c.QuestionIDs) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidScore, score, len(c.QuestionIDs))
	}

	if userID == c.ChallengerID {
		c.ChallengerScore = score
	} else {
		c.OpponentScore = score
	}
	if !slices.Contains(c.CompletedBy, userID) {
		c.CompletedBy = append(c.CompletedBy, userID)
	}

	if len(c.CompletedBy) < 2 {
		if err := e.store.SaveChallenge(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}

	if c.ChallengerScore == c.OpponentScore && e.canExtend(c) {
		return e.extend(ctx, c)
	}
	return e.complete(ctx, c)
}

func (e *Escalator) canExtend(c *models.Challenge) bool {
	return e.opts.MaxTieBreakerRounds <= 0 || c.TieBreakerRounds < e.opts.MaxTieBreakerRounds
}

// extend appends a tie-breaker round. Scores carry over; both sides answer again.
func (e *Escalator) extend(ctx context.Context, c *models.Challenge) (*models.Challenge, error) {
	qs, err := e.questions.FetchRandomQuestions(ctx, e.opts.TieBreakerQuestions, c.Category)
	if err != nil {
		return nil, fmt.Errorf("fetch tie-breaker questions: %w", err)
	}
	c.QuestionIDs = append(c.QuestionIDs, questionIDs(qs)...)
	c.CompletedBy = []string{}
	c.Status = models.ChallengeTieBreaker
	c.TieBreakerRounds++

	if err := e.store.SaveChallenge(ctx, c); err != nil {
		return nil, err
	}
	logger.Log.Infof("Challenge %s tied at %d, tie-breaker round %d", c.ID, c.ChallengerScore, c.TieBreakerRounds)
	if e.OnTieBreaker != nil {
		e.OnTieBreaker(ctx, c)
	}
	return c, nil
}

func (e *Escalator) complete(ctx context.Context, c *models.Challenge) (*models.Challenge, error) {
	now := time.Now()
	c.Status = models.ChallengeCompleted
	c.CompletedAt = &now

	outcome := ranking.Outcome{WinnerID: c.ChallengerID, LoserID: c.OpponentID}
	switch {
	case c.ChallengerScore > c.OpponentScore:
		c.Outcome, c.WinnerID = models.OutcomeWin, c.ChallengerID
	case c.OpponentScore > c.ChallengerScore:
		c.Outcome, c.WinnerID = models.OutcomeWin, c.OpponentID
		outcome = ranking.Outcome{WinnerID: c.OpponentID, LoserID: c.ChallengerID}
	default:
		c.Outcome = models.OutcomeTie
		outcome.IsTie = true
	}

	if err := e.store.SaveChallenge(ctx, c); err != nil {
		return nil, err
	}
	if e.ranking != nil {
		if err := e.ranking.ApplyResult(ctx, outcome); err != nil {
			logger.Log.Errorf("Challenge %s: ranking update failed: %v", c.ID, err)
		}
	}
	logger.Log.Infof("Challenge %s completed: %d-%d, winner %q", c.ID, c.ChallengerScore, c.OpponentScore, c.WinnerID)
	if e.OnCompleted != nil {
		e.OnCompleted(ctx, c)
	}
	return c, nil
}

func questionIDs(qs []models.Question) []string {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}
