package challenge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wfunc/quizarena/models"
	"github.com/wfunc/quizarena/persistence"
	"github.com/wfunc/quizarena/ranking"
)

func bank(category string, n int) []models.Question {
	qs := make([]models.Question, n)
	for i := range qs {
		qs[i] = models.Question{
			ID:       fmt.Sprintf("%s-%d", category, i),
			Category: category,
			Text:     "?",
			Options:  []string{"a", "b"},
		}
	}
	return qs
}

type fixture struct {
	store     *persistence.Memory
	escalator *Escalator
	completed atomic.Int32
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	store := persistence.NewMemory(bank("quran", 40))
	f := &fixture{store: store}
	f.escalator = NewEscalator(store, store, ranking.NewMutator(store, nil), opts)
	f.escalator.OnCompleted = func(ctx context.Context, c *models.Challenge) { f.completed.Add(1) }
	return f
}

func (f *fixture) create(t *testing.T) *models.Challenge {
	t.Helper()
	c, err := f.escalator.Create(context.Background(), "challenger", "opponent", "quran", 5)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return c
}

func (f *fixture) submit(t *testing.T, id, user string, score int) *models.Challenge {
	t.Helper()
	c, err := f.escalator.SubmitScore(context.Background(), id, user, score)
	if err != nil {
		t.Fatalf("SubmitScore(%s, %d): %v", user, score, err)
	}
	return c
}

func (f *fixture) rankingScore(t *testing.T, user string) int {
	t.Helper()
	p, err := f.store.GetProfile(context.Background(), user)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return 0
	}
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	return p.RankingScore
}

func TestCreate(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.create(t)
	if c.Status != models.ChallengePending || len(c.QuestionIDs) != 5 || len(c.CompletedBy) != 0 {
		t.Errorf("Unexpected challenge %+v", c)
	}

	if _, err := f.escalator.Create(context.Background(), "a", "a", "quran", 5); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected self challenge to be rejected, got %v", err)
	}
	if _, err := f.escalator.Create(context.Background(), "a", "b", "fiqh", 5); !errors.Is(err, persistence.ErrNotEnoughQuestions) {
		t.Errorf("Expected ErrNotEnoughQuestions, got %v", err)
	}
}

func TestSubmitScore_PartialStaysPending(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.create(t)

	got := f.submit(t, c.ID, "challenger", 3)
	if got.Status != models.ChallengePending || got.ChallengerScore != 3 {
		t.Errorf("Unexpected challenge %+v", got)
	}
	got = f.submit(t, c.ID, "challenger", 4)
	if len(got.CompletedBy) != 1 || got.ChallengerScore != 4 {
		t.Errorf("Resubmission must not duplicate completedBy: %+v", got)
	}
}

func TestSubmitScore_TieEscalates(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.create(t)

	f.submit(t, c.ID, "challenger", 3)
	got := f.submit(t, c.ID, "opponent", 3)

	if got.Status != models.ChallengeTieBreaker {
		t.Fatalf("Expected tie_breaker, got %s", got.Status)
	}
	if len(got.QuestionIDs) != 10 {
		t.Errorf("Expected 10 questions, got %d", len(got.QuestionIDs))
	}
	if len(got.CompletedBy) != 0 {
		t.Errorf("Expected completedBy cleared, got %v", got.CompletedBy)
	}
	if got.ChallengerScore != 3 || got.OpponentScore != 3 {
		t.Errorf("Scores must carry over, got %d/%d", got.ChallengerScore, got.OpponentScore)
	}
	if f.rankingScore(t, "challenger") != 0 || f.completed.Load() != 0 {
		t.Error("A tie-breaker must not award ranking points")
	}

	stored, _ := f.store.GetChallenge(context.Background(), c.ID)
	if stored.Status != models.ChallengeTieBreaker || stored.TieBreakerRounds != 1 {
		t.Errorf("Tie-breaker not persisted: %+v", stored)
	}

	// second round resolves
	f.submit(t, c.ID, "opponent", 7)
	done := f.submit(t, c.ID, "challenger", 5)
	if done.Status != models.ChallengeCompleted || done.WinnerID != "opponent" {
		t.Errorf("Expected opponent win, got %+v", done)
	}
	if f.rankingScore(t, "opponent") != 10 {
		t.Errorf("Expected opponent +10, got %d", f.rankingScore(t, "opponent"))
	}
}

func TestSubmitScore_WinCompletes(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.create(t)
	if _, err := f.store.UpdateProfile(context.Background(), "opponent", func(p *models.RankingProfile) { p.RankingScore = 3 }); err != nil {
		t.Fatal(err)
	}

	f.submit(t, c.ID, "challenger", 4)
	got := f.submit(t, c.ID, "opponent", 2)

	if got.Status != models.ChallengeCompleted || got.Outcome != models.OutcomeWin || got.WinnerID != "challenger" {
		t.Fatalf("Unexpected result %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
	if s := f.rankingScore(t, "challenger"); s != 10 {
		t.Errorf("Expected challenger +10, got %d", s)
	}
	if s := f.rankingScore(t, "opponent"); s != 0 {
		t.Errorf("Expected opponent floored at 0, got %d", s)
	}

	if _, err := f.escalator.SubmitScore(context.Background(), c.ID, "opponent", 5); !errors.Is(err, ErrChallengeClosed) {
		t.Errorf("Expected ErrChallengeClosed, got %v", err)
	}
	if f.rankingScore(t, "challenger") != 10 || f.completed.Load() != 1 {
		t.Error("Ranking must be applied exactly once")
	}
}

func TestSubmitScore_Rejects(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.create(t)
	ctx := context.Background()

	if _, err := f.escalator.SubmitScore(ctx, c.ID, "mallory", 1); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}
	if _, err := f.escalator.SubmitScore(ctx, c.ID, "challenger", 6); !errors.Is(err, ErrInvalidScore) {
		t.Errorf("Expected ErrInvalidScore, got %v", err)
	}
	if _, err := f.escalator.SubmitScore(ctx, c.ID, "challenger", -1); !errors.Is(err, ErrInvalidScore) {
		t.Errorf("Expected ErrInvalidScore, got %v", err)
	}
	if _, err := f.escalator.SubmitScore(ctx, "missing", "challenger", 1); !errors.Is(err, persistence.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestSubmitScore_TieCap(t *testing.T) {
	f := newFixture(t, Options{MaxTieBreakerRounds: 1})
	c := f.create(t)

	f.submit(t, c.ID, "challenger", 2)
	if got := f.submit(t, c.ID, "opponent", 2); got.Status != models.ChallengeTieBreaker {
		t.Fatalf("First tie should escalate, got %s", got.Status)
	}
	f.submit(t, c.ID, "challenger", 4)
	got := f.submit(t, c.ID, "opponent", 4)
	if got.Status != models.ChallengeCompleted || got.Outcome != models.OutcomeTie {
		t.Fatalf("Capped tie should complete as a tie, got %+v", got)
	}
	if f.rankingScore(t, "challenger") != 2 || f.rankingScore(t, "opponent") != 2 {
		t.Error("A completed tie awards +2 each")
	}
}

func TestSubmitScore_ConcurrentTieEscalatesOnce(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.create(t)

	var wg sync.WaitGroup
	for _, user := range []string{"challenger", "opponent", "challenger", "opponent"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			if _, err := f.escalator.SubmitScore(context.Background(), c.ID, user, 3); err != nil {
				t.Errorf("SubmitScore: %v", err)
			}
		}(user)
	}
	wg.Wait()

	stored, err := f.store.GetChallenge(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	// Four submissions of the same score: at most two tie-breaker rounds, and
	// question ids grow by exactly five per round.
	if len(stored.QuestionIDs) != 5+5*stored.TieBreakerRounds {
		t.Errorf("Question ids out of step with rounds: %d ids, %d rounds", len(stored.QuestionIDs), stored.TieBreakerRounds)
	}
	if stored.TieBreakerRounds < 1 || stored.TieBreakerRounds > 2 {
		t.Errorf("Expected 1 or 2 tie-breaker rounds, got %d", stored.TieBreakerRounds)
	}
}

type failingSource struct{}

func (failingSource) FetchRandomQuestions(ctx context.Context, count int, category string) ([]models.Question, error) {
	return nil, errors.New("question service down")
}

func TestSubmitScore_FetchFailureLeavesChallenge(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.create(t)
	broken := NewEscalator(f.store, failingSource{}, ranking.NewMutator(f.store, nil), Options{})

	f.submit(t, c.ID, "challenger", 1)
	if _, err := broken.SubmitScore(context.Background(), c.ID, "opponent", 1); err == nil {
		t.Fatal("Expected fetch failure to surface")
	}
	stored, _ := f.store.GetChallenge(context.Background(), c.ID)
	if stored.Status != models.ChallengePending || len(stored.CompletedBy) != 1 {
		t.Errorf("Failed escalation must not be persisted: %+v", stored)
	}
	if got := f.submit(t, c.ID, "opponent", 1); got.Status != models.ChallengeTieBreaker {
		t.Errorf("Retry should escalate, got %s", got.Status)
	}
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	var k keyedMutex
	unlock := k.lock("a")
	unlock()
	if len(k.locks) != 0 {
		t.Errorf("Expected lock entry to be released, got %d", len(k.locks))
	}
}
