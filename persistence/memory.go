package persistence

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/quizarena/models"
)

// Memory is an in-process Database used for development and tests.
type Memory struct {
	mu         sync.Mutex
	questions  map[string][]models.Question // category -> questions
	challenges map[string]*models.Challenge
	profiles   map[string]*models.RankingProfile
}

func NewMemory(questions []models.Question) *Memory {
	m := &Memory{
		questions:  make(map[string][]models.Question),
		challenges: make(map[string]*models.Challenge),
		profiles:   make(map[string]*models.RankingProfile),
	}
	m.AddQuestions(questions...)
	return m
}

func (m *Memory) AddQuestions(qs ...models.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range qs {
		m.questions[q.Category] = append(m.questions[q.Category], q)
	}
}

func (m *Memory) FetchRandomQuestions(ctx context.Context, count int, category string) ([]models.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pool := m.questions[category]
	if len(pool) < count {
		return nil, ErrNotEnoughQuestions
	}
	out := make([]models.Question, 0, count)
	for _, i := range rand.Perm(len(pool))[:count] {
		out = append(out, pool[i])
	}
	return out, nil
}

func (m *Memory) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.challenges[c.ID]; exists {
		return ErrDuplicateChallengeID
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	m.challenges[c.ID] = c.Clone()
	return nil
}

func (m *Memory) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return c.Clone(), nil
}

func (m *Memory) SaveChallenge(ctx context.Context, c *models.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.challenges[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = time.Now()
	m.challenges[c.ID] = c.Clone()
	return nil
}

func (m *Memory) PlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.PlayerStats{}
	for _, c := range m.challenges {
		tally(stats, c, userID)
	}
	return stats, nil
}

func (m *Memory) GetProfile(ctx context.Context, userID string) (*models.RankingProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) UpdateProfile(ctx context.Context, userID string, fn func(p *models.RankingProfile)) (*models.RankingProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		p = &models.RankingProfile{UserID: userID}
	}
	next := *p
	fn(&next)
	next.UserID = userID
	next.UpdatedAt = time.Now()
	m.profiles[userID] = &next
	out := next
	return &out, nil
}

func (m *Memory) TopProfiles(ctx context.Context, limit int) ([]models.RankingProfile, error) {
	m.mu.Lock()
	out := make([]models.RankingProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, *p)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RankingScore != out[j].RankingScore {
			return out[i].RankingScore > out[j].RankingScore
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
