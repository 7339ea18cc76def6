package room

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/wfunc/quizarena/models"
	"github.com/wfunc/quizarena/timer"
)

var ErrSamePlayer = errors.New("a room needs two different players")

// Manager owns the set of live rooms.
type Manager struct {
	rooms       map[string]*Room
	broadcaster Broadcaster
	finisher    Finisher
	timers      *timer.TimerManager
	opts        Options
	mutex       sync.RWMutex
}

func NewRoomManager(broadcaster Broadcaster, finisher Finisher, timers *timer.TimerManager, opts Options) *Manager {
	return &Manager{
		rooms:       make(map[string]*Room),
		broadcaster: broadcaster,
		finisher:    finisher,
		timers:      timers,
		opts:        opts,
	}
}

// CreateRoom starts a room for a and b and sends game_start to both.
func (m *Manager) CreateRoom(category string, questions []models.Question, a, b Participant) (*Room, error) {
	if len(questions) == 0 {
		return nil, ErrNotEnoughQuestions
	}
	if a.UserID == b.UserID {
		return nil, ErrSamePlayer
	}

	r := newRoom(uuid.New().String(), category, questions, a, b, m.broadcaster, m.finisher, m.timers, m.opts)
	r.onDiscard = func(r *Room) { m.RemoveRoom(r.ID) }

	m.mutex.Lock()
	m.rooms[r.ID] = r
	m.mutex.Unlock()

	if err := r.start(); err != nil {
		m.RemoveRoom(r.ID)
		return nil, err
	}
	return r, nil
}

func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.rooms, id)
}

func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}
