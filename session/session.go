// session/session.go
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/quizarena/network"
)

// Session is one client connection. A user may hold several.
type Session struct {
	ID        string
	Conn      network.Connection
	CreatedAt time.Time
	userID    string
	name      string
	roomID    string
	closed    atomic.Bool
	mutex     sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	return &Session{
		ID:        id,
		Conn:      conn,
		CreatedAt: time.Now(),
	}
}

func (s *Session) GetID() string {
	return s.ID
}

// Bind attaches a user identity to the session.
func (s *Session) Bind(userID, name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.userID = userID
	if name != "" {
		s.name = name
	}
}

func (s *Session) UserID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.userID
}

func (s *Session) Name() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.name == "" {
		return s.userID
	}
	return s.name
}

func (s *Session) RoomID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomID
}

func (s *Session) SetRoomID(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.roomID = roomID
}

// ClearRoom unbinds the session only if it is still bound to roomID.
func (s *Session) ClearRoom(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.roomID == roomID {
		s.roomID = ""
	}
}

// Alive is false once the connection has been closed.
func (s *Session) Alive() bool {
	return !s.closed.Load()
}

func (s *Session) MarkClosed() {
	s.closed.Store(true)
}

func (s *Session) Send(msgID uint16, data []byte) error {
	return s.Conn.Send(msgID, data)
}

func (s *Session) Close() error {
	s.MarkClosed()
	return s.Conn.Close()
}

// Manager tracks sessions by connection id.
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// Alive reports whether the session exists and its connection is open.
func (m *Manager) Alive(sessionID string) bool {
	sess, ok := m.Get(sessionID)
	return ok && sess.Alive()
}

// GetByUserID returns the live sessions registered to userID.
func (m *Manager) GetByUserID(userID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.UserID() == userID && session.Alive() {
			result = append(result, session)
		}
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
