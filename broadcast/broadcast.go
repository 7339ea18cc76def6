// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"errors"

	"github.com/wfunc/quizarena/session"
)

var (
	ErrNoSession  = errors.New("no live session")
	ErrNilSession = errors.New("nil session")
)

// SessionBroadcaster JSON-encodes events and writes them to sessions.
type SessionBroadcaster struct {
	sessionManager *session.Manager
}

func NewSessionBroadcaster(sessionManager *session.Manager) *SessionBroadcaster {
	return &SessionBroadcaster{sessionManager: sessionManager}
}

func encode(payload any) ([]byte, error) {
	if raw, ok := payload.([]byte); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}

func (b *SessionBroadcaster) SendToSession(sess *session.Session, msgID uint16, payload any) error {
	if sess == nil {
		return ErrNilSession
	}
	if !sess.Alive() {
		return ErrNoSession
	}
	data, err := encode(payload)
	if err != nil {
		return err
	}
	return sess.Send(msgID, data)
}

// SendToUser delivers to every live session of userID and returns how many got it.
func (b *SessionBroadcaster) SendToUser(userID string, msgID uint16, payload any) (int, error) {
	sessions := b.sessionManager.GetByUserID(userID)
	if len(sessions) == 0 {
		return 0, ErrNoSession
	}
	data, err := encode(payload)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			// 发送失败的连接由读循环清理
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return 0, ErrNoSession
	}
	return delivered, nil
}
