package room

import (
	"context"

	"github.com/wfunc/quizarena/session"
)

// Broadcaster delivers one event to one session.
// Defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	SendToSession(sess *session.Session, msgID uint16, payload any) error
}

// Finisher persists and ranks a room that reached a result. It is called once
// per room, from the room goroutine, before the room is discarded.
type Finisher interface {
	FinishMatch(ctx context.Context, result Result)
}
