// Package invite keeps direct challenges between two users until the invitee answers.
package invite

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInviteNotFound = errors.New("invite not found or expired")
	ErrNotRecipient   = errors.New("invite addressed to another user")
)

type Invite struct {
	ID               string
	FromID           string
	FromName         string
	FromConnectionID string
	ToID             string
	Category         string
	QuestionCount    int
	CreatedAt        time.Time
}

// Registry holds pending invites for ttl. Each invite is consumed at most once.
type Registry struct {
	pending map[string]*Invite
	ttl     time.Duration
	now     func() time.Time
	mutex   sync.Mutex
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		pending: make(map[string]*Invite),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create stores inv under a fresh id and returns the stored copy.
func (r *Registry) Create(inv Invite) *Invite {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	inv.ID = uuid.New().String()
	inv.CreatedAt = r.now()
	r.pending[inv.ID] = &inv
	cp := inv
	return &cp
}

// Take consumes the invite if userID is its recipient. A wrong recipient
// leaves the invite in place.
func (r *Registry) Take(id, userID string) (*Invite, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	inv, ok := r.pending[id]
	if !ok {
		return nil, ErrInviteNotFound
	}
	if r.expired(inv) {
		delete(r.pending, id)
		return nil, ErrInviteNotFound
	}
	if inv.ToID != userID {
		return nil, ErrNotRecipient
	}
	delete(r.pending, id)
	return inv, nil
}

// Drop discards an invite without answering it.
func (r *Registry) Drop(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.pending, id)
}

// Expire removes invites older than the ttl and returns how many were removed.
func (r *Registry) Expire() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	n := 0
	for id, inv := range r.pending {
		if r.expired(inv) {
			delete(r.pending, id)
			n++
		}
	}
	return n
}

func (r *Registry) expired(inv *Invite) bool {
	return r.ttl > 0 && r.now().Sub(inv.CreatedAt) > r.ttl
}

func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.pending)
}
