package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/quizarena/invite"
	"github.com/wfunc/quizarena/logger"
	"github.com/wfunc/quizarena/matchmaking"
	"github.com/wfunc/quizarena/network"
	"github.com/wfunc/quizarena/room"
	"github.com/wfunc/quizarena/session"
)

const submitTimeout = 10 * time.Second

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	if s.monitor != nil {
		s.monitor.IncMessagesReceived()
		defer func() { s.monitor.ObserveMessageLatency(time.Since(start)) }()
	}

	msg, err := network.Decode(packet)
	if err != nil {
		code := network.ErrCodeMalformed
		if errors.Is(err, network.ErrUnknownMessage) {
			code = network.ErrCodeUnknownMessage
		}
		logger.Log.Debugf("Session %s sent bad message %d: %v", sess.GetID(), packet.MsgID, err)
		s.sendError(sess, code, err.Error())
		return
	}

	switch m := msg.(type) {
	case network.Heartbeat:
	case network.Register:
		s.handleRegister(sess, m)
	case network.JoinLobby:
		s.handleJoinLobby(sess, m)
	case network.CancelSearch:
		s.handleCancelSearch(sess)
	case network.SendInvite:
		s.handleSendInvite(sess, m)
	case network.InviteResponse:
		s.handleInviteResponse(sess, m)
	case network.SubmitScore:
		s.handleSubmitScore(sess, m)
	}
}

// identify checks that userID is the identity bound to sess, binding it if
// the session has none yet.
func (s *GameServer) identify(sess *session.Session, userID string) bool {
	switch current := sess.UserID(); current {
	case "":
		sess.Bind(userID, "")
		return true
	case userID:
		return true
	default:
		s.sendError(sess, network.ErrCodeIdentity, fmt.Sprintf("session is registered as %s", current))
		return false
	}
}

func (s *GameServer) handleRegister(sess *session.Session, m network.Register) {
	if !s.identify(sess, m.UserID) {
		return
	}
	logger.Log.Infof("Session %s registered as %s", sess.GetID(), m.UserID)
	s.send(sess, network.MsgTypeRegistered, network.RegisteredEvent{UserID: m.UserID})
}

func (s *GameServer) handleJoinLobby(sess *session.Session, m network.JoinLobby) {
	if !s.identify(sess, m.UserID) {
		return
	}
	if sess.RoomID() != "" {
		s.sendError(sess, network.ErrCodeAlreadyInRoom, "finish the current game first")
		return
	}
	if m.QuestionCount > s.cfg.Game.MaxQuestionCount {
		s.sendError(sess, network.ErrCodeMalformed, fmt.Sprintf("questionCount must be at most %d", s.cfg.Game.MaxQuestionCount))
		return
	}
	sess.Bind(m.UserID, m.Name)

	pair, matched := s.queue.Enqueue(matchmaking.Request{
		ConnectionID:  sess.GetID(),
		UserID:        m.UserID,
		DisplayName:   sess.Name(),
		Category:      m.Category,
		QuestionCount: m.QuestionCount,
	})
	if !matched {
		logger.Log.Infof("%s waiting for %s/%d", m.UserID, m.Category, m.QuestionCount)
		s.send(sess, network.MsgTypeWaiting, network.WaitingEvent{Category: m.Category, QuestionCount: m.QuestionCount})
		s.updateGauges()
		return
	}
	go s.startMatch(pair)
}

func (s *GameServer) handleCancelSearch(sess *session.Session) {
	userID := sess.UserID()
	if userID == "" {
		s.sendError(sess, network.ErrCodeNotRegistered, "register first")
		return
	}
	removed := s.queue.Cancel(userID)
	s.send(sess, network.MsgTypeSearchCancelled, network.SearchCancelledEvent{Removed: removed})
	s.updateGauges()
}

func (s *GameServer) handleSendInvite(sess *session.Session, m network.SendInvite) {
	if !s.identify(sess, m.FromID) {
		return
	}
	if sess.RoomID() != "" {
		s.sendError(sess, network.ErrCodeAlreadyInRoom, "finish the current game first")
		return
	}
	if m.QuestionCount > s.cfg.Game.MaxQuestionCount {
		s.sendError(sess, network.ErrCodeMalformed, fmt.Sprintf("questionCount must be at most %d", s.cfg.Game.MaxQuestionCount))
		return
	}
	sess.Bind(m.FromID, m.FromName)

	// no queued delivery: an offline invitee never sees the invite
	if len(s.sessionManager.GetByUserID(m.ToID)) == 0 {
		s.sendError(sess, network.ErrCodeOpponentGone, fmt.Sprintf("%s is not online", m.ToID))
		return
	}
	inv := s.invites.Create(invite.Invite{
		FromID:           m.FromID,
		FromName:         sess.Name(),
		FromConnectionID: sess.GetID(),
		ToID:             m.ToID,
		Category:         m.Category,
		QuestionCount:    m.QuestionCount,
	})
	_, err := s.broadcaster.SendToUser(m.ToID, network.MsgTypeInviteReceived, network.InviteReceivedEvent{
		InviteData: inviteData(inv),
	})
	if err != nil {
		s.invites.Drop(inv.ID)
		s.sendError(sess, network.ErrCodeOpponentGone, fmt.Sprintf("%s is not online", m.ToID))
		return
	}
	logger.Log.Infof("Invite %s: %s -> %s (%s/%d)", inv.ID, m.FromID, m.ToID, m.Category, m.QuestionCount)
}

func (s *GameServer) handleInviteResponse(sess *session.Session, m network.InviteResponse) {
	userID := sess.UserID()
	if userID == "" {
		s.sendError(sess, network.ErrCodeNotRegistered, "register first")
		return
	}
	inv, err := s.invites.Take(m.InviteData.InviteID, userID)
	if err != nil {
		s.sendError(sess, network.ErrCodeInviteGone, err.Error())
		return
	}

	if !m.Accepted {
		logger.Log.Infof("Invite %s rejected by %s", inv.ID, userID)
		_, _ = s.broadcaster.SendToUser(inv.FromID, network.MsgTypeInviteRejected, network.InviteRejectedEvent{
			InviteID: inv.ID,
			ToID:     userID,
			ByName:   m.AcceptorName,
		})
		return
	}

	if m.AcceptorName != "" {
		sess.Bind(userID, m.AcceptorName)
	}
	inviter := s.inviterSession(inv)
	if inviter == nil {
		s.sendError(sess, network.ErrCodeOpponentGone, fmt.Sprintf("%s is no longer available", inv.FromID))
		return
	}
	go s.startInviteMatch(inv, inviter, sess)
}

// inviterSession prefers the connection the invite was sent from.
func (s *GameServer) inviterSession(inv *invite.Invite) *session.Session {
	if sess, ok := s.sessionManager.Get(inv.FromConnectionID); ok && sess.Alive() && sess.RoomID() == "" {
		return sess
	}
	for _, sess := range s.sessionManager.GetByUserID(inv.FromID) {
		if sess.RoomID() == "" {
			return sess
		}
	}
	return nil
}

func (s *GameServer) handleSubmitScore(sess *session.Session, m network.SubmitScore) {
	if !s.identify(sess, m.UserID) {
		return
	}
	r, ok := s.roomManager.GetRoom(m.RoomID)
	if !ok || sess.RoomID() != m.RoomID || !r.HasParticipant(m.UserID) {
		s.sendError(sess, network.ErrCodeNoRoom, fmt.Sprintf("room %s not found", m.RoomID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	err := r.Submit(ctx, room.Submission{
		UserID:        m.UserID,
		AnswerIndex:   m.AnswerIndex,
		IsFinal:       m.IsFinal,
		QuestionIndex: m.CurrentQuestionIndex,
	})
	switch {
	case err == nil:
	case errors.Is(err, room.ErrStaleSubmission):
		// duplicates and late answers are dropped silently
	case errors.Is(err, room.ErrInvalidSubmission):
		s.sendError(sess, network.ErrCodeMalformed, err.Error())
	case errors.Is(err, room.ErrRoomClosed), errors.Is(err, room.ErrNotParticipant):
		s.sendError(sess, network.ErrCodeNoRoom, err.Error())
	default:
		logger.Log.Warnf("Room %s: submission from %s failed: %v", m.RoomID, m.UserID, err)
	}
}

func inviteData(inv *invite.Invite) network.InviteData {
	return network.InviteData{
		InviteID:      inv.ID,
		FromID:        inv.FromID,
		FromName:      inv.FromName,
		ToID:          inv.ToID,
		Category:      inv.Category,
		QuestionCount: inv.QuestionCount,
	}
}
