package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/quizarena/events"
	"github.com/wfunc/quizarena/invite"
	"github.com/wfunc/quizarena/logger"
	"github.com/wfunc/quizarena/matchmaking"
	"github.com/wfunc/quizarena/models"
	"github.com/wfunc/quizarena/network"
	"github.com/wfunc/quizarena/ranking"
	"github.com/wfunc/quizarena/room"
	"github.com/wfunc/quizarena/session"
)

// availableSession returns the live, room-free session behind a queue entry.
func (s *GameServer) availableSession(e matchmaking.Entry) *session.Session {
	sess, ok := s.sessionManager.Get(e.ConnectionID)
	if !ok || !sess.Alive() || sess.RoomID() != "" {
		return nil
	}
	return sess
}

// startMatch turns a queue pair into a room. If either side vanished or the
// question fetch fails, the remaining players go back in the queue.
func (s *GameServer) startMatch(pair matchmaking.Pair) {
	a, b := s.availableSession(pair.A), s.availableSession(pair.B)
	if a == nil || b == nil {
		s.requeue(pair, a, b)
		return
	}

	qs, err := s.fetchQuestions(pair.A.Category, pair.A.QuestionCount)
	if err != nil {
		logger.Log.Warnf("Match %s vs %s: %v, requeueing", pair.A.UserID, pair.B.UserID, err)
		s.requeue(pair, s.availableSession(pair.A), s.availableSession(pair.B))
		return
	}

	_, err = s.createRoom(pair.A.Category, qs, a, b)
	switch {
	case err == nil:
	case errors.Is(err, room.ErrGameStartTooLarge):
		// requeueing would fail the same way on every retry
		logger.Log.Errorf("Match %s vs %s: %v", pair.A.UserID, pair.B.UserID, err)
		for _, sess := range []*session.Session{a, b} {
			s.sendError(sess, network.ErrCodeMatchFailed, "questions too large for one game")
		}
	default:
		logger.Log.Warnf("Match %s vs %s: %v, requeueing", pair.A.UserID, pair.B.UserID, err)
		s.requeue(pair, s.availableSession(pair.A), s.availableSession(pair.B))
	}
}

// requeue returns the still-available sides of pair to the queue.
func (s *GameServer) requeue(pair matchmaking.Pair, a, b *session.Session) {
	var back []matchmaking.Entry
	for _, side := range []struct {
		entry matchmaking.Entry
		sess  *session.Session
	}{{pair.A, a}, {pair.B, b}} {
		if side.sess == nil {
			continue
		}
		back = append(back, side.entry)
		s.send(side.sess, network.MsgTypeWaiting, network.WaitingEvent{
			Category:      side.entry.Category,
			QuestionCount: side.entry.QuestionCount,
		})
	}
	s.queue.Requeue(back...)
	s.updateGauges()
}

func (s *GameServer) startInviteMatch(inv *invite.Invite, inviter, invitee *session.Session) {
	qs, err := s.fetchQuestions(inv.Category, inv.QuestionCount)
	if err == nil {
		_, err = s.createRoom(inv.Category, qs, inviter, invitee)
	}
	if err != nil {
		logger.Log.Warnf("Invite %s: %v", inv.ID, err)
		for _, sess := range []*session.Session{inviter, invitee} {
			s.sendError(sess, network.ErrCodeMatchFailed, "could not start the game")
		}
	}
}

func (s *GameServer) fetchQuestions(category string, count int) ([]models.Question, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Game.FetchTimeout)
	defer cancel()

	qs, err := s.questions.FetchRandomQuestions(ctx, count, category)
	if err != nil {
		return nil, fmt.Errorf("fetch %d %s questions: %w", count, category, err)
	}
	if len(qs) < count {
		return nil, fmt.Errorf("fetch %d %s questions: got %d", count, category, len(qs))
	}
	return qs, nil
}

func (s *GameServer) createRoom(category string, qs []models.Question, a, b *session.Session) (*room.Room, error) {
	s.matchMutex.Lock()
	defer s.matchMutex.Unlock()

	for _, sess := range []*session.Session{a, b} {
		if !sess.Alive() || sess.RoomID() != "" {
			return nil, fmt.Errorf("%s is no longer available", sess.UserID())
		}
	}
	// both sides leave any queue entry they still hold
	s.queue.Cancel(a.UserID())
	s.queue.Cancel(b.UserID())

	r, err := s.roomManager.CreateRoom(category, qs, s.participant(a), s.participant(b))
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("Room %s started: %s vs %s, %d %s questions", r.ID, a.UserID(), b.UserID(), len(qs), category)
	if s.monitor != nil {
		s.monitor.IncMatchesStarted()
	}
	s.updateGauges()
	return r, nil
}

func (s *GameServer) participant(sess *session.Session) room.Participant {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return room.Participant{
		UserID:        sess.UserID(),
		Name:          sess.Name(),
		WinningStreak: s.playerService.WinningStreak(ctx, sess.UserID()),
		Session:       sess,
	}
}

// FinishMatch records a finished live room as a completed challenge, applies
// live ranking and publishes match.completed.
func (s *GameServer) FinishMatch(ctx context.Context, res room.Result) {
	now := time.Now()
	a, b := res.PlayerIDs[0], res.PlayerIDs[1]
	record := &models.Challenge{
		ID:              res.RoomID,
		ChallengerID:    a,
		OpponentID:      b,
		Category:        res.Category,
		QuestionIDs:     res.QuestionIDs,
		ChallengerScore: res.Scores[a],
		OpponentScore:   res.Scores[b],
		CompletedBy:     []string{a, b},
		Status:          models.ChallengeCompleted,
		IsLive:          true,
		WinnerID:        res.WinnerID,
		CompletedAt:     &now,
	}
	switch {
	case res.Outcome == room.OutcomeForfeit:
		record.Outcome = models.OutcomeForfeit
	case res.IsTie:
		record.Outcome = models.OutcomeTie
	default:
		record.Outcome = models.OutcomeWin
	}
	if err := s.db.CreateChallenge(ctx, record); err != nil {
		logger.Log.Errorf("Room %s: persisting result failed: %v", res.RoomID, err)
	}

	outcome := ranking.Outcome{WinnerID: res.WinnerID, LoserID: res.LoserID, IsTie: res.IsTie, IsLive: true}
	if res.IsTie {
		outcome.WinnerID, outcome.LoserID = a, b
	}
	if err := s.mutator.ApplyResult(ctx, outcome); err != nil {
		logger.Log.Errorf("Room %s: ranking update failed: %v", res.RoomID, err)
	}

	err := s.publisher.Publish(ctx, events.RoutingMatchCompleted, events.MatchCompleted{
		RoomID:      res.RoomID,
		ChallengeID: record.ID,
		Category:    res.Category,
		Scores:      res.Scores,
		WinnerID:    res.WinnerID,
		IsTie:       res.IsTie,
		Outcome:     res.Outcome,
		CompletedAt: now,
	})
	if err != nil {
		logger.Log.Warnf("Room %s: publishing result failed: %v", res.RoomID, err)
	}
	if s.monitor != nil {
		s.monitor.IncMatchesCompleted(res.Outcome)
	}
	logger.Log.Infof("Room %s finished (%s): %v", res.RoomID, res.Outcome, res.Scores)
}

func (s *GameServer) challengeCompleted(ctx context.Context, c *models.Challenge) {
	var completedAt time.Time
	if c.CompletedAt != nil {
		completedAt = *c.CompletedAt
	}
	err := s.publisher.Publish(ctx, events.RoutingChallengeCompleted, events.ChallengeCompleted{
		ChallengeID:      c.ID,
		ChallengerID:     c.ChallengerID,
		OpponentID:       c.OpponentID,
		ChallengerScore:  c.ChallengerScore,
		OpponentScore:    c.OpponentScore,
		WinnerID:         c.WinnerID,
		TieBreakerRounds: c.TieBreakerRounds,
		CompletedAt:      completedAt,
	})
	if err != nil {
		logger.Log.Warnf("Challenge %s: publishing result failed: %v", c.ID, err)
	}
	if s.monitor != nil {
		s.monitor.IncChallengesCompleted()
	}
}
