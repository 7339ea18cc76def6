// room/room.go
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/quizarena/logger"
	"github.com/wfunc/quizarena/models"
	"github.com/wfunc/quizarena/network"
	"github.com/wfunc/quizarena/session"
	"github.com/wfunc/quizarena/state"
	"github.com/wfunc/quizarena/timer"
)

var (
	ErrRoomClosed         = errors.New("room is closed")
	ErrNotParticipant     = errors.New("user is not in this room")
	ErrStaleSubmission    = errors.New("stale or duplicate submission")
	ErrInvalidSubmission  = errors.New("invalid submission")
	ErrNotEnoughQuestions = errors.New("room needs at least one question")
	ErrGameStartTooLarge  = errors.New("game_start does not fit in one frame")
)

// Live game-over outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeForfeit   = "forfeit"
	OutcomeVoid      = "void"
)

const finishTimeout = 10 * time.Second

// Participant is one of the two players of a room.
type Participant struct {
	UserID        string
	Name          string
	WinningStreak int
	Session       *session.Session
}

// PlayerState is only written by its own player's submissions.
type PlayerState struct {
	Score             int
	Finished          bool
	LastAnsweredIndex int
}

// Submission is one answer for one question.
type Submission struct {
	UserID        string
	AnswerIndex   int
	IsFinal       bool
	QuestionIndex int
}

// Result is handed to the Finisher when a room completes or is forfeited.
type Result struct {
	RoomID      string
	Category    string
	QuestionIDs []string
	PlayerIDs   [2]string
	Scores      map[string]int
	WinnerID    string
	LoserID     string
	IsTie       bool
	Outcome     string
	StartedAt   time.Time
}

type Options struct {
	AdvanceDelay time.Duration
	ForfeitAfter time.Duration
	IdleTimeout  time.Duration
}

// Snapshot is a read-only copy of room state.
type Snapshot struct {
	ID                   string
	Phase                string
	CurrentQuestionIndex int
	AnsweredCount        int
	Players              map[string]PlayerState
}

type submitEvent struct {
	sub   Submission
	reply chan error
}

type disconnectEvent struct {
	userID    string
	sessionID string
}

type advanceEvent struct {
	nextIndex int
}

type forfeitEvent struct {
	userID string
}

type idleEvent struct{}

type snapshotEvent struct {
	reply chan Snapshot
}

// Room is one live match. All fields below are owned by the run goroutine;
// other goroutines reach the room only through its inbox.
type Room struct {
	ID        string
	Category  string
	CreatedAt time.Time

	questions     []models.Question
	order         [2]string
	participants  map[string]*Participant
	connected     map[string]bool
	players       map[string]*PlayerState
	currentIndex  int
	answeredCount int
	lastEvent     time.Time
	forfeitTimers map[string]int64
	idleTimer     int64

	lifecycle   *state.Lifecycle
	broadcaster Broadcaster
	finisher    Finisher
	timers      *timer.TimerManager
	opts        Options
	onDiscard   func(*Room)

	inbox chan any
	done  chan struct{}
}

func newRoom(id, category string, questions []models.Question, a, b Participant, broadcaster Broadcaster, finisher Finisher, timers *timer.TimerManager, opts Options) *Room {
	r := &Room{
		ID:            id,
		Category:      category,
		CreatedAt:     time.Now(),
		questions:     questions,
		order:         [2]string{a.UserID, b.UserID},
		participants:  make(map[string]*Participant, 2),
		connected:     make(map[string]bool, 2),
		players:       make(map[string]*PlayerState, 2),
		forfeitTimers: make(map[string]int64),
		broadcaster:   broadcaster,
		finisher:      finisher,
		timers:        timers,
		opts:          opts,
		inbox:         make(chan any, 32),
		done:          make(chan struct{}),
	}
	for _, p := range []Participant{a, b} {
		r.participants[p.UserID] = &p
		r.connected[p.UserID] = p.Session != nil
		r.players[p.UserID] = &PlayerState{LastAnsweredIndex: -1}
	}
	r.lifecycle = state.NewLifecycle(state.LifecycleHooks{
		OnDiscarded: r.cancelTimers,
	})
	return r
}

// start binds the sessions, sends game_start and launches the room goroutine.
func (r *Room) start() error {
	views := make([]network.QuestionView, len(r.questions))
	for i, q := range r.questions {
		views[i] = network.QuestionView{ID: q.ID, Text: q.Text, Options: q.Options}
	}
	players := make(map[string]network.PlayerView, 2)
	for id, p := range r.participants {
		players[id] = network.PlayerView{Name: p.Name, WinningStreak: p.WinningStreak}
	}
	ev := network.GameStartEvent{
		RoomID:               r.ID,
		Category:             r.Category,
		Questions:            views,
		Players:              players,
		CurrentQuestionIndex: 0,
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if len(raw) > network.MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes for %d questions", ErrGameStartTooLarge, len(raw), len(r.questions))
	}

	if err := r.lifecycle.Start(); err != nil {
		return err
	}
	r.lastEvent = time.Now()

	for _, id := range r.order {
		if sess := r.participants[id].Session; sess != nil {
			sess.SetRoomID(r.ID)
		}
		r.sendTo(id, network.MsgTypeGameStart, ev)
	}

	r.armIdle()
	go r.run()

	// a connection that dropped before SetRoomID never reaches Disconnect
	for _, id := range r.order {
		if sess := r.participants[id].Session; sess != nil && !sess.Alive() {
			r.post(disconnectEvent{userID: id, sessionID: sess.ID})
		}
	}
	return nil
}

func (r *Room) run() {
	defer close(r.done)
	for ev := range r.inbox {
		switch e := ev.(type) {
		case submitEvent:
			r.lastEvent = time.Now()
			e.reply <- r.handleSubmit(e.sub)
		case disconnectEvent:
			r.lastEvent = time.Now()
			r.handleDisconnect(e.userID, e.sessionID)
		case advanceEvent:
			r.handleAdvance(e.nextIndex)
		case forfeitEvent:
			r.handleForfeit(e.userID)
		case idleEvent:
			r.handleIdle()
		case snapshotEvent:
			e.reply <- r.snapshot()
		}
		if r.lifecycle.Is(state.PhaseDiscarded) {
			return
		}
	}
}

// post delivers ev to the room goroutine. It fails once the room is gone.
func (r *Room) post(ev any) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- ev:
		return true
	case <-r.done:
		return false
	}
}

// Submit hands one answer to the room and waits for it to be applied.
// ErrStaleSubmission marks duplicate or late answers; callers drop those silently.
func (r *Room) Submit(ctx context.Context, sub Submission) error {
	reply := make(chan error, 1)
	if !r.post(submitEvent{sub: sub, reply: reply}) {
		return ErrRoomClosed
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrRoomClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect reports that sessionID of userID dropped.
func (r *Room) Disconnect(userID, sessionID string) {
	r.post(disconnectEvent{userID: userID, sessionID: sessionID})
}

// Snapshot returns the current state, or ok=false once the room is gone.
func (r *Room) Snapshot(ctx context.Context) (Snapshot, bool) {
	reply := make(chan Snapshot, 1)
	if !r.post(snapshotEvent{reply: reply}) {
		return Snapshot{}, false
	}
	select {
	case s := <-reply:
		return s, true
	case <-r.done:
		return Snapshot{}, false
	case <-ctx.Done():
		return Snapshot{}, false
	}
}

// Done is closed after the room is discarded.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) HasParticipant(userID string) bool {
	_, ok := r.participants[userID]
	return ok
}

func (r *Room) handleSubmit(sub Submission) error {
	if !r.lifecycle.Is(state.PhaseInProgress) {
		return ErrRoomClosed
	}
	player, ok := r.players[sub.UserID]
	if !ok {
		return ErrNotParticipant
	}
	if sub.QuestionIndex != r.currentIndex || player.LastAnsweredIndex >= r.currentIndex || player.Finished {
		logger.Log.Debugf("Room %s: ignoring submission from %s for question %d (current %d, last %d)",
			r.ID, sub.UserID, sub.QuestionIndex, r.currentIndex, player.LastAnsweredIndex)
		return ErrStaleSubmission
	}

	q := r.questions[r.currentIndex]
	if sub.AnswerIndex >= len(q.Options) {
		return ErrInvalidSubmission
	}
	final := r.currentIndex == len(r.questions)-1
	if sub.IsFinal != final {
		return ErrInvalidSubmission
	}

	correct := sub.AnswerIndex == q.CorrectIndex
	if correct {
		player.Score++
	}
	player.LastAnsweredIndex = r.currentIndex
	player.Finished = final
	r.answeredCount++

	r.sendTo(sub.UserID, network.MsgTypeAnswerResult, network.AnswerResultEvent{
		QuestionIndex: r.currentIndex,
		Correct:       correct,
		CorrectIndex:  q.CorrectIndex,
		Score:         player.Score,
	})
	r.sendTo(r.opponentOf(sub.UserID), network.MsgTypeOpponentProgress, network.OpponentProgressEvent{
		UserID:  sub.UserID,
		Score:   player.Score,
		IsFinal: final,
	})

	if r.answeredCount == 2 {
		r.answeredCount = 0
		r.currentIndex++
		if !final {
			next := r.currentIndex
			r.timers.AddTimer(r.opts.AdvanceDelay, 0, func() {
				r.post(advanceEvent{nextIndex: next})
			})
		}
	}

	if r.allFinished() {
		r.finish(OutcomeCompleted, "")
	}
	return nil
}

func (r *Room) handleAdvance(nextIndex int) {
	if !r.lifecycle.Is(state.PhaseInProgress) || nextIndex != r.currentIndex {
		return
	}
	for _, id := range r.order {
		r.sendTo(id, network.MsgTypeNextQuestion, network.NextQuestionEvent{NextIndex: nextIndex})
	}
}

func (r *Room) handleDisconnect(userID, sessionID string) {
	p, ok := r.participants[userID]
	if !ok || !r.connected[userID] {
		return
	}
	if p.Session != nil && p.Session.ID != sessionID {
		return
	}
	r.connected[userID] = false
	logger.Log.Infof("Room %s: player %s disconnected", r.ID, userID)

	if !r.lifecycle.Is(state.PhaseInProgress) {
		return
	}
	r.sendTo(r.opponentOf(userID), network.MsgTypeOpponentDisconnected, network.OpponentDisconnectedEvent{UserID: userID})

	if !r.connected[r.opponentOf(userID)] {
		logger.Log.Infof("Room %s: both players gone, voiding", r.ID)
		r.void()
		return
	}
	if !r.players[userID].Finished {
		r.forfeitTimers[userID] = r.timers.AddTimer(r.opts.ForfeitAfter, 0, func() {
			r.post(forfeitEvent{userID: userID})
		})
	}
}

func (r *Room) handleForfeit(userID string) {
	delete(r.forfeitTimers, userID)
	if !r.lifecycle.Is(state.PhaseInProgress) || r.connected[userID] {
		return
	}
	logger.Log.Infof("Room %s: %s forfeits", r.ID, userID)
	r.finish(OutcomeForfeit, userID)
}

func (r *Room) handleIdle() {
	if !r.lifecycle.Is(state.PhaseInProgress) {
		return
	}
	if wait := r.opts.IdleTimeout - time.Since(r.lastEvent); wait > 0 {
		r.armIdle()
		return
	}
	logger.Log.Warnf("Room %s idle for %s, voiding", r.ID, r.opts.IdleTimeout)
	for _, id := range r.order {
		r.sendTo(id, network.MsgTypeLiveGameOver, network.LiveGameOverEvent{
			RoomID:  r.ID,
			Scores:  r.scores(),
			Outcome: OutcomeVoid,
		})
	}
	r.void()
}

// armIdle schedules an idle check. The check measures from lastEvent, which
// submissions and disconnects refresh.
func (r *Room) armIdle() {
	if r.opts.IdleTimeout <= 0 {
		return
	}
	r.idleTimer = r.timers.AddTimer(r.opts.IdleTimeout, 0, func() {
		r.post(idleEvent{})
	})
}

// finish moves the room to terminal, reports the result and discards it.
// forfeiter is empty unless outcome is OutcomeForfeit.
func (r *Room) finish(outcome, forfeiter string) {
	if err := r.lifecycle.Terminate(); err != nil {
		return
	}

	res := Result{
		RoomID:    r.ID,
		Category:  r.Category,
		PlayerIDs: r.order,
		Scores:    r.scores(),
		Outcome:   outcome,
		StartedAt: r.CreatedAt,
	}
	for _, q := range r.questions {
		res.QuestionIDs = append(res.QuestionIDs, q.ID)
	}

	a, b := r.order[0], r.order[1]
	switch {
	case outcome == OutcomeForfeit:
		res.WinnerID, res.LoserID = r.opponentOf(forfeiter), forfeiter
	case res.Scores[a] > res.Scores[b]:
		res.WinnerID, res.LoserID = a, b
	case res.Scores[b] > res.Scores[a]:
		res.WinnerID, res.LoserID = b, a
	default:
		res.IsTie = true
	}

	over := network.LiveGameOverEvent{
		RoomID:   r.ID,
		Scores:   res.Scores,
		WinnerID: res.WinnerID,
		IsTie:    res.IsTie,
		Outcome:  outcome,
	}
	for _, id := range r.order {
		r.sendTo(id, network.MsgTypeLiveGameOver, over)
	}

	if r.finisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
		r.finisher.FinishMatch(ctx, res)
		cancel()
	}
	r.discard()
}

func (r *Room) void() {
	r.discard()
}

func (r *Room) discard() {
	if err := r.lifecycle.Discard(); err != nil {
		return
	}
	for _, p := range r.participants {
		if p.Session != nil {
			p.Session.ClearRoom(r.ID)
		}
	}
	if r.onDiscard != nil {
		r.onDiscard(r)
	}
}

func (r *Room) cancelTimers() {
	for _, id := range r.forfeitTimers {
		r.timers.RemoveTimer(id)
	}
	if r.idleTimer != 0 {
		r.timers.RemoveTimer(r.idleTimer)
	}
}

func (r *Room) allFinished() bool {
	for _, p := range r.players {
		if !p.Finished {
			return false
		}
	}
	return true
}

func (r *Room) scores() map[string]int {
	out := make(map[string]int, len(r.players))
	for id, p := range r.players {
		out[id] = p.Score
	}
	return out
}

func (r *Room) opponentOf(userID string) string {
	if r.order[0] == userID {
		return r.order[1]
	}
	return r.order[0]
}

func (r *Room) snapshot() Snapshot {
	s := Snapshot{
		ID:                   r.ID,
		Phase:                r.lifecycle.Phase(),
		CurrentQuestionIndex: r.currentIndex,
		AnsweredCount:        r.answeredCount,
		Players:              make(map[string]PlayerState, len(r.players)),
	}
	for id, p := range r.players {
		s.Players[id] = *p
	}
	return s
}

// sendTo skips disconnected players.
func (r *Room) sendTo(userID string, msgID uint16, payload any) {
	if !r.connected[userID] {
		return
	}
	sess := r.participants[userID].Session
	if err := r.broadcaster.SendToSession(sess, msgID, payload); err != nil {
		logger.Log.Warnf("Room %s: send %d to %s failed: %v", r.ID, msgID, userID, err)
	}
}
