package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/quizarena/broadcast"
	"github.com/wfunc/quizarena/challenge"
	"github.com/wfunc/quizarena/config"
	"github.com/wfunc/quizarena/events"
	"github.com/wfunc/quizarena/invite"
	"github.com/wfunc/quizarena/logger"
	"github.com/wfunc/quizarena/matchmaking"
	"github.com/wfunc/quizarena/models"
	"github.com/wfunc/quizarena/monitor"
	"github.com/wfunc/quizarena/network"
	"github.com/wfunc/quizarena/persistence"
	"github.com/wfunc/quizarena/ranking"
	"github.com/wfunc/quizarena/room"
	quizrpc "github.com/wfunc/quizarena/rpc"
	"github.com/wfunc/quizarena/services"
	"github.com/wfunc/quizarena/session"
	"github.com/wfunc/quizarena/timer"
)

const heartbeatInterval = 30 * time.Second

// Leaderboard is the Redis mirror: written by ranking, read by services.
type Leaderboard interface {
	ranking.Leaderboard
	services.RankReader
}

// Deps are the collaborators the server does not own. Leaderboard, Publisher
// and Monitor are optional.
type Deps struct {
	Questions   persistence.QuestionSource
	DB          persistence.Database
	Leaderboard Leaderboard
	Publisher   events.Publisher
	Monitor     *monitor.Monitor
}

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	roomManager    *room.Manager
	queue          *matchmaking.Queue
	invites        *invite.Registry
	escalator      *challenge.Escalator
	mutator        *ranking.Mutator
	playerService  *services.PlayerService
	broadcaster    *broadcast.SessionBroadcaster
	questions      persistence.QuestionSource
	db             persistence.Database
	publisher      events.Publisher
	monitor        *monitor.Monitor
	timers         *timer.TimerManager

	httpServer *http.Server
	rpcServer  *quizrpc.Server
	health     *quizrpc.HealthServer

	// matchMutex guards the "not in a room" check and room creation.
	matchMutex   sync.Mutex
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewGameServer(cfg *config.Config, deps Deps) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		sessionManager: session.NewManager(),
		questions:      deps.Questions,
		db:             deps.DB,
		publisher:      deps.Publisher,
		monitor:        deps.Monitor,
		timers:         timer.NewTimerManager(),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}

	var (
		lb    ranking.Leaderboard
		ranks services.RankReader
	)
	if deps.Leaderboard != nil {
		lb, ranks = deps.Leaderboard, deps.Leaderboard
	}

	game := cfg.Game
	s.broadcaster = broadcast.NewSessionBroadcaster(s.sessionManager)
	s.queue = matchmaking.NewQueue(s.sessionManager.Alive, game.QueueMaxWait)
	s.invites = invite.NewRegistry(game.InviteTTL)
	s.mutator = ranking.NewMutator(deps.DB, lb)
	s.playerService = services.NewPlayerService(deps.DB, ranks)
	s.roomManager = room.NewRoomManager(s.broadcaster, s, s.timers, room.Options{
		AdvanceDelay: game.AdvanceDelay,
		ForfeitAfter: game.ForfeitAfter,
		IdleTimeout:  game.RoomIdleTimeout,
	})
	s.escalator = challenge.NewEscalator(deps.DB, deps.Questions, s.mutator, challenge.Options{
		TieBreakerQuestions: game.TieBreakerQuestions,
		MaxTieBreakerRounds: game.MaxTieBreakerRounds,
		MaxQuestionCount:    game.MaxQuestionCount,
	})
	s.escalator.OnCompleted = s.challengeCompleted
	s.escalator.OnTieBreaker = func(ctx context.Context, c *models.Challenge) {
		if s.monitor != nil {
			s.monitor.IncTieBreakers()
		}
	}

	if game.SweepInterval > 0 {
		s.timers.AddTimer(game.SweepInterval, game.SweepInterval, s.sweep)
	}
	return s
}

// Start runs the RPC, health and HTTP listeners and blocks until the HTTP
// server stops.
func (s *GameServer) Start() error {
	if addr := s.cfg.Server.RPCAddress; addr != "" {
		rpcServer, err := quizrpc.NewServer(addr, quizrpc.NewGameService(s.playerService))
		if err != nil {
			return err
		}
		s.rpcServer = rpcServer
		go s.rpcServer.Start()
	}
	if addr := s.cfg.Server.HealthAddress; addr != "" {
		health, err := quizrpc.NewHealthServer(addr)
		if err != nil {
			return err
		}
		s.health = health
		go s.health.Start()
	}
	if s.monitor != nil && s.cfg.Server.MetricsAddress != "" {
		s.monitor.StartServer(s.cfg.Server.MetricsAddress)
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.HTTPAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.health != nil {
		s.health.SetServing(true)
	}
	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *GameServer) Shutdown(ctx context.Context) error {
	var errs []error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		if s.health != nil {
			s.health.SetServing(false)
		}
		if s.httpServer != nil {
			errs = append(errs, s.httpServer.Shutdown(ctx))
		}
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		if s.health != nil {
			s.health.Stop()
		}
		if s.monitor != nil {
			errs = append(errs, s.monitor.Shutdown(ctx))
		}
		s.timers.Stop()
	})
	return errors.Join(errs...)
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(heartbeatInterval)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	if s.monitor != nil {
		s.monitor.IncOnlinePlayers()
	}

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.dropSession(sess)
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}
		packet, err := wsConn.ReadPacket()
		if err != nil {
			return
		}
		s.handlePacket(sess, packet)
	}
}

// dropSession removes a closed connection from the queue and tells its room.
func (s *GameServer) dropSession(sess *session.Session) {
	sess.MarkClosed()
	s.sessionManager.Remove(sess.GetID())
	if s.monitor != nil {
		s.monitor.DecOnlinePlayers()
	}
	if s.queue.RemoveConnection(sess.GetID()) {
		logger.Log.Infof("Removed %s from the queue on disconnect", sess.UserID())
	}
	if roomID := sess.RoomID(); roomID != "" {
		if r, ok := s.roomManager.GetRoom(roomID); ok {
			r.Disconnect(sess.UserID(), sess.GetID())
		}
	}
}

// sweep runs on the sweep interval: queue eviction and pairing, invite expiry, gauges.
func (s *GameServer) sweep() {
	evicted, pairs := s.queue.Sweep()
	for _, e := range evicted {
		logger.Log.Infof("Evicted stale queue entry for %s (%s/%d)", e.UserID, e.Category, e.QuestionCount)
		if sess, ok := s.sessionManager.Get(e.ConnectionID); ok && sess.Alive() {
			s.send(sess, network.MsgTypeSearchCancelled, network.SearchCancelledEvent{Removed: true})
		}
	}
	for _, p := range pairs {
		go s.startMatch(p)
	}
	if n := s.invites.Expire(); n > 0 {
		logger.Log.Debugf("Expired %d invites", n)
	}
	s.updateGauges()
}

func (s *GameServer) updateGauges() {
	if s.monitor == nil {
		return
	}
	s.monitor.SetWaitingPlayers(s.queue.Len())
	s.monitor.SetActiveRooms(s.roomManager.Count())
}

func (s *GameServer) send(sess *session.Session, msgID uint16, payload any) {
	if err := s.broadcaster.SendToSession(sess, msgID, payload); err != nil {
		logger.Log.Debugf("Send %d to session %s failed: %v", msgID, sess.GetID(), err)
	}
}

func (s *GameServer) sendError(sess *session.Session, code, message string) {
	s.send(sess, network.MsgTypeError, network.ErrorEvent{Code: code, Message: message})
}
