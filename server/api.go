package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wfunc/quizarena/challenge"
	"github.com/wfunc/quizarena/logger"
	"github.com/wfunc/quizarena/persistence"
)

// Handler returns the HTTP surface: the websocket endpoint, health check and JSON API.
func (s *GameServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Post("/challenges", s.createChallenge)
		r.Route("/challenges/{id}", func(r chi.Router) {
			r.Get("/", s.getChallenge)
			r.Post("/scores", s.submitChallengeScore)
		})
		r.Get("/leaderboard", s.leaderboard)
		r.Get("/players/{userId}", s.player)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Log.Debugf("%s %s %d %s [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

type createChallengeRequest struct {
	ChallengerID  string `json:"challengerId"`
	OpponentID    string `json:"opponentId"`
	Category      string `json:"category"`
	QuestionCount int    `json:"questionCount"`
}

type submitScoreRequest struct {
	UserID string `json:"userId"`
	Score  *int   `json:"score"`
}

func (s *GameServer) createChallenge(w http.ResponseWriter, r *http.Request) {
	var req createChallengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.QuestionCount == 0 {
		req.QuestionCount = s.cfg.Game.DefaultQuestionCount
	}
	c, err := s.escalator.Create(r.Context(), req.ChallengerID, req.OpponentID, req.Category, req.QuestionCount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *GameServer) getChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := s.escalator.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *GameServer) submitChallengeScore(w http.ResponseWriter, r *http.Request) {
	var req submitScoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Score == nil {
		http.Error(w, "userId and score are required", http.StatusBadRequest)
		return
	}
	c, err := s.escalator.SubmitScore(r.Context(), chi.URLParam(r, "id"), req.UserID, *req.Score)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *GameServer) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.playerService.GetLeaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *GameServer) player(w http.ResponseWriter, r *http.Request) {
	summary, err := s.playerService.GetPlayerWithStats(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warnf("Write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, persistence.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, challenge.ErrNotParticipant):
		status = http.StatusForbidden
	case errors.Is(err, challenge.ErrChallengeClosed):
		status = http.StatusConflict
	case errors.Is(err, challenge.ErrInvalidScore), errors.Is(err, challenge.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, persistence.ErrNotEnoughQuestions):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		logger.Log.Errorf("API error: %v", err)
		http.Error(w, "internal error", status)
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
