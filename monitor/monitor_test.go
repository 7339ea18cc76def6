package monitor

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMonitor_MetricsEndpoint(t *testing.T) {
	m := NewMonitor("quizarena")
	m.IncOnlinePlayers()
	m.SetActiveRooms(3)
	m.SetWaitingPlayers(2)
	m.IncMessagesReceived()
	m.ObserveMessageLatency(5 * time.Millisecond)
	m.IncMatchesStarted()
	m.IncMatchesCompleted("forfeit")
	m.IncTieBreakers()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"quizarena_active_rooms 3",
		"quizarena_waiting_players 2",
		`quizarena_matches_completed_total{outcome="forfeit"} 1`,
		"quizarena_tie_breakers_started_total 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}

func TestNewMonitor_Twice(t *testing.T) {
	// separate registries must not collide
	NewMonitor("quizarena")
	NewMonitor("quizarena")
}
