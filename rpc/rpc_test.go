package rpc

import (
	"context"
	"net/rpc"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/quizarena/models"
	"github.com/wfunc/quizarena/persistence"
	"github.com/wfunc/quizarena/services"
)

func TestGameService_OverNetRPC(t *testing.T) {
	ctx := context.Background()
	db := persistence.NewMemory(nil)
	db.UpdateProfile(ctx, "u1", func(p *models.RankingProfile) { p.RankingScore = 40; p.MaxStreak = 3 })
	db.UpdateProfile(ctx, "u2", func(p *models.RankingProfile) { p.RankingScore = 10 })

	srv, err := NewServer("127.0.0.1:0", NewGameService(services.NewPlayerService(db, nil)))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go srv.Start()
	defer srv.Stop()

	client, err := rpc.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	var player GetPlayerReply
	if err := client.Call("GameService.GetPlayerWithStats", &GetPlayerArgs{UserID: "u1"}, &player); err != nil {
		t.Fatalf("GetPlayerWithStats: %v", err)
	}
	if player.Player.Profile.RankingScore != 40 || player.Player.Profile.MaxStreak != 3 {
		t.Errorf("Unexpected player %+v", player.Player)
	}

	var board GetLeaderboardReply
	if err := client.Call("GameService.GetLeaderboard", &GetLeaderboardArgs{Limit: 5}, &board); err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(board.Entries) != 2 || board.Entries[0].UserID != "u1" {
		t.Errorf("Unexpected leaderboard %+v", board.Entries)
	}

	if err := client.Call("GameService.GetPlayerWithStats", &GetPlayerArgs{}, &player); err == nil {
		t.Error("Expected error for empty user id")
	}
}

func TestHealthServer(t *testing.T) {
	h, err := NewHealthServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewHealthServer: %v", err)
	}
	go h.Start()
	defer h.Stop()

	conn, err := grpc.NewClient(h.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING before start, got %v", resp.Status)
	}

	h.SetServing(true)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING, got %v (%v)", resp.GetStatus(), err)
	}
}
