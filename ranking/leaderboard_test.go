package ranking

import (
	"context"
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestLeaderboard(t *testing.T) *RedisLeaderboard {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })

	lb, err := DialRedisLeaderboard(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("DialRedisLeaderboard: %v", err)
	}
	t.Cleanup(func() { lb.Close() })
	return lb
}

func TestRedisLeaderboard_TopAndRank(t *testing.T) {
	lb := newTestLeaderboard(t)
	ctx := context.Background()

	for id, score := range map[string]int{"a": 10, "b": 45, "c": 25} {
		if err := lb.Update(ctx, id, score); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	// later updates replace the score
	if err := lb.Update(ctx, "a", 50); err != nil {
		t.Fatalf("Update: %v", err)
	}

	top, err := lb.Top(ctx, 2)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(top))
	}
	if top[0].UserID != "a" || top[0].RankingScore != 50 || top[0].Rank != 1 {
		t.Errorf("Unexpected first entry %+v", top[0])
	}
	if top[1].UserID != "b" || top[1].Rank != 2 {
		t.Errorf("Unexpected second entry %+v", top[1])
	}

	rank, err := lb.Rank(ctx, "c")
	if err != nil || rank != 3 {
		t.Errorf("Expected c at rank 3, got %d (%v)", rank, err)
	}
	rank, err = lb.Rank(ctx, "nobody")
	if err != nil || rank != 0 {
		t.Errorf("Expected missing user rank 0, got %d (%v)", rank, err)
	}
}

func TestRedisLeaderboard_DialRequiresURL(t *testing.T) {
	if _, err := DialRedisLeaderboard(context.Background(), " "); err == nil {
		t.Fatal("Expected error for empty URL")
	}
}
