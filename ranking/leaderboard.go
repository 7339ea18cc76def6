package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/quizarena/models"
)

const leaderboardKey = "quizarena:leaderboard"

// RedisLeaderboard keeps ranking scores in a sorted set.
type RedisLeaderboard struct {
	rdb *redis.Client
}

func NewRedisLeaderboard(rdb *redis.Client) *RedisLeaderboard {
	return &RedisLeaderboard{rdb: rdb}
}

// DialRedisLeaderboard connects using a redis:// URL.
func DialRedisLeaderboard(ctx context.Context, url string) (*RedisLeaderboard, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("redis url required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisLeaderboard{rdb: rdb}, nil
}

func (l *RedisLeaderboard) Update(ctx context.Context, userID string, score int) error {
	return l.rdb.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(score), Member: userID}).Err()
}

// Top returns the highest scores first, ranks starting at 1.
func (l *RedisLeaderboard) Top(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	zs, err := l.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, models.LeaderboardEntry{
			UserID:       member,
			RankingScore: int(z.Score),
			Rank:         i + 1,
		})
	}
	return out, nil
}

// Rank returns the 1-based position of userID, or 0 if absent.
func (l *RedisLeaderboard) Rank(ctx context.Context, userID string) (int, error) {
	r, err := l.rdb.ZRevRank(ctx, leaderboardKey, userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(r) + 1, nil
}

func (l *RedisLeaderboard) Close() error {
	return l.rdb.Close()
}
