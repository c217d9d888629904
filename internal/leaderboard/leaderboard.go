package leaderboard

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dailyjudge/apiserver/config"
	"github.com/redis/go-redis/v9"
)

// Standing is one row of the global rank-points leaderboard.
type Standing struct {
	Rank       int `json:"rank"`
	UserID     int `json:"user_id"`
	RankPoints int `json:"rank_points"`
}

// Board mirrors user rank points into a sorted set so the global leaderboard
// can be read without scanning the users table.
type Board struct {
	client *redis.Client
	key    string
}

// NewRedisClient connects to Redis and pings it.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewBoard(client *redis.Client, key string) *Board {
	if key == "" {
		key = "leaderboard:rank_points"
	}
	return &Board{client: client, key: key}
}

// Update sets the user's score to points.
func (b *Board) Update(ctx context.Context, userID, points int) error {
	return b.client.ZAdd(ctx, b.key, redis.Z{
		Score:  float64(points),
		Member: strconv.Itoa(userID),
	}).Err()
}

// Remove drops the user from the ranking.
func (b *Board) Remove(ctx context.Context, userID int) error {
	return b.client.ZRem(ctx, b.key, strconv.Itoa(userID)).Err()
}

// Replace swaps the whole ranking for points in one MULTI/EXEC, so readers
// never see a partially rebuilt set.
func (b *Board) Replace(ctx context.Context, points map[int]int) error {
	members := make([]redis.Z, 0, len(points))
	for userID, p := range points {
		members = append(members, redis.Z{Score: float64(p), Member: strconv.Itoa(userID)})
	}
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.key)
		if len(members) > 0 {
			pipe.ZAdd(ctx, b.key, members...)
		}
		return nil
	})
	return err
}

// Top returns the n highest-scoring users, best first.
func (b *Board) Top(ctx context.Context, n int) ([]Standing, error) {
	if n < 1 {
		return []Standing{}, nil
	}
	entries, err := b.client.ZRevRangeWithScores(ctx, b.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	return standingsFromZ(entries)
}

func standingsFromZ(entries []redis.Z) ([]Standing, error) {
	standings := make([]Standing, 0, len(entries))
	for i, entry := range entries {
		member, ok := entry.Member.(string)
		if !ok {
			return nil, fmt.Errorf("leaderboard member %v is not a string", entry.Member)
		}
		userID, err := strconv.Atoi(member)
		if err != nil {
			return nil, fmt.Errorf("leaderboard member %q: %w", member, err)
		}
		standings = append(standings, Standing{
			Rank:       i + 1,
			UserID:     userID,
			RankPoints: int(entry.Score),
		})
	}
	return standings, nil
}
