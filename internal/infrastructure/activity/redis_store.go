package activity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
)

// RedisStore keeps last-seen times in one sorted set: member is the user id,
// score is the unix time in milliseconds.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisStore creates a store under keyPrefix, e.g. "procurement:"
func NewRedisStore(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		key:    keyPrefix + "activity:last_seen",
		logger: logger,
	}
}

// Touch records activity. ZADD GT keeps the newest timestamp when
// concurrent requests race.
func (s *RedisStore) Touch(ctx context.Context, userID int64, at time.Time) error {
	err := s.client.ZAddGT(ctx, s.key, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: strconv.FormatInt(userID, 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	return nil
}

func (s *RedisStore) LastSeen(ctx context.Context, userID int64) (time.Time, bool, error) {
	score, err := s.client.ZScore(ctx, s.key, strconv.FormatInt(userID, 10)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read activity: %w", err)
	}
	return time.UnixMilli(int64(score)).UTC(), true, nil
}

// Active lists users seen at or after since, oldest activity first
func (s *RedisStore) Active(ctx context.Context, since time.Time) ([]int64, error) {
	members, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			s.logger.Warn("Skipping malformed activity member", zap.String("member", m))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *RedisStore) Expire(ctx context.Context, olderThan time.Time) (int, error) {
	// exclusive upper bound: entries exactly at the cutoff survive
	n, err := s.client.ZRemRangeByScore(ctx, s.key, "-inf", "("+strconv.FormatInt(olderThan.UnixMilli(), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("expire activity: %w", err)
	}
	return int(n), nil
}

// Verify interface compliance
var _ port.ActivityStore = (*RedisStore)(nil)
