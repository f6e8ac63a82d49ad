package state

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStore backs the shared state with Redis so multiple monitor
// instances observe the same cooldowns and streaks. Redis being down
// degrades to "no stored state" instead of failing the cycle: a lost
// cooldown means at worst a duplicate alert.
type RedisStore struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
	log       zerolog.Logger
}

// RedisConfig configures the Redis-backed state store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, log zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisStore{
		client:    client,
		ttl:       ttl,
		opTimeout: 2 * time.Second,
		log:       log.With().Str("component", "state_redis").Logger(),
	}, nil
}

// Close releases the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.opTimeout)
}

// LastTrigger returns when the given scope last fired for symbol.
func (r *RedisStore) LastTrigger(scope, symbol string) (time.Time, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()

	val, err := r.client.Get(ctx, "fsb:trigger:"+scope+":"+symbol).Result()
	if err == redis.Nil {
		return time.Time{}, false
	}
	if err != nil {
		r.log.Warn().Err(err).Str("scope", scope).Str("symbol", symbol).Msg("redis get failed, treating as unset")
		return time.Time{}, false
	}

	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos).UTC(), true
}

// SetLastTrigger records a trigger time for (scope, symbol).
func (r *RedisStore) SetLastTrigger(scope, symbol string, t time.Time) {
	ctx, cancel := r.opCtx()
	defer cancel()

	key := "fsb:trigger:" + scope + ":" + symbol
	if err := r.client.Set(ctx, key, strconv.FormatInt(t.UnixNano(), 10), r.ttl).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("redis set failed")
	}
}

// Streak returns the stored consensus streak for symbol, zero when unset.
func (r *RedisStore) Streak(symbol string) Streak {
	ctx, cancel := r.opCtx()
	defer cancel()

	val, err := r.client.Get(ctx, "fsb:streak:"+symbol).Result()
	if err == redis.Nil {
		return Streak{}
	}
	if err != nil {
		r.log.Warn().Err(err).Str("symbol", symbol).Msg("redis get failed, treating as unset")
		return Streak{}
	}

	dir, countStr, ok := strings.Cut(val, "|")
	if !ok {
		return Streak{}
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return Streak{}
	}
	return Streak{Direction: dir, Count: count}
}

// SetStreak stores the consensus streak for symbol.
func (r *RedisStore) SetStreak(symbol string, s Streak) {
	ctx, cancel := r.opCtx()
	defer cancel()

	key := "fsb:streak:" + symbol
	val := s.Direction + "|" + strconv.Itoa(s.Count)
	if err := r.client.Set(ctx, key, val, r.ttl).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("redis set failed")
	}
}
