// Package cache shares finished monster simulations between processes through
// Redis, keyed by everything that determines the outcome of a trial batch.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/lawnchairsociety/combatsim/internal/combat"
	"github.com/lawnchairsociety/combatsim/internal/logger"
	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

const keyPrefix = "combatsim:result:"

// Config holds Redis connection settings.
type Config struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultConfig returns a disabled cache pointing at a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr: "localhost:6379",
		TTL:  24 * time.Hour,
	}
}

// NewClient opens a client for the configured server and checks it responds.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Executor wraps another executor, answering repeated requests from Redis.
// Redis failures are logged and the request is simulated as if uncached.
type Executor struct {
	next   simulation.Executor
	client *redis.Client
	ttl    time.Duration
}

var _ simulation.Executor = (*Executor)(nil)

// New wraps next with a cache stored in client.
func New(next simulation.Executor, client *redis.Client, ttl time.Duration) *Executor {
	return &Executor{next: next, client: client, ttl: ttl}
}

// Key returns the cache key of a request.
func Key(req combat.Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}
	sum := blake2b.Sum256(payload)
	return keyPrefix + hex.EncodeToString(sum[:]), nil
}

// Simulate returns a cached result when one exists, otherwise runs the wrapped
// executor and stores a successful result.
func (e *Executor) Simulate(ctx context.Context, req combat.Request) (combat.Result, error) {
	key, err := Key(req)
	if err != nil {
		return e.next.Simulate(ctx, req)
	}

	if result, ok := e.lookup(ctx, key, req.MonsterID); ok {
		return result, nil
	}

	result, err := e.next.Simulate(ctx, req)
	if err != nil || !result.SimSuccess || ctx.Err() != nil {
		return result, err
	}
	e.store(ctx, key, req.MonsterID, result)
	return result, nil
}

func (e *Executor) lookup(ctx context.Context, key string, monsterID int) (combat.Result, bool) {
	data, err := e.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warning("Result cache read failed", "monster_id", monsterID, "error", err)
		}
		return combat.Result{}, false
	}
	var result combat.Result
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warning("Discarding unreadable cached result", "monster_id", monsterID, "error", err)
		return combat.Result{}, false
	}
	logger.Debug("Result cache hit", "monster_id", monsterID)
	return result, true
}

func (e *Executor) store(ctx context.Context, key string, monsterID int, result combat.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		logger.Warning("Result not cacheable", "monster_id", monsterID, "error", err)
		return
	}
	if err := e.client.Set(ctx, key, data, e.ttl).Err(); err != nil {
		logger.Warning("Result cache write failed", "monster_id", monsterID, "error", err)
	}
}

// Purge deletes every cached result. It returns the number of keys removed.
func Purge(ctx context.Context, client *redis.Client) (int64, error) {
	var removed int64
	iter := client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to delete cached result: %w", err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan cached results: %w", err)
	}
	return removed, nil
}
