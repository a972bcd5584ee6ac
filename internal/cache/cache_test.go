package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lawnchairsociety/combatsim/internal/combat"
)

type countingExecutor struct {
	calls  int
	result combat.Result
	err    error
}

func (c *countingExecutor) Simulate(ctx context.Context, req combat.Request) (combat.Result, error) {
	c.calls++
	r := c.result
	r.KillTimeS = float64(req.MonsterID)
	return r, c.err
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func testRequest(monsterID int) combat.Request {
	return combat.Request{
		MonsterID: monsterID,
		Player:    combat.Player{Levels: map[string]int{"Hitpoints": 10}, AttackInterval: 2400},
		Options:   combat.Options{Trials: 100, MaxActions: 1000},
	}
}

func TestExecutorCachesSuccessfulResults(t *testing.T) {
	mr, client := setupRedis(t)
	next := &countingExecutor{result: combat.Result{SimSuccess: true, LowestHitpoints: 40}}
	exec := New(next, client, time.Hour)
	ctx := context.Background()

	first, err := exec.Simulate(ctx, testRequest(3))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	second, err := exec.Simulate(ctx, testRequest(3))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if next.calls != 1 {
		t.Errorf("wrapped executor called %d times, want 1", next.calls)
	}
	if second.KillTimeS != first.KillTimeS || second.LowestHitpoints != 40 {
		t.Errorf("cached result = %+v, want %+v", second, first)
	}

	key, _ := Key(testRequest(3))
	if !mr.Exists(key) {
		t.Fatalf("key %s not stored", key)
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	// A different player is a different key
	req := testRequest(3)
	req.Player.MaxHit = 5
	if _, err := exec.Simulate(ctx, req); err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if next.calls != 2 {
		t.Errorf("wrapped executor called %d times, want 2", next.calls)
	}
}

func TestExecutorSkipsFailures(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	failed := &countingExecutor{result: combat.Result{Reason: "failed"}}
	exec := New(failed, client, time.Hour)
	exec.Simulate(ctx, testRequest(1))
	exec.Simulate(ctx, testRequest(1))
	if failed.calls != 2 {
		t.Errorf("failed result was cached: %d calls, want 2", failed.calls)
	}

	broken := &countingExecutor{err: errors.New("boom")}
	exec = New(broken, client, time.Hour)
	if _, err := exec.Simulate(ctx, testRequest(2)); err == nil {
		t.Error("Expected error to pass through")
	}
	if _, err := exec.Simulate(ctx, testRequest(2)); err == nil {
		t.Error("Expected error to pass through")
	}
	if broken.calls != 2 {
		t.Errorf("errored result was cached: %d calls, want 2", broken.calls)
	}
}

func TestExecutorFallsThroughWhenRedisDown(t *testing.T) {
	mr, client := setupRedis(t)
	next := &countingExecutor{result: combat.Result{SimSuccess: true}}
	exec := New(next, client, time.Hour)
	mr.Close()

	r, err := exec.Simulate(context.Background(), testRequest(4))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if !r.SimSuccess || next.calls != 1 {
		t.Errorf("got %+v after %d calls, want simulated result", r, next.calls)
	}
}

func TestKeyStable(t *testing.T) {
	a, err := Key(testRequest(1))
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	b, _ := Key(testRequest(1))
	c, _ := Key(testRequest(2))
	if a != b {
		t.Errorf("Key not stable: %s != %s", a, b)
	}
	if a == c {
		t.Error("Different monsters share a key")
	}
}

func TestPurge(t *testing.T) {
	mr, client := setupRedis(t)
	mr.Set(keyPrefix+"a", "{}")
	mr.Set(keyPrefix+"b", "{}")
	mr.Set("other", "x")

	n, err := Purge(context.Background(), client)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if !mr.Exists("other") {
		t.Error("Purge removed an unrelated key")
	}
}

func TestNewClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewClient(ctx, Config{Addr: addr}); err == nil {
		t.Error("Expected error for unreachable redis")
	}
}
