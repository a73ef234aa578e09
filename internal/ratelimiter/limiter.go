// Package ratelimiter implements the Endpoint Rate Limiter (C2): a
// Redis-backed token bucket per RPC endpoint, shared across every worker
// process touching that endpoint, with FIFO waiting up to a fixed timeout.
//
// The in-process fast path mirrors the teacher's per-node rate.Limiter
// construction (internal/flow/client.go's newLimiterFromEnv, supporting
// fractional rps) and its per-key registry with TTL cleanup
// (internal/api/ratelimit.go's ipLimiter). The bucket's source of truth is
// Redis, via an atomic Lua script, so multiple worker processes sharing one
// endpoint never jointly exceed its configured rate.
package ratelimiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// DefaultWaitTimeout is the maximum time Wait blocks for a token before
// giving up, per the fixed 120s ceiling.
const DefaultWaitTimeout = 120 * time.Second

// tokenBucketScript implements a Redis-native token bucket: each call
// refills the bucket based on elapsed time since the last refill, then
// attempts to take one token. Atomic via EVAL so concurrent callers across
// processes never overdraw the shared bucket.
const tokenBucketScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local bucket = redis.call("HMGET", key, "tokens", "updated_at")
local tokens = tonumber(bucket[1])
local updatedAt = tonumber(bucket[2])

if tokens == nil then
	tokens = burst
	updatedAt = now
end

local elapsed = now - updatedAt
if elapsed > 0 then
	tokens = math.min(burst, tokens + elapsed * rate)
	updatedAt = now
end

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "updated_at", updatedAt)
redis.call("EXPIRE", key, 3600)

return allowed
`

// endpointConfig is the locally-cached rate/burst pair for one endpoint,
// registered once at startup and consulted on every Wait call.
type endpointConfig struct {
	rate  float64
	burst int
	local *rate.Limiter // smooths bursts between Redis round trips
}

// Limiter is the shared rate limiter for all configured RPC endpoints.
type Limiter struct {
	redis *redis.Client

	mu        sync.RWMutex
	endpoints map[string]*endpointConfig

	waitTimeout time.Duration
	pollEvery   time.Duration
}

// New constructs a Limiter backed by redisClient. redisClient may be nil, in
// which case Wait degrades to the local rate.Limiter only (useful for tests
// and for single-process deployments without Redis).
func New(redisClient *redis.Client) *Limiter {
	return &Limiter{
		redis:       redisClient,
		endpoints:   make(map[string]*endpointConfig),
		waitTimeout: DefaultWaitTimeout,
		pollEvery:   50 * time.Millisecond,
	}
}

// RegisterEndpoint sets the bucket's rate (requests/sec, may be fractional
// — e.g. 0.2 for one request every five seconds, matching the teacher's
// FLOW_RPC_RPS_PER_NODE fractional-rate support) and burst capacity.
func (l *Limiter) RegisterEndpoint(endpointID string, ratePerSec float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endpoints[endpointID] = &endpointConfig{
		rate:  ratePerSec,
		burst: burst,
		local: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

func (l *Limiter) config(endpointID string) (*endpointConfig, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cfg, ok := l.endpoints[endpointID]
	return cfg, ok
}

// Wait blocks, FIFO per caller arrival order as enforced by the local
// limiter's internal reservation queue, until a token is available for
// endpointID or DefaultWaitTimeout elapses, whichever comes first.
func (l *Limiter) Wait(ctx context.Context, endpointID string) error {
	cfg, ok := l.config(endpointID)
	if !ok {
		return fmt.Errorf("ratelimiter: endpoint %q not registered", endpointID)
	}

	ctx, cancel := context.WithTimeout(ctx, l.waitTimeout)
	defer cancel()

	// Local limiter enforces FIFO ordering and absorbs most of the traffic
	// without a Redis round trip per call.
	if err := cfg.local.Wait(ctx); err != nil {
		return fmt.Errorf("ratelimiter: local wait for %s: %w", endpointID, err)
	}

	if l.redis == nil {
		return nil
	}

	// Cross-process check: keep polling the shared Redis bucket until it
	// yields a token or the timeout fires. The local Wait above already
	// paced this goroutine, so most calls take the token on the first try.
	for {
		allowed, err := l.takeRedisToken(ctx, endpointID, cfg)
		if err != nil {
			// Redis unavailable: fail open on the local limiter's decision
			// rather than stalling every worker on a single dependency.
			return nil
		}
		if allowed {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("ratelimiter: endpoint %s stalled: %w", endpointID, ctx.Err())
		case <-time.After(l.pollEvery):
		}
	}
}

func (l *Limiter) takeRedisToken(ctx context.Context, endpointID string, cfg *endpointConfig) (bool, error) {
	key := fmt.Sprintf("ratelimit:endpoint:%s", endpointID)
	now := float64(time.Now().UnixMilli()) / 1000.0
	res, err := l.redis.Eval(ctx, tokenBucketScript, []string{key}, cfg.rate, cfg.burst, now).Result()
	if err != nil {
		return false, err
	}
	allowed, _ := res.(int64)
	return allowed == 1, nil
}
