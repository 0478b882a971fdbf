package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightgive/donor-engine/internal/pkg/logger"
)

// OrgRateLimiter enforces platform-wide delivery ceilings per organization
// using atomic Redis Lua scripts. The schedule allocator already spaces
// sends out; this is the backstop that holds when several campaigns of the
// same organization fire at once, or when an operator resumes a large
// backlog. A GET then INCR pattern would race between dispatcher instances,
// so both counters are checked and bumped inside one script.
type OrgRateLimiter struct {
	redis *redis.Client

	limitScript *redis.Script

	perMinute int
	perDay    int
}

// Counters are checked before incrementing so a denied request never
// consumes quota.
const orgLimitLuaScript = `
local minuteKey = KEYS[1]
local dailyKey = KEYS[2]
local increment = tonumber(ARGV[1])
local minuteLimit = tonumber(ARGV[2])
local dailyLimit = tonumber(ARGV[3])
local minuteTTL = tonumber(ARGV[4])
local dailyTTL = tonumber(ARGV[5])

local minCurrent = tonumber(redis.call("GET", minuteKey) or "0")
local dayCurrent = tonumber(redis.call("GET", dailyKey) or "0")

if minCurrent + increment > minuteLimit then
    return {0, 1, minCurrent}
end
if dayCurrent + increment > dailyLimit then
    return {0, 2, dayCurrent}
end

local newMin = redis.call("INCRBY", minuteKey, increment)
if newMin == increment then
    redis.call("EXPIRE", minuteKey, minuteTTL)
end

local newDay = redis.call("INCRBY", dailyKey, increment)
if newDay == increment then
    redis.call("EXPIRE", dailyKey, dailyTTL)
end

return {1, 0, newDay}
`

// NewOrgRateLimiter creates a limiter with pre-compiled Lua scripts.
func NewOrgRateLimiter(redisClient *redis.Client, perMinute, perDay int) *OrgRateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if perDay <= 0 {
		perDay = 10000
	}
	return &OrgRateLimiter{
		redis:       redisClient,
		limitScript: redis.NewScript(orgLimitLuaScript),
		perMinute:   perMinute,
		perDay:      perDay,
	}
}

// NewOrgRateLimiterFromURL connects to Redis and verifies the connection
// before returning a limiter.
func NewOrgRateLimiterFromURL(redisURL string, perMinute, perDay int) (*OrgRateLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewOrgRateLimiter(client, perMinute, perDay), nil
}

// Allow atomically checks and increments the organization's counters.
// Returns how long to wait before retrying when denied. A daily denial
// returns a wait to the next UTC midnight; the dispatcher requeues the
// email rather than failing it.
func (r *OrgRateLimiter) Allow(ctx context.Context, orgID string, count int) (allowed bool, waitTime time.Duration, err error) {
	now := time.Now().UTC()

	minuteKey := fmt.Sprintf("orglimit:%s:min:%d", orgID, now.Unix()/60)
	dailyKey := fmt.Sprintf("orglimit:%s:day:%s", orgID, now.Format("2006-01-02"))

	result, err := r.limitScript.Run(ctx, r.redis,
		[]string{minuteKey, dailyKey},
		count,
		r.perMinute,
		r.perDay,
		120,   // minute TTL
		90000, // daily TTL, 25 hours
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("org rate limit check failed: %w", err)
	}

	if result[0].(int64) == 1 {
		return true, 0, nil
	}

	switch result[1].(int64) {
	case 1:
		waitTime = time.Duration(60-now.Second()) * time.Second
	case 2:
		midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		waitTime = midnight.Sub(now)
	}
	logger.Debug("org rate limit denied", "org_id", orgID, "wait_seconds", int(waitTime.Seconds()))
	return false, waitTime, nil
}

// Usage returns the organization's current counters next to their limits.
func (r *OrgRateLimiter) Usage(ctx context.Context, orgID string) (map[string]int64, error) {
	now := time.Now().UTC()

	minuteKey := fmt.Sprintf("orglimit:%s:min:%d", orgID, now.Unix()/60)
	dailyKey := fmt.Sprintf("orglimit:%s:day:%s", orgID, now.Format("2006-01-02"))

	pipe := r.redis.Pipeline()
	minCmd := pipe.Get(ctx, minuteKey)
	dayCmd := pipe.Get(ctx, dailyKey)
	pipe.Exec(ctx)

	minCount, _ := minCmd.Int64()
	dayCount, _ := dayCmd.Int64()

	return map[string]int64{
		"minute_current": minCount,
		"minute_limit":   int64(r.perMinute),
		"daily_current":  dayCount,
		"daily_limit":    int64(r.perDay),
	}, nil
}

// Close closes the Redis connection.
func (r *OrgRateLimiter) Close() error {
	return r.redis.Close()
}
