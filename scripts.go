package ratelimit

import "github.com/redis/go-redis/v9"

// Server-side scripts for the three admission algorithms plus the reset
// engine. Each script mutates state for one identifier in a single atomic
// step; the client never enforces a limit from a multi-step read. Hashes
// are computed once at package init so the first invocation can go straight
// to EVALSHA.
var (
	fixedWindowLimitScript = redis.NewScript(`
local key         = KEYS[1]
local window      = tonumber(ARGV[1])
local incrementBy = tonumber(ARGV[2])

if window == nil or window <= 0 then
  return redis.error_reply("window must be positive")
end
if incrementBy == nil then
  return redis.error_reply("increment must be a number")
end

local exists = redis.call("EXISTS", key)
local count = redis.call("INCRBY", key, incrementBy)
if exists == 0 then
  redis.call("PEXPIRE", key, window)
end

return count
`)

	fixedWindowRemainingScript = redis.NewScript(`
local value = redis.call("GET", KEYS[1])
if value == false then
  return 0
end
return value
`)

	slidingWindowLimitScript = redis.NewScript(`
local currentKey  = KEYS[1]
local previousKey = KEYS[2]
local tokens      = tonumber(ARGV[1])
local now         = tonumber(ARGV[2])
local window      = tonumber(ARGV[3])
local incrementBy = tonumber(ARGV[4])

local current = redis.call("GET", currentKey)
if current == false then
  current = 0
end
local previous = redis.call("GET", previousKey)
if previous == false then
  previous = 0
end

local percentageInCurrent = (now % window) / window
local weightedPrevious = math.floor((1 - percentageInCurrent) * previous)
if tonumber(current) + weightedPrevious >= tokens then
  return -1
end

local newCurrent = redis.call("INCRBY", currentKey, incrementBy)
if newCurrent == incrementBy then
  -- The key must outlive its own window so it can serve as "previous"
  -- in the next one.
  redis.call("PEXPIRE", currentKey, 2 * window + 1000)
end

return tokens - (newCurrent + weightedPrevious)
`)

	slidingWindowRemainingScript = redis.NewScript(`
local currentKey  = KEYS[1]
local previousKey = KEYS[2]
local now         = tonumber(ARGV[1])
local window      = tonumber(ARGV[2])

local current = redis.call("GET", currentKey)
if current == false then
  current = 0
end
local previous = redis.call("GET", previousKey)
if previous == false then
  previous = 0
end

local percentageInCurrent = (now % window) / window
local weightedPrevious = math.floor((1 - percentageInCurrent) * previous)

return tonumber(current) + weightedPrevious
`)

	tokenBucketLimitScript = redis.NewScript(`
local key         = KEYS[1]
local maxTokens   = tonumber(ARGV[1])
local interval    = tonumber(ARGV[2])
local refillRate  = tonumber(ARGV[3])
local now         = tonumber(ARGV[4])
local incrementBy = tonumber(ARGV[5])

local bucket = redis.call("HMGET", key, "refilledAt", "tokens")

local refilledAt
local tokens
if bucket[1] == false then
  refilledAt = now
  tokens = maxTokens
else
  refilledAt = tonumber(bucket[1])
  tokens = tonumber(bucket[2])
end

if now >= refilledAt + interval then
  local numRefills = math.floor((now - refilledAt) / interval)
  tokens = math.min(maxTokens, tokens + numRefills * refillRate)
  -- refilledAt advances only by whole intervals, keeping sub-interval
  -- progress toward the next refill.
  refilledAt = refilledAt + numRefills * interval
end

if tokens < incrementBy then
  local intervalsNeeded = math.ceil((incrementBy - tokens) / refillRate)
  local retryAfter = refilledAt + intervalsNeeded * interval
  return {0, maxTokens, 0, retryAfter - now}
end

local remaining = tokens - incrementBy
local expireAt = math.ceil((maxTokens - remaining) / refillRate) * interval * 2

redis.call("HSET", key, "refilledAt", refilledAt, "tokens", remaining)
redis.call("PEXPIRE", key, expireAt)

return {1, maxTokens, remaining, refilledAt + interval - now}
`)

	tokenBucketRemainingScript = redis.NewScript(`
local key       = KEYS[1]
local maxTokens = tonumber(ARGV[1])

local bucket = redis.call("HMGET", key, "refilledAt", "tokens")
if bucket[1] == false then
  return {maxTokens, -1}
end

return {bucket[2], bucket[1]}
`)

	resetScript = redis.NewScript(`
local key        = ARGV[1]
local cursor     = ARGV[2]
local batchSize  = tonumber(ARGV[3])
local maxDeletes = tonumber(ARGV[4])

-- The bare key holds the suffix-less token-bucket state; the ":*" pattern
-- holds the bucket-suffixed window counters. The literal ":" keeps the
-- match from reaching a sibling identifier that extends this one.
local deleted = redis.call("UNLINK", key)
local pattern = key .. ":*"
repeat
  local result = redis.call("SCAN", cursor, "MATCH", pattern, "COUNT", batchSize)
  cursor = result[1]
  local keys = result[2]
  if #keys > 0 then
    deleted = deleted + redis.call("UNLINK", unpack(keys))
  end
until cursor == "0" or deleted >= maxDeletes

return {deleted, cursor}
`)
)
