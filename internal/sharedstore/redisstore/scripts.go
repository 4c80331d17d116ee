package redisstore

import "github.com/redis/go-redis/v9"

// KEYS[1] = key, ARGV[1] = expected value.
var compareAndDeleteScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// KEYS[1] = key, ARGV[1] = expected, ARGV[2] = new value, ARGV[3] = ttl ms
// (<= 0 keeps the key without expiry).
var compareAndSwapScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// KEYS[1] = config hash, KEYS[2] = permit log, ARGV[1] = permits,
// ARGV[2] = member id. Returns -1 when unconfigured, 0 when rejected and
// 1 when the permits were drawn.
var limiterAcquireScript = redis.NewScript(`
local rate = tonumber(redis.call('HGET', KEYS[1], 'rate'))
local interval = tonumber(redis.call('HGET', KEYS[1], 'interval'))
if not rate or not interval then
	return -1
end
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', now - interval)
local permits = tonumber(ARGV[1])
if redis.call('ZCARD', KEYS[2]) + permits > rate then
	return 0
end
for i = 1, permits do
	redis.call('ZADD', KEYS[2], now, ARGV[2] .. ':' .. i)
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

// KEYS[1] = config hash, KEYS[2] = permit log. Returns -1 when
// unconfigured, otherwise the permits left in the current window.
var limiterAvailableScript = redis.NewScript(`
local rate = tonumber(redis.call('HGET', KEYS[1], 'rate'))
local interval = tonumber(redis.call('HGET', KEYS[1], 'interval'))
if not rate or not interval then
	return -1
end
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local used = redis.call('ZCOUNT', KEYS[2], '(' .. (now - interval), '+inf')
local left = rate - used
if left < 0 then
	return 0
end
return left
`)
