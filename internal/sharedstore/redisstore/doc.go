// Package redisstore implements sharedstore.Store on Redis with go-redis.
//
// Key layout, all under Config.KeyPrefix:
//
//	<key>                    values (SET PX / GET / DEL)
//	lock:<name>              locks (SET NX PX, owner ULID as value)
//	rl:{<key>}:config        limiter rate and interval (hash)
//	rl:{<key>}:log           limiter permit log (sorted set, score = ms)
//
// Compare-and-delete, compare-and-swap, lock release and permit draws run as Lua scripts so
// each is a single atomic step on the server. Limiter scripts read the
// server clock, so instances with skewed clocks still agree on the window.
package redisstore
