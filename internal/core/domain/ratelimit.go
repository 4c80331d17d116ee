package domain

// RateLimitCheckResult is the immutable outcome of one cluster-wide rate check.
type RateLimitCheckResult struct {
	Allowed           bool
	Limit             int
	Remaining         int
	WindowSeconds     int64
	ResetEpochSecond  int64
	RetryAfterSeconds int64
}

// RateLimitAllowed builds an accepted result.
func RateLimitAllowed(limit, remaining int, windowSeconds, resetEpochSecond int64) RateLimitCheckResult {
	return RateLimitCheckResult{
		Allowed:          true,
		Limit:            limit,
		Remaining:        remaining,
		WindowSeconds:    windowSeconds,
		ResetEpochSecond: resetEpochSecond,
	}
}

// RateLimitRejected builds a rejected result. Callers should wait
// retryAfterSeconds before trying again.
func RateLimitRejected(limit int, windowSeconds, resetEpochSecond, retryAfterSeconds int64) RateLimitCheckResult {
	return RateLimitCheckResult{
		Limit:             limit,
		WindowSeconds:     windowSeconds,
		ResetEpochSecond:  resetEpochSecond,
		RetryAfterSeconds: retryAfterSeconds,
	}
}
