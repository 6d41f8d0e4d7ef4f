// Package ratelimit paces calls to the upstream platform so one relay
// instance stays inside a conservative request budget.
//
// The token bucket refills wholesale once per period:
//
//	limiter := ratelimit.NewTokenBucket(60, time.Minute)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err // caller went away while throttled
//	}
//	// proceed with the upstream call
//
// Upstream never documents its real thresholds, so capacities are
// configuration, not constants.
package ratelimit
