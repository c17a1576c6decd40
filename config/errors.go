package config

import "errors"

// Sentinel errors for core configuration validation.
var (
	// ErrConfigEmpty is returned when the config data is empty (zero bytes).
	ErrConfigEmpty = errors.New("core configuration is empty")

	// ErrTimeoutInvalid is returned when a timeout is zero or negative.
	ErrTimeoutInvalid = errors.New("timeout must be positive")

	// ErrStageExceedsWorkflow is returned when the per-stage budget
	// exceeds the global workflow budget.
	ErrStageExceedsWorkflow = errors.New("stage timeout exceeds workflow timeout")

	// ErrParallelismInvalid is returned when a concurrency cap is < 1.
	ErrParallelismInvalid = errors.New("concurrency cap must be at least 1")

	// ErrRetryInvalid is returned when retry attempts are negative or
	// the retry delay is not positive.
	ErrRetryInvalid = errors.New("invalid retry envelope")

	// ErrBreakerInvalid is returned when a breaker threshold is < 1 or
	// the breaker timeout is not positive.
	ErrBreakerInvalid = errors.New("invalid circuit breaker settings")

	// ErrWeightsInvalid is returned when custom score weights do not
	// form a convex combination.
	ErrWeightsInvalid = errors.New("score weights must be non-negative and sum to 1")

	// ErrRatioInvalid is returned when a ratio option is outside [0,1].
	ErrRatioInvalid = errors.New("ratio must be within [0,1]")

	// ErrThresholdInvalid is returned when an amount threshold is negative
	// or risk bands are mis-ordered.
	ErrThresholdInvalid = errors.New("invalid threshold configuration")

	// ErrRouteKindUnknown is returned for an unrecognized route kind.
	ErrRouteKindUnknown = errors.New("unknown route kind")

	// ErrMinAgentsInvalid is returned when consensus is enabled with
	// fewer than 2 minimum agents.
	ErrMinAgentsInvalid = errors.New("consensus requires min_agents >= 2")
)
