package diag

import (
	"os"
	"strconv"
)

// Limits are the execution bounds the validator enforces against a plan.
// They mirror the executor's own limits so plans rejected here would also
// be rejected there.
type Limits struct {
	// MaxSteps bounds the number of steps per plan.
	MaxSteps int `json:"max_steps"`

	// MaxParallel bounds the estimated parallelism (steps with no
	// dependencies all become runnable at once).
	MaxParallel int `json:"max_parallel"`

	// MaxRetriesTotal bounds the sum of recovery max_attempts over a plan.
	MaxRetriesTotal int `json:"max_retries_total"`

	// MaxExecutionSecs bounds the estimated worst-case wall clock.
	MaxExecutionSecs int `json:"max_execution_secs"`

	// MaxStepTimeoutSecs bounds an individual step timeout.
	MaxStepTimeoutSecs int `json:"max_step_timeout_secs"`
}

// DefaultLimits returns the stock executor limits.
func DefaultLimits() Limits {
	return Limits{
		MaxSteps:           100,
		MaxParallel:        10,
		MaxRetriesTotal:    50,
		MaxExecutionSecs:   300,
		MaxStepTimeoutSecs: 30,
	}
}

// LimitsFromEnv returns DefaultLimits overridden by RUNNER_MAX_* variables.
func LimitsFromEnv() Limits {
	l := DefaultLimits()
	l.MaxSteps = envInt("RUNNER_MAX_STEPS", l.MaxSteps)
	l.MaxParallel = envInt("RUNNER_MAX_PARALLEL", l.MaxParallel)
	l.MaxRetriesTotal = envInt("RUNNER_MAX_RETRIES_TOTAL", l.MaxRetriesTotal)
	l.MaxExecutionSecs = envInt("RUNNER_MAX_EXECUTION_SECS", l.MaxExecutionSecs)
	l.MaxStepTimeoutSecs = envInt("RUNNER_MAX_STEP_TIMEOUT_SECS", l.MaxStepTimeoutSecs)
	return l
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
