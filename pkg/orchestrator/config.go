// Copyright 2025 Certen Protocol

package orchestrator

import "time"

// Config carries the orchestrator's tunables, matching the shape of
// pkg/config's getEnv-populated structs but scoped to this package so it
// can be wired independently of the top-level config file.
type Config struct {
	EnableEarlyValidation bool

	// FinalityTimeout bounds how long a submission races for a quorum or
	// local-effects response before returning TimeoutBeforeFinality.
	// Overridable at the top level by WAIT_FOR_FINALITY_TIMEOUT_SECS.
	FinalityTimeout time.Duration

	// LocalExecutionTimeout bounds the additional wait-for-local-execution
	// step after a quorum response already arrived.
	LocalExecutionTimeout time.Duration

	// RecoveryTimeout bounds each transaction's re-drive attempt during
	// startup recovery.
	RecoveryTimeout time.Duration

	MaxBackgroundRetries int
	BackoffMin           time.Duration
	BackoffMax           time.Duration

	// LiveInputEnforcementFromAttempt is the zero-indexed background-retry
	// attempt number at which live-input validation starts being enforced,
	// to avoid repeatedly retrying transactions whose inputs no longer exist.
	LiveInputEnforcementFromAttempt int

	// MaxDuplicateSubmissions is normally 1 in production; test/adversarial
	// modes may set 2 or 3 to exercise the first-response-wins race.
	MaxDuplicateSubmissions int

	AllowedSubmissionValidators []string
	BlockedSubmissionValidators []string
}

// DefaultConfig matches the original's constants: 90s finality timeout, 10s
// local-execution wait, 60s recovery timeout, backoff 1s to 300s over at
// most 10 attempts, live-input enforcement starting at attempt 4.
func DefaultConfig() Config {
	return Config{
		EnableEarlyValidation:            true,
		FinalityTimeout:                  90 * time.Second,
		LocalExecutionTimeout:            10 * time.Second,
		RecoveryTimeout:                  60 * time.Second,
		MaxBackgroundRetries:             10,
		BackoffMin:                       time.Second,
		BackoffMax:                       300 * time.Second,
		LiveInputEnforcementFromAttempt:  3,
		MaxDuplicateSubmissions:          1,
	}
}
