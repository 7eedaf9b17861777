package core

import "time"

// RateLimitState captures the last known quota for a GitHub rate limit resource.
type RateLimitState struct {
	Limit          int        `json:"limit" yaml:"limit"`
	Remaining      int        `json:"remaining" yaml:"remaining"`
	ResetsAt       time.Time  `json:"resets_at" yaml:"resets_at"`
	ObservedAt     time.Time  `json:"observed_at" yaml:"observed_at"`
	BackoffUntil   *time.Time `json:"backoff_until,omitempty" yaml:"backoff_until,omitempty"`
	LastExceededAt *time.Time `json:"last_exceeded_at,omitempty" yaml:"last_exceeded_at,omitempty"`
}

// WindowOpen reports whether the stored window is still running at now.
func (s *RateLimitState) WindowOpen(now time.Time) bool {
	return s != nil && s.ResetsAt.After(now)
}
