package models

import "time"

// Status tags a Result as live data or a fallback.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// Result carries a fetched value together with how it was obtained. Degraded results hold the
// fallback value and the failure category in Reason; Stale marks a last-known-good value served
// in place of a fresh fallback.
type Result[T any] struct {
	Value     T         `json:"value"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Stale     bool      `json:"stale,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Ok wraps a live value.
func Ok[T any](v T, at time.Time) Result[T] {
	return Result[T]{Value: v, Status: StatusOK, FetchedAt: at}
}

// Degraded wraps a fallback value with the reason live data was unavailable.
func Degraded[T any](v T, reason string, at time.Time) Result[T] {
	if reason == "" {
		reason = "unknown"
	}
	return Result[T]{Value: v, Status: StatusDegraded, Reason: reason, FetchedAt: at}
}

// IsOK reports whether the value is live data.
func (r Result[T]) IsOK() bool {
	return r.Status == StatusOK
}
