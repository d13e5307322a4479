// Package liveness decides whether a workload still counts as alive from the
// age of its last heartbeat. Absence of fresh heartbeats is the only death
// signal; nothing here has side effects.
package liveness

import "time"

// Staleness windows. Matching uses the short window so a server that failed
// to come up within two minutes ages out and a new one gets provisioned;
// plain listings tolerate a little more lag.
const (
	MatchWindow = 2 * time.Minute
	ListWindow  = 3 * time.Minute
)

// IsLive reports whether a workload whose last heartbeat or transition
// happened at updatedAt is still live at now for the given window. The
// boundary is inclusive: a heartbeat exactly window old still counts.
func IsLive(updatedAt, now time.Time, window time.Duration) bool {
	return now.Sub(updatedAt) <= window
}

// Cutoff returns the oldest updatedAt that still passes IsLive, for use in
// store queries.
func Cutoff(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}
