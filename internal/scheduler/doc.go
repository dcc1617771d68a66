// Package scheduler books recording time slots on capture agents and keeps
// each scheduled event consistent across the interval store, the snapshot
// archive, the search index and the live-notification channel.
//
// The interval store and the snapshot archive are the durable pair; the
// index and the notification channel are derived, eventually-consistent
// projections and can be rebuilt from the durable pair (Repopulate).
package scheduler
