// Package notify carries live scheduling updates to the single logical
// downstream consumer (e.g. a live-streaming scheduler).
//
// Contract:
//   - Per-event ordering is preserved: a delete is never observed before
//     the create it follows.
//   - Publish blocks with bounded retry and backoff while no consumer is
//     attached. Dropping an update silently would corrupt downstream
//     derived state, so "no consumer" is backpressure, not a discard.
//   - Delivery is at-least-once; consumers dedup on their side.
package notify
