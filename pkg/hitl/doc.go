// Package hitl implements the human-in-the-loop review queue.
//
// Escalated requests become durable Review rows. Reviewers claim work
// through an atomic dequeue that assigns each pending row to at most
// one caller, then settle it with an approve or reject decision. A
// cron-driven reaper reclaims abandoned locks and expires stale rows.
//
// The queue is the only cross-request shared state in the gateway;
// every mutation runs inside a single transaction on the backing
// store.
package hitl
