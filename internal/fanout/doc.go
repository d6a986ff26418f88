// Package fanout projects task lifecycle events onto per-recipient and group
// notification rows and optionally mirrors them to an ntfy push topic.
//
// Deliveries are idempotent upserts, so a failed fan-out can be retried at
// any time without duplicating notifications. Failures never propagate back
// into the task write path; they are queued and retried on an interval until
// the attempt budget runs out.
package fanout
