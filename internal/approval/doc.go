// Package approval implements the task approval state machine. Tasks start
// in the processing state and settle exactly once: a single rejection rejects
// the task, and approvals resolve it when they reach the task's threshold.
// Vote recording is idempotent and commutative, so replayed and concurrent
// votes converge on the same terminal state, and only the writer that wins
// the status transition triggers notification fan-out.
package approval
