// Package scheduler provides the asynchronous job execution engine. It
// orchestrates the job lifecycle by recording every transition through the
// registry, bounding parallelism with an admission gate, containing task
// errors and panics on the job record, and serving poll-driven status
// streams until a terminal state.
package scheduler
