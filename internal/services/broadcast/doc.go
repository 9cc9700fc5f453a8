// Package broadcast implements the fan-out engine: it dispatches one copy of
// a source message to every tracked recipient, classifies per-recipient
// failures, prunes recipients that became permanently unreachable, and
// produces the run report.
//
// Delivery semantics
//
// Best-effort, single pass. There is no retry beyond the immediate attempt
// and no queueing: a run that starts while another is active is rejected
// with ErrRunInProgress. Dispatches are strictly sequential and paced by a
// limiter, because the platform enforces a global outbound rate shared
// across all targets; parallel fan-out would gain nothing.
//
// The same engine also hosts the dispatch-free maintenance paths: Cleanup
// (probe every recipient, evict the unreachable) and CheckOne (probe one
// explicit chat ID).
package broadcast
