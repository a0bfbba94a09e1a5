// Package orchestrator turns registered workers into tracked, chainable jobs.
//
// The Creator submits a two step chain (worker task, then the result handler
// task) and persists the Job Record. The ResultHandler runs at the end of the
// chain, applies the worker's post-processor on terminal status and writes the
// outcome back to the record. Submission happens before persistence, so the
// handler may observe a record before the creator has written it; both paths
// go through get-or-create keyed on the record id.
package orchestrator
