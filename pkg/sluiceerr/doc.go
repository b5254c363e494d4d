/*
Package sluiceerr gives every error a kind so callers up the stack — the
orchestrator's batch loop most of all — can decide whether to retry, log and
continue, or abort. The kinds mirror the error-handling table sluice
implements: transient network failures retry with backoff, an orphan cracking
process is fatal and requires an operator, invariant violations are logged
loudly but never block a write, malformed input is skipped and counted, and a
fatal I/O error aborts with a non-zero exit.
*/
package sluiceerr
