/*
Package state implements sluice's State Store: the single authoritative JSON
file that tracks every batch's progress through Stage 2.

The store is single-writer by design — exactly one orchestrator process owns
the file for the batch currently being driven. Every save validates known
invariants (no attack in both attacksApplied and attacksRemaining, cracked <=
hashCount, completed implies a timestamp), copies the previous file to .bak
before writing the new one, and writes pretty-printed JSON so the file stays
diffable and human-readable during an incident.

Validation failures are logged, never fatal: the store always persists what
the caller asked it to persist, and leaves it to the operator (or the review
engine) to investigate a loudly-logged invariant violation.
*/
package state
