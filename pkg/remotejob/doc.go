/*
Package remotejob implements sluice's Remote Job Controller: it launches one
long-lived cracking process on the GPU host inside a detached tmux session,
polls it to a true DONE/FAILED outcome, and reconciles the result against
the potfile rather than trusting the process exit code.

The driver is a single cooperative state machine per attack
(IDLE→RUNNING→RECONNECTING→DONE/FAILED); it owns the poll loop and suspends
only on the poll interval (30s) or network I/O, never running other work
concurrently with the job it's watching — the GPU is a single-consumer
resource and the driver never pretends otherwise.

# Launch

Launch refuses to start if a tmux session with our name already exists (we
adopt it instead) or if a cracking process is running under a different
session (an orphan — the spec's guard against accidentally supervising
another batch's job). Otherwise it clears any stale log, starts the
detached session, and waits 3s to confirm the process or session appeared.

# Poll

Every 30s, three independent probes run over SSH: process count, tmux
session liveness, and a log-tail scan for the hashcat terminal markers
"Exhausted" / "Cracked". The outcome table in spec §4.3 decides RUNNING,
DONE, or (after 2 consecutive misses) DONE-by-absence. A probe error
enters RECONNECTING with a backoff of 10s × attempt (capped at 30s),
giving up after 300s total.

# Result reconciliation

The true crack count is potfile-line-count-after minus potfile-line-count-
before. The after-count is read three times five seconds apart and accepted
when the three reads are non-decreasing — a guard against reading
mid-rotation; otherwise the three-read sequence is repeated, up to three
sequences in all, after which the latest count is used.
*/
package remotejob
