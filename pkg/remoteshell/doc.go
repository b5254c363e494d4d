/*
Package remoteshell is sluice's Remote Shell Adapter: it wraps an SSH
connection to the single-GPU cracking host with timeouts, reconnection, and
base64-encoded command delivery so shell-quoting never corrupts a payload
(notably the coordination service's SQL introspection queries, per the
spec's canonical newer-form decision recorded in DESIGN.md).

Every exported method that talks to the host takes a context so callers can bound both the dial and
the command's run time; ExecShell returns the command's stdout and classifies
any failure the way pkg/sluiceerr expects (network vs. a genuine non-zero
exit from the remote command).
*/
package remoteshell
