// Package coordservice wraps the external coordination service: the
// hashlist/task HTTP API used to submit and track cracking work, and a
// read-only SQL introspection path over the same service's database for
// advanced checks the HTTP API doesn't expose (chunk-level state, hashlist
// archival flags).
//
// HTTP writes (hashlist and task creation) perform one retry on a transient
// error; idempotent HTTP reads (status, cracked hashes, listing) are tried up
// to three times in all before surfacing the failure to the caller. SQL
// introspection queries are issued once and are not retried.
package coordservice
