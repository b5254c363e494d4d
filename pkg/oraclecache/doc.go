// Package oraclecache caches responses from the external breach-count
// oracle in a single bbolt bucket keyed by root, narrowing the teacher's
// cluster-wide multi-bucket store to the one thing the Feedback Analyzer
// needs: avoid spending a k-anonymity query on a root it already asked
// about in a prior batch.
package oraclecache
