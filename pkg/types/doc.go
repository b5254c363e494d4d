/*
Package types defines the core data structures shared across sluice.

These are the shapes that cross package boundaries: a batch's durable record,
the per-attack aggregate stats used for ROI scoring, and the attack order that
both the scheduler and the review engine read. Nothing in this package touches
disk or the network — that belongs to pkg/state, pkg/stage1, and pkg/stage2.
*/
package types
