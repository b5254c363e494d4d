// Package stage2 drives one SAND batch through the ordered, tiered attack
// list in attacktable.go: submit each attack to the external coordination
// service, poll it to completion, record the crack delta, and advance to
// the next attack until the batch is exhausted.
package stage2
