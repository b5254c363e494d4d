// Package stage1 drives one GRAVEL batch through the fixed universal attack
// (dictionary x large rule file): upload-if-missing, launch via
// pkg/remotejob, parse the resulting potfile, split the batch into PEARLS
// (cracked) and SAND (surviving), and persist the outcome to its own state
// file separate from Stage 2's.
package stage1
