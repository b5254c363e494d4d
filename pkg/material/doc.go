/*
Package material implements the tiered hash files that flow through sluice's
pipeline: ROCKS, GRAVEL, PEARLS, SAND, DIAMONDS, and GLASS. Its centerpiece is
the streaming set-difference engine that computes SAND = GRAVEL - PEARLS for
billions of hashes under a bounded memory budget: PEARLS is loaded once into a
hash set (the one unavoidable in-memory cost, roughly 8GB for 2x10^8 40-char
hex hashes), and GRAVEL is streamed line by line past it.

The package also holds the potfile reader ($HEX[...] decoding) and the JSONL
readers/writers for PEARLS and DIAMONDS, since both are read the same
streaming way the set-difference engine reads GRAVEL.
*/
package material
