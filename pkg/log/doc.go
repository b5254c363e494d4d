/*
Package log provides structured logging for sluice using zerolog.

Init must be called once at startup with the desired level and output format;
every other package calls log.WithComponent, log.WithBatch, or log.WithAttack
to get a child logger carrying the relevant correlation fields.
*/
package log
