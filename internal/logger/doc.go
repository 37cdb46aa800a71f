// Package logger provides a structured logging facility based on Zap.
//
// New builds the application logger from the log section of the configuration:
// a development config for the debug level, production otherwise, with either
// json or console encoding.
//
// # Drop journal
//
// NewJournal opens a second, append-only logger used as a human-readable record
// of every counted drop and consumption:
//
//	2026-01-02 15:04:05	Drop: Flame Sand x3 (0.02/each)
//	2026-01-02 15:04:09	Consumed: Dream Compass x1 (0.3/each)
package logger
