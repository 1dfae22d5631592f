// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing callers to plug
// any structured logger. User-visible error messages never flow through this
// package; it carries the internal diagnostics the transports must not leak.
package logging
