// Package logging configures slog output for the daemon and CLI: a console
// handler with key=value rendering, a JSON handler for machine consumption,
// and attribute helpers shared across components.
package logging
