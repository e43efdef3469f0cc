// Package telemetry wires the Data Manager's ambient logging and
// metrics: structured logging via zerolog, and Prometheus gauges/
// counters over the moving parts an operator would want to watch.
package telemetry

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog.Logger writing structured, leveled
// console output tagged with the node's id.
func NewLogger(nodeID string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
		With().
		Timestamp().
		Str("node_id", nodeID).
		Logger()
}
