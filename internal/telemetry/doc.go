// Package telemetry sets up OpenTelemetry trace export for the swarmchat
// binary. Library packages only use the global tracer; this package decides
// where those spans go.
package telemetry
