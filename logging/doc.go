// Package logging provides a minimal logging interface and adapters for swarmchat.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that the registry, the pipeline executor and the agents use for
// observability. Arguments after the message are key/value pairs. This package
// includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZapAdapter wrapping a zap.SugaredLogger
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	reg := registry.New(factory, func(o *registry.Options) { o.Logger = logger })
package logging
