// Package testutil contains scripted doubles used across tests to reduce
// boilerplate when exercising the registry, the pipeline executor and the
// orchestrator facade. They are not intended for production usage.
package testutil
