// Package server exposes the orchestrator over HTTP: POST /api/chat,
// POST /api/reset, GET /health and GET /metrics.
// This package is internal and should not be imported by external projects.
package server
