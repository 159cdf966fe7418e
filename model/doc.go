// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language models inside swarmchat.
//
// Core goals:
//   - Keep a single blocking Generate call per request so agents can apply
//     their own timeouts through the context
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic, HuggingFace inference endpoints) implement
// the Model interface from this package so the agent swarm remains decoupled
// from vendor SDKs.
package model
