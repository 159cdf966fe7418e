// Package intent turns a raw user request into an ordered execution pipeline.
//
// Routing is a total, pure function over a closed set of intents:
//
//   - Python: the request mentions "python" (case-insensitive); four steps
//     (planning, implementation, tests, documentation)
//   - SQL: the request mentions "sql"; one data engineering step
//   - Generic: anything else; the empty pipeline (direct mode)
//
// Python is checked before SQL, so a request mentioning both is routed to
// the Python pipeline only. Every step embeds the original request text with
// its original casing.
package intent
