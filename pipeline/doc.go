// Package pipeline drives a multi-agent Instance through the pipeline derived
// from a user request.
//
// Direct mode (empty pipeline) sends the raw request once and returns the
// response verbatim. Pipeline mode runs the steps strictly in order, threads
// the accumulated AgentOutputs from each step into the next and concatenates
// every step response followed by "\n\n" (the separator is also appended
// after the last step).
//
// Any step failure aborts the run: the caller receives a
// *core.AgentInvocationError and no partial text. Every call is bounded by a
// per-step timeout and the whole run by a request deadline; a call that
// outlives its deadline is abandoned and its late result discarded.
package pipeline
