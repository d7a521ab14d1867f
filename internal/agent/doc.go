// Package agent implements the Architect, Critic and Integrator roles.
//
// Each LLM-backed agent renders a prompt, sends it to a Backend (Anthropic,
// OpenAI, Gemini or an OpenAI-compatible server) and parses the JSON answer
// into a plan.Plan or plan.Critique. Calls run under a per-attempt timeout
// and are retried with exponential backoff; exhausted retries surface as
// *UnavailableError and unparsable output as *MalformedError.
//
// MergeIntegrator is a deterministic alternative to the Integrator agent.
package agent
