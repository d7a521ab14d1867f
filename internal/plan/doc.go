// Package plan defines the artifacts agents exchange during a planning
// session: the Plan an Architect drafts and an Integrator merges, and the
// Critique a Critic returns.
//
// The package also renders the final plan document, extracts an ordered
// task list from it and estimates which routed documentation it affects.
package plan
