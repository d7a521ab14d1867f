// Package orchestrator runs planning sessions as a state machine.
//
// # Architecture
//
// Each round moves through:
//
//	DRAFTING → CRITIQUING → INTEGRATING → (AWAITING_FEEDBACK) → DRAFTING | DONE
//
// The Architect drafts, the Critic reviews and the Integrator merges the two.
// Every agent result is scrubbed and saved before the machine moves on, so a
// crashed or interrupted session resumes from the last saved field.
//
// # Gates
//
// Gates run before a state executes:
//   - RoundCapGate: no round past max_rounds
//   - CostGate: no agent call once limits.max_total_cost is spent
//   - RepeatedIssueGate: warns when the Critic repeats last round's issue
//
// Warnings are logged and reported through the progress callback. Errors end
// the session as FAILED.
//
// # Termination
//
// A session ends DONE when the plan is approved, accepted by the reviewer or
// the round cap is reached. Agent, storage and context failures end it
// FAILED. Cancellation ends it ABORTED; the status is still saved.
//
// # Usage
//
//	orch, err := orchestrator.New(team, store, loader,
//	    orchestrator.WithScrubber(scrubber),
//	    orchestrator.WithFeedback(orchestrator.NewLineFeedback(os.Stdin, os.Stderr)),
//	    orchestrator.WithProgress(func(e orchestrator.Event) { ... }),
//	)
//	out := orch.Run(ctx, req)
package orchestrator
