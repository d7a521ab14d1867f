// Package secrets detects and redacts credential-shaped text.
//
// Every string planify persists or displays passes through a Scrubber first.
// Scrubbing is pure and idempotent: each detected secret is replaced by the
// fixed Marker, and text that is already redacted is left alone, so scrubbing
// the same value at several write points is harmless.
//
// Detection combines the regexp rules in DefaultRules, an optional Shannon
// entropy check for long random-looking tokens, and an optional gitleaks pass.
// Allowlist regexes loaded from .gitleaks.toml apply to all three.
package secrets
