// Package errs defines the error shapes returned to API clients.
//
// Every failure that reaches a handler is one of four classes:
//   - validation (400): malformed or missing input, reported before any side effect
//   - not found (404): a referenced entity is absent, nothing mutated
//   - conflict (409): an invariant would be violated, transaction aborted
//   - system (500): storage or transport failure, reported generically
//
// All of them are *HTTPError values so the global error handler can render
// them without knowing where they came from.
package errs
