// Package chainable runs an ordered list of actions, each paired with a
// compensating action, and unwinds completed work when one of them fails.
//
// Overview
//
//  1. Define your actions:
//     - Each action has a forward function and a compensation.
//     - Use `NewAction` (compensation receives a `CompensationContext`) or
//     `NewSimpleAction` (compensation takes no arguments).
//  2. Assemble the chain:
//     - Either pass a slice of actions to `New`, or use a `Builder`.
//     - Actions registered in a `Registry` can be appended by name with
//     `Builder.Use`.
//  3. Run it:
//     - `Engine.Run` executes actions in order. When a forward function
//     returns an error the engine compensates the actions that completed,
//     newest first, and returns a `Result` whose `Cause` names the last
//     action that completed.
//     - In `ModeResumable` a compensation may call `Retry` to abandon the
//     rest of the rollback and resume forward execution from its own
//     position. Bound retries with `Attempts` or `WithMaxAttempts`.
//
// Pausing
//
// A forward function may call `Controls.Pause` to stop the chain from
// advancing once it returns. The flag is only meaningful within the running
// call: a `Resume` issued after `Run` returned does nothing. To block and wait
// for an external signal instead, configure a `Gate` with `WithGate`; it is
// told the ID of the paused run.
//
// Everything runs synchronously on the caller's goroutine; nothing is
// persisted except post-mortem reports handed to a configured `Store`.
package chainable
