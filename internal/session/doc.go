// Package session reconstructs per-connection IRC session state from the
// event log.
//
// Machine.Apply folds one event into a State and reports what should
// happen as a result: commands for the Connector, window updates for the
// message log, and notifications for the Processor. The same function runs
// in Replay mode while catching up on history and in Realtime mode on the
// live tail; only Realtime produces commands, except for the ones
// FinishCatchup issues to resume where history left off.
package session
