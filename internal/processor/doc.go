// Package processor runs the Processor actor.
//
// On start the Processor holds a fresh attachment to the Connector (its
// snapshot of active connections already read) and the archive. It first
// backfills window messages for connections that ended while it was not
// running, then replays the archived history of every active connection
// without side effects, finishes catchup, reconciles sessions with the
// configured profiles, and from then on applies live events in realtime.
//
// All session, profile and reconnect state is owned by the Run goroutine.
// Other goroutines reach it through the inbox.
package processor
