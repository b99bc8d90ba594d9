// Package connector implements the Connector daemon's core: the
// Supervisor actor that owns every IRC socket and turns everything that
// happens on them into sequenced events, and the Listener through which a
// single Processor attaches, catches up and sends commands.
//
// All registry mutations run on the Supervisor goroutine. IRC readers,
// IRC writers and the subscriber writer run on their own goroutines and
// talk to the actor through its inbox, so a slow peer never blocks event
// production.
package connector
