// Package replication defines the line protocol spoken between the
// Connector and its single attached Processor, and the Processor side of
// that connection.
//
// After the password line the Connector answers with a snapshot:
//
//	active-connections
//	<connectionId> <nextSequence>
//	...
//	live-events
//
// followed by every event it produces, one per line, formatted by
// event.Format. The Processor sends commands upstream:
//
//	connect <host> <port> <true|false> <profile>
//	disconnect <connectionId>
//	send <connectionId> <rawLine>
//	terminate
package replication
