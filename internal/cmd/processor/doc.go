// Package processorrun exposes the Run entrypoint of the Processor daemon.
// It attaches to the Connector, backfills window history from the archive,
// catches up on active connections and then drives the IRC sessions until
// a signal arrives or the Connector goes away. SIGHUP reloads the network
// profiles from the configuration file.
package processorrun
