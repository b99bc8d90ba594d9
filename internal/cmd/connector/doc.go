// Package connectorrun exposes the Run entrypoint of the Connector daemon:
// it opens and recovers the archive, starts the archiver, the connection
// supervisor, the Processor-facing listener and the optional ops endpoint,
// and blocks until a Terminate command or a signal stops them.
//
// Example:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = connectorrun.Run(ctx, connectorrun.Options{ConfigPath: "connector.yaml"})
package connectorrun
