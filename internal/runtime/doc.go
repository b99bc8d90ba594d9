// Package runtime opens the Processor's local state: the Pebble store in
// its data directory, the per-window message log kept there, and the
// backfill watermark recording the highest connection whose history has
// been turned into window messages.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeInterval})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	_, _ = rt.Messages().Append(ctx, "libera", pending)
package runtime
