// Package lineio frames byte streams into lines and back.
//
// Reader splits a stream on universal newlines: "\r", "\n" and "\r\n" are
// all separators. Because they separate rather than terminate, a stream
// always yields a final line at EOF, possibly empty. Lines longer than the
// configured maximum are dropped whole.
//
// Writer owns a queue of outgoing lines drained by its own goroutine. Close
// enqueues a terminator: everything queued before it is written, then the
// underlying stream is closed.
package lineio
