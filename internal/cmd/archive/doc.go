// Package archivecmd contains the Cobra commands of the mamirc-archive
// tool: dumping, checking and summarizing the event archive, and reading
// the Processor's message windows while the Processor is stopped.
package archivecmd
