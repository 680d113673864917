// Package main hosts the Defaulter CLI entrypoint and command graph.
//
// Commands resolve configuration once, then either drive a workflow session
// in-process (run, preview, users), read the audit database (audit), or talk
// to a running daemon over its HTTP API (status). The daemon itself runs in
// the foreground through `defaulter daemon`.
package main
