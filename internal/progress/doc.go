// Package progress carries job lifecycle events from the controller to
// pluggable sinks (logs, Prometheus, run history, Pub/Sub) without ever
// blocking the poll loop.
package progress
