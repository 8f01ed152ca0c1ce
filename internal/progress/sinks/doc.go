// Package sinks implements event consumers: structured logs, Prometheus
// collectors, run history and Pub/Sub notifications.
package sinks
