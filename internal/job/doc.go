// Package job defines the core types shared across the scrape job client:
// the mirrored remote status, the quota snapshot, and the interfaces the
// controller, poller, monitor and retriever are wired through.
package job
