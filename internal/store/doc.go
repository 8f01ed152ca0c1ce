// Package store defines the run history repository. Implementations live in
// other packages; this package must not import concrete clients.
package store
