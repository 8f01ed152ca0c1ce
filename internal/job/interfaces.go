package job

import (
	"context"
	"io"
	"time"
)

// Commander issues configuration and lifecycle commands to the remote job.
type Commander interface {
	PutFilters(ctx context.Context, payload map[string]any) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// StatusFetcher reads the current remote job status.
type StatusFetcher interface {
	Status(ctx context.Context) (Status, error)
}

// LimitsFetcher reads the quota snapshot.
type LimitsFetcher interface {
	Limits(ctx context.Context) (Limits, error)
}

// ArtifactSource exposes the result artifacts of a finished job.
type ArtifactSource interface {
	DownloadURL(endpoint string) string
	Download(ctx context.Context, endpoint string) (io.ReadCloser, string, error)
	FilesInfo(ctx context.Context) (FilesInfo, error)
}

// API is the full remote job surface consumed by the client.
type API interface {
	Commander
	StatusFetcher
	LimitsFetcher
	ArtifactSource
}

// BlobStore writes retrieved artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
