// Package artifact retrieves the result files of a finished job into an
// artifact store.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/job"
)

// Kind is an artifact format.
type Kind string

// Supported kinds.
const (
	KindTabular    Kind = "tabular"
	KindStructured Kind = "structured"
)

// Kinds lists every artifact kind.
var Kinds = []Kind{KindTabular, KindStructured}

// Endpoint returns the remote download endpoint segment for k.
func (k Kind) Endpoint() string {
	switch k {
	case KindTabular:
		return "excel"
	case KindStructured:
		return "json"
	default:
		return ""
	}
}

// ParseKind accepts either the kind name or its endpoint name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tabular", "excel", "xlsx", "csv":
		return KindTabular, nil
	case "structured", "json":
		return KindStructured, nil
	default:
		return "", fmt.Errorf("unknown artifact kind %q", s)
	}
}

// DownloadError reports a failed retrieval. It never affects job state.
type DownloadError struct {
	Kind Kind
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s artifact: %v", e.Kind, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Result describes a stored artifact.
type Result struct {
	Kind        Kind   `json:"kind"`
	URI         string `json:"uri"`
	ContentType string `json:"content_type"`
	Path        string `json:"path"`
}

// Availability is the files-info view of one kind.
type Availability struct {
	Kind   Kind  `json:"kind"`
	Exists bool  `json:"exists"`
	Size   int64 `json:"size"`
}

// Retriever downloads artifacts and writes them to a BlobStore.
type Retriever struct {
	source job.ArtifactSource
	store  job.BlobStore
	clock  job.Clock
	prefix string
	logger *zap.Logger
}

// NewRetriever builds a Retriever. Objects are written under prefix.
func NewRetriever(source job.ArtifactSource, store job.BlobStore, clock job.Clock, prefix string, logger *zap.Logger) (*Retriever, error) {
	if source == nil {
		return nil, errors.New("artifact source is required")
	}
	if store == nil {
		return nil, errors.New("artifact store is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		source: source,
		store:  store,
		clock:  clock,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}, nil
}

// URL returns the remote download address for kind.
func (r *Retriever) URL(kind Kind) string {
	return r.source.DownloadURL(kind.Endpoint())
}

// Retrieve streams the artifact of kind into the store. runID, when set,
// groups objects of one run.
func (r *Retriever) Retrieve(ctx context.Context, kind Kind, runID string) (Result, error) {
	if kind.Endpoint() == "" {
		return Result{}, &DownloadError{Kind: kind, Err: errors.New("unknown kind")}
	}
	body, contentType, err := r.source.Download(ctx, kind.Endpoint())
	if err != nil {
		return Result{}, &DownloadError{Kind: kind, Err: err}
	}
	defer func() {
		if cerr := body.Close(); cerr != nil {
			r.logger.Debug("close artifact body", zap.Error(cerr))
		}
	}()

	if contentType == "" {
		contentType = defaultContentType(kind)
	}
	objectPath := r.objectPath(kind, runID, contentType)
	uri, err := r.store.PutObject(ctx, objectPath, contentType, body)
	if err != nil {
		return Result{}, &DownloadError{Kind: kind, Err: err}
	}
	r.logger.Info("artifact stored",
		zap.String("kind", string(kind)),
		zap.String("uri", uri),
		zap.String("content_type", contentType),
	)
	return Result{Kind: kind, URI: uri, ContentType: contentType, Path: objectPath}, nil
}

// Available reports which artifacts the remote currently holds.
func (r *Retriever) Available(ctx context.Context) ([]Availability, error) {
	info, err := r.source.FilesInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("files info: %w", err)
	}
	out := make([]Availability, 0, len(Kinds))
	for _, k := range Kinds {
		fi := info[k.Endpoint()]
		out = append(out, Availability{Kind: k, Exists: fi.Exists && fi.Size > 0, Size: fi.Size})
	}
	return out, nil
}

func (r *Retriever) objectPath(kind Kind, runID, contentType string) string {
	stamp := r.clock.Now().UTC().Format("20060102T150405Z")
	name := kind.Endpoint() + "-" + stamp + extension(kind, contentType)
	parts := []string{}
	if r.prefix != "" {
		parts = append(parts, r.prefix)
	}
	if runID != "" {
		parts = append(parts, runID)
	}
	return path.Join(append(parts, name)...)
}

func extension(kind Kind, contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		switch {
		case mediaType == "text/csv":
			return ".csv"
		case mediaType == "application/json":
			return ".json"
		case mediaType == "application/vnd.ms-excel":
			return ".xls"
		case strings.Contains(mediaType, "spreadsheetml"):
			return ".xlsx"
		}
	}
	if kind == KindStructured {
		return ".json"
	}
	return ".xlsx"
}

func defaultContentType(kind Kind) string {
	if kind == KindStructured {
		return "application/json"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
