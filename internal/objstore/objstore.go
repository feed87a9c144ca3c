package objstore

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Client lists and streams objects from a single bucket or container. All
// implementations retry transient transport failures with exponential
// backoff; a missing object is never retried.
type Client interface {
	// List returns every object under the prefix, following pagination.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Get streams the object's bytes. The caller owns the ReadCloser.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Bucket returns the bound bucket or container name.
	Bucket() string
}

// Credentials carries object-store credentials through to components that
// ingest natively (ClickHouse s3(), DuckDB httpfs). Empty fields mean the
// ambient credential chain.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}
