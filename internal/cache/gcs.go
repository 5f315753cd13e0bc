package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/lantern/internal/gcp"
)

// GCS stores entries as JSON objects under a bucket prefix. Writes use a
// DoesNotExist precondition so the first writer of a key wins.
type GCS struct {
	bucket *storage.BucketHandle
	prefix string
}

// NewGCS returns a store over bucket/prefix.
func NewGCS(client *storage.Client, bucket, prefix string) *GCS {
	return &GCS{bucket: client.Bucket(bucket), prefix: prefix}
}

func (g *GCS) object(key string) string {
	return path.Join(g.prefix, key+".json")
}

func (g *GCS) Get(ctx context.Context, key string) (Entry, bool, error) {
	r, err := g.bucket.Object(g.object(key)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to open cache object: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read cache object: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil || !e.Usable() {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (g *GCS) Put(ctx context.Context, key string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return gcp.SaveToGCSAtomically(ctx, g.bucket, g.object(key), data)
}
