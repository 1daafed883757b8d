// Package storage archives stuck batches to a file or object store.
package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	pkgstorage "github.com/jittakal/poolstore/pkg/storage"
	"github.com/jittakal/poolstore/pkg/coord"
)

// Ensure implementation satisfies interface.
var _ pkgstorage.Router = (*HiveRouter)(nil)

// HiveRouter lays archives out in Hive-style date and pool partitions.
type HiveRouter struct {
	protocol string
	bucket   string
	basePath string
}

// NewRouter creates a new storage router.
func NewRouter(protocol, bucket, basePath string) *HiveRouter {
	return &HiveRouter{
		protocol: protocol,
		bucket:   bucket,
		basePath: strings.Trim(basePath, "/"),
	}
}

// Route returns protocol://bucket/basePath/stuck/dt=YYYY-MM-DD/pool=N/.
// The date is the drain time in UTC.
func (r *HiveRouter) Route(pool string, t time.Time) string {
	dir := path.Join(
		r.basePath,
		"stuck",
		"dt="+t.UTC().Format("2006-01-02"),
		"pool="+strings.TrimPrefix(pool, coord.PoolPrefix),
	)
	return fmt.Sprintf("%s://%s/%s/", r.protocol, r.bucket, dir)
}

// ProtocolFor maps a backend name to its URI scheme.
func ProtocolFor(backend string) string {
	switch backend {
	case BackendS3:
		return "s3"
	case BackendAzure:
		return "wasbs"
	case BackendGCS:
		return "gs"
	default:
		return "file"
	}
}

// ObjectKey strips the scheme and bucket from a routed path. File paths only
// lose their scheme.
func ObjectKey(routed string) string {
	scheme, rest, ok := strings.Cut(routed, "://")
	if !ok {
		return strings.TrimPrefix(routed, "/")
	}
	if scheme == "file" {
		return strings.TrimPrefix(rest, "/")
	}
	_, key, _ := strings.Cut(rest, "/")
	return key
}
