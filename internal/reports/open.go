package reports

import (
	"context"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// Options selects the object store behind an Archive.
type Options struct {
	MinIOEndpoint string
	MinIOAccess   string
	MinIOSecret   string
	MinIOUseSSL   bool
	Bucket        string
	FileStorePath string
}

// Open picks MinIO when an endpoint is set, else the filesystem store. It
// returns nil when neither is configured.
func Open(ctx context.Context, o Options) (ObjectStore, error) {
	if o.MinIOEndpoint != "" {
		mc, err := minio.New(o.MinIOEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(o.MinIOAccess, o.MinIOSecret, ""),
			Secure: o.MinIOUseSSL,
		})
		if err != nil {
			return nil, err
		}
		exists, err := mc.BucketExists(ctx, o.Bucket)
		if err != nil {
			log.Warn().Err(err).Str("bucket", o.Bucket).Msg("check reports bucket")
		} else if !exists {
			if err := mc.MakeBucket(ctx, o.Bucket, minio.MakeBucketOptions{}); err != nil {
				log.Warn().Err(err).Str("bucket", o.Bucket).Msg("create reports bucket")
			}
		}
		return mc, nil
	}
	if o.FileStorePath != "" {
		if err := os.MkdirAll(o.FileStorePath, 0o755); err != nil {
			return nil, err
		}
		return &FsObjectStore{Base: o.FileStorePath}, nil
	}
	return nil, nil
}
