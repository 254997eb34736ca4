package reports

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// FsObjectStore implements ObjectStore on the local filesystem for
// development. Presigning returns a file:// URL.
type FsObjectStore struct {
	Base string
}

var _ ObjectStore = (*FsObjectStore)(nil)

func (f *FsObjectStore) path(bucketName, objectName string) (string, string, error) {
	dir := filepath.Clean(f.Base)
	if bucketName != "" {
		dir = filepath.Join(dir, bucketName)
	}
	clean := filepath.Clean(filepath.Join(dir, objectName))
	// keep objects inside the bucket directory
	if !strings.HasPrefix(clean, dir+string(os.PathSeparator)) {
		return "", "", os.ErrPermission
	}
	return dir, clean, nil
}

func (f *FsObjectStore) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	dir, clean, err := f.path(bucketName, objectName)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return minio.UploadInfo{}, err
	}
	tmp := clean + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	defer out.Close()
	if _, err := io.Copy(out, reader); err != nil {
		_ = os.Remove(tmp)
		return minio.UploadInfo{}, err
	}
	if err := os.Rename(tmp, clean); err != nil {
		return minio.UploadInfo{}, err
	}
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func (f *FsObjectStore) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	_, clean, err := f.path(bucketName, objectName)
	if err != nil {
		return minio.ObjectInfo{}, err
	}
	fi, err := os.Stat(clean)
	if err != nil {
		return minio.ObjectInfo{}, err
	}
	return minio.ObjectInfo{Key: objectName, Size: fi.Size(), LastModified: fi.ModTime()}, nil
}

func (f *FsObjectStore) PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error) {
	_, clean, err := f.path(bucketName, objectName)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return nil, err
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
}
