// Package reports archives scan results as JSON objects and hands out
// short-lived download links for them.
package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/mark3748/helpdesk-sla/internal/sla"
)

// ObjectStore is the subset of *minio.Client the archive uses.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

var (
	ErrInvalidKey = errors.New("invalid report key")
	ErrInvalidTTL = errors.New("invalid ttl")
)

var keyPattern = regexp.MustCompile(`^sla-scan-\d{8}T\d{6}Z-[0-9a-f-]{36}\.json$`)

// Report is one archived scan.
type Report struct {
	Key          string           `json:"key"`
	GeneratedAt  time.Time        `json:"generated_at"`
	Summary      sla.Summary      `json:"summary"`
	Breaches     []sla.Breach     `json:"breaches"`
	NearBreaches []sla.NearBreach `json:"near_breaches"`
	Notified     int              `json:"notified"`
}

// Archive stores reports in Bucket. MaxTTL caps presigned URL lifetimes.
type Archive struct {
	Store  ObjectStore
	Bucket string
	MaxTTL time.Duration
}

// NewKey names a report generated at t.
func NewKey(t time.Time) string {
	return fmt.Sprintf("sla-scan-%s-%s.json", t.UTC().Format("20060102T150405Z"), uuid.NewString())
}

// ValidKey reports whether key could have been produced by NewKey.
func ValidKey(key string) bool { return keyPattern.MatchString(key) }

// Put writes r, assigning a key when it has none, and returns the key.
func (a *Archive) Put(ctx context.Context, r *Report) (string, error) {
	if a == nil || a.Store == nil {
		return "", errors.New("report archive not configured")
	}
	if r.Key == "" {
		r.Key = NewKey(r.GeneratedAt)
	}
	if !ValidKey(r.Key) {
		return "", ErrInvalidKey
	}
	body, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	if _, err := a.Store.PutObject(ctx, a.Bucket, r.Key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"}); err != nil {
		return "", fmt.Errorf("put report %s: %w", r.Key, err)
	}
	return r.Key, nil
}

// PresignGet returns a download URL for an existing report.
func (a *Archive) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}
	if ttl <= 0 || ttl > a.MaxTTL {
		return "", ErrInvalidTTL
	}
	if _, err := a.Store.StatObject(ctx, a.Bucket, key, minio.StatObjectOptions{}); err != nil {
		return "", fmt.Errorf("stat report %s: %w", key, err)
	}
	vals := url.Values{}
	vals.Set("response-content-disposition", "attachment; filename=\""+key+"\"")
	u, err := a.Store.PresignedGetObject(ctx, a.Bucket, key, ttl, vals)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
