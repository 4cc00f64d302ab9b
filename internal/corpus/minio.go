package corpus

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/chaz8081/gostt-bench/internal/audio"
	"github.com/chaz8081/gostt-bench/internal/errs"
)

// ObjectStore reads objects from a bucket.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// MinIOOptions configures the S3-compatible client.
type MinIOOptions struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

type minioStore struct {
	client *minio.Client
}

// NewMinIOStore connects to an S3-compatible endpoint.
func NewMinIOStore(opts MinIOOptions) (ObjectStore, error) {
	if opts.Endpoint == "" {
		return nil, errs.Configuration("minio: endpoint is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: creating client: %w", err)
	}
	return &minioStore{client: client}, nil
}

func (s *minioStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q from bucket %q: %w", key, bucket, err)
	}
	// GetObject is lazy; Stat surfaces missing keys before the first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("stat object %q in bucket %q: %w", key, bucket, err)
	}
	return obj, nil
}

// MinIOProvider reads a JSON Lines manifest object from a bucket. Audio cells
// are object keys relative to the manifest's prefix, fetched when resolved.
//
// Params: bucket and manifest (both required).
type MinIOProvider struct {
	Store ObjectStore
}

func (p MinIOProvider) Open(ctx context.Context, d Descriptor, offset int) (RowStream, error) {
	if p.Store == nil {
		return nil, errs.Configuration("corpus %q: object storage is not configured", d.ID)
	}
	bucket, key := d.Param("bucket", ""), d.Param("manifest", "")
	if bucket == "" || key == "" {
		return nil, errs.Configuration("corpus %q: minio provider needs params.bucket and params.manifest", d.ID)
	}
	rc, err := p.Store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, errs.Configuration("corpus %q: %v", d.ID, err)
	}
	return newJSONLStream(ctx, rc, offset)
}

func (p MinIOProvider) AudioRef(d Descriptor, cell any) (audio.Ref, error) {
	rel, err := audioPathCell(cell)
	if err != nil {
		return audio.Ref{}, errs.Schema("corpus %q: %v", d.ID, err)
	}
	bucket := d.Param("bucket", "")
	key := strings.TrimPrefix(rel, "/")
	if !strings.HasPrefix(rel, "/") {
		key = path.Join(path.Dir(d.Param("manifest", "")), rel)
	}
	label := "s3://" + bucket + "/" + key
	return audio.RemoteRef(label, func(ctx context.Context) (*audio.Waveform, error) {
		rc, err := p.Store.GetObject(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", label, err)
		}
		w, err := audio.DecodeBytes(data)
		if err != nil {
			return nil, errs.Audio(err, "decoding %s", label)
		}
		return w, nil
	}), nil
}
