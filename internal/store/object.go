package store

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Key       string
	UseSSL    bool
}

// ObjectPersister keeps the snapshot as a single object in an S3-compatible
// bucket. A PUT replaces the object atomically.
type ObjectPersister struct {
	client *minio.Client
	bucket string
	key    string
}

func NewObjectPersister(ctx context.Context, cfg ObjectConfig) (*ObjectPersister, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	p := &ObjectPersister{client: client, bucket: cfg.Bucket, key: cfg.Key}
	if err := p.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ObjectPersister) ensureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", p.bucket, err)
	}
	return nil
}

func (p *ObjectPersister) Load(ctx context.Context) (Snapshot, error) {
	object, err := p.client.GetObject(ctx, p.bucket, p.key, minio.GetObjectOptions{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("get snapshot object: %w", err)
	}
	defer object.Close()

	payload, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, fmt.Errorf("read snapshot object: %w", err)
	}
	return decodeSnapshot(payload)
}

func (p *ObjectPersister) Save(ctx context.Context, snapshot Snapshot) error {
	payload, err := encodeSnapshot(snapshot, false)
	if err != nil {
		return err
	}
	_, err = p.client.PutObject(ctx, p.bucket, p.key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put snapshot object: %w", err)
	}
	return nil
}

func (p *ObjectPersister) Ping(ctx context.Context) error {
	_, err := p.client.BucketExists(ctx, p.bucket)
	return err
}
