/*
Uploader pushing LFS objects into an S3-compatible bucket.

Objects are keyed the same way as the local staging area:
`<prefix>/aa/bb/aabbcc...`.
*/
package kvs3

import (
	"context"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/warehouse"
)

var (
	_ warehouse.Uploader = &Controller{}
)

type Config struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

type Controller struct {
	client   *minio.Client
	bucket   string
	prefix   string
	region   string
	initOnce sync.Once
	initErr  error
}

/*
Initialize an uploader for the bucket described by cfg.

May return errors of category:

  - `lfsmigrate.ErrUsage` -- for missing endpoint, bucket, or credentials
*/
func NewController(cfg Config) (*Controller, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, Errorf(lfsmigrate.ErrUsage, "s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, Errorf(lfsmigrate.ErrUsage, "s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, Errorf(lfsmigrate.ErrUsage, "s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, Errorf(lfsmigrate.ErrUsage, "cannot initialize s3 client: %s", err)
	}
	return &Controller{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: region,
	}, nil
}

func (whCtrl *Controller) ensureBucket(ctx context.Context) error {
	whCtrl.initOnce.Do(func() {
		exists, err := whCtrl.client.BucketExists(ctx, whCtrl.bucket)
		if err != nil {
			whCtrl.initErr = err
			return
		}
		if exists {
			return
		}
		whCtrl.initErr = whCtrl.client.MakeBucket(ctx, whCtrl.bucket, minio.MakeBucketOptions{Region: whCtrl.region})
	})
	return whCtrl.initErr
}

// ObjectKey returns the bucket key for an oid.
func (whCtrl *Controller) ObjectKey(oid string) string {
	chunkA, chunkB, _ := warehouse.ChunkifyHash(oid)
	return path.Join(whCtrl.prefix, chunkA, chunkB, oid)
}

/*
Upload stats the object key and puts the content if it's absent.

May return errors of category:

  - `lfsmigrate.ErrUpload` -- for any failure talking to the bucket
*/
func (whCtrl *Controller) Upload(ctx context.Context, obj warehouse.Object, open func() (io.ReadCloser, error)) error {
	if err := whCtrl.ensureBucket(ctx); err != nil {
		return ErrorDetailed(lfsmigrate.ErrUpload, "s3 bucket unavailable: "+err.Error(),
			map[string]string{"bucket": whCtrl.bucket})
	}
	key := whCtrl.ObjectKey(obj.Oid)
	info, err := whCtrl.client.StatObject(ctx, whCtrl.bucket, key, minio.StatObjectOptions{})
	switch {
	case err == nil && info.Size == obj.Size:
		return nil
	case err == nil:
		// Size mismatch: a previous partial upload.  Overwrite it.
	case minio.ToErrorResponse(err).Code == minio.NoSuchKey:
	default:
		return s3Error(err, "s3 stat failed", whCtrl.bucket, key)
	}
	body, err := open()
	if err != nil {
		return Errorf(lfsmigrate.ErrLocalIO, "cannot read staged object %s: %s", obj.Oid, err)
	}
	defer body.Close()
	_, err = whCtrl.client.PutObject(ctx, whCtrl.bucket, key, body, obj.Size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return s3Error(err, "s3 upload failed", whCtrl.bucket, key)
	}
	return nil
}

func s3Error(err error, msg, bucket, key string) error {
	resp := minio.ToErrorResponse(err)
	return ErrorDetailed(lfsmigrate.ErrUpload, msg+": "+err.Error(), map[string]string{
		"bucket":    bucket,
		"key":       key,
		"code":      resp.Code,
		"requestID": resp.RequestID,
	})
}
