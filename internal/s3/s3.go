// Package s3 wraps the object-store access used for image download and
// upload. Credentials come from the standard AWS environment variables;
// bucket, prefix and endpoint come from the CVAT cloud-storage
// attachment.
package s3

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/BuckanovNikita/cveta2/pkg/types"
)

const maxTransferRetries = 3

// Client talks to one bucket under one key prefix.
type Client struct {
	mc     *minio.Client
	bucket string
	prefix string
	log    *logrus.Entry
}

// NewClient builds a client for the given cloud-storage attachment.
func NewClient(storage types.CloudStorageInfo, log *logrus.Entry) (*Client, error) {
	endpoint := storage.Endpoint
	if endpoint == "" {
		endpoint = "https://s3.amazonaws.com"
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid storage endpoint %q", endpoint)
	}
	host := u.Host
	if host == "" {
		host = u.Path
	}

	mc, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewEnvAWS(),
		Secure: u.Scheme != "http",
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating s3 client")
	}
	return &Client{
		mc:     mc,
		bucket: storage.Bucket,
		prefix: normalizePrefix(storage.Prefix),
		log:    log,
	}, nil
}

// normalizePrefix strips leading slashes and guarantees a single
// trailing slash on non-empty prefixes.
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// Key maps a local image name to its object key under the prefix.
func (c *Client) Key(name string) string {
	return c.prefix + name
}

// LocalName maps an object key back to the image name, stripping the
// prefix. The second return is false for keys outside the prefix.
func (c *Client) LocalName(key string) (string, bool) {
	if c.prefix == "" {
		return key, true
	}
	name, ok := strings.CutPrefix(key, c.prefix)
	return name, ok
}

// ListNames lists all image names under the prefix. Keys outside the
// prefix never appear because listing itself is prefix-scoped.
func (c *Client) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	opts := minio.ListObjectsOptions{Prefix: c.prefix, Recursive: true}
	for obj := range c.mc.ListObjects(ctx, c.bucket, opts) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, "listing bucket")
		}
		if name, ok := c.LocalName(obj.Key); ok && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// DownloadFile fetches one object into dest, creating parent
// directories. Transient failures retry with exponential backoff.
func (c *Client) DownloadFile(ctx context.Context, name, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	op := func() error {
		return c.mc.FGetObject(ctx, c.bucket, c.Key(name), dest, minio.GetObjectOptions{})
	}
	return c.retry(ctx, op, "download", name)
}

// UploadFile stores one local file under the image name.
func (c *Client) UploadFile(ctx context.Context, src, name string) error {
	op := func() error {
		_, err := c.mc.FPutObject(ctx, c.bucket, c.Key(name), src, minio.PutObjectOptions{})
		return err
	}
	return c.retry(ctx, op, "upload", name)
}

// Exists reports whether an object exists under the image name.
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	_, err := c.mc.StatObject(ctx, c.bucket, c.Key(name), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return false, nil
	}
	return false, err
}

func (c *Client) retry(ctx context.Context, op backoff.Operation, verb, name string) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxTransferRetries), ctx)
	notify := func(err error, wait time.Duration) {
		c.log.WithError(err).WithFields(logrus.Fields{
			"object": name, "wait": wait,
		}).Warnf("retrying %s", verb)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return errors.Wrapf(err, "%s %s", verb, name)
	}
	return nil
}

// Bucket returns the bucket name, for log output.
func (c *Client) Bucket() string { return c.bucket }
