// Package storage serves release assets from an S3 bucket that mirrors the
// upstream download locations.
package storage

import (
	"context"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gamermine/convertisseur/pkg/errors"
	"github.com/gamermine/convertisseur/pkg/provision"
)

// Client reads mirrored assets with anonymous credentials.
type Client struct {
	s3Client *s3.Client
	bucket   string
	prefix   string
}

// NewClient creates a mirror client. Objects are looked up as
// prefix/<asset file name>. A non-empty endpoint points the client at an
// S3-compatible server using path-style addressing.
func NewClient(ctx context.Context, bucket, region, prefix, endpoint string) (*Client, error) {
	slog.Info("s3_client_init", "bucket", bucket, "region", region, "prefix", prefix, "endpoint", endpoint)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	var opts []func(*s3.Options)
	if endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &Client{
		s3Client: s3.NewFromConfig(cfg, opts...),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

// Key returns the object key an asset is mirrored under.
func (c *Client) Key(asset provision.Asset) string {
	return ObjectKey(c.prefix, asset)
}

// ObjectKey joins prefix and the asset's file name.
func ObjectKey(prefix string, asset provision.Asset) string {
	if prefix == "" {
		return asset.FileName
	}
	return path.Join(prefix, asset.FileName)
}

// Fetch implements provision.Source.
func (c *Client) Fetch(ctx context.Context, asset provision.Asset, destPath string) (*provision.Download, error) {
	key := c.Key(asset)
	slog.Info("s3_download_start", "bucket", c.bucket, "s3_key", key)

	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "s3_key", key, "error", err)
		return nil, errors.Wrap(err, "failed to get object from S3")
	}
	defer result.Body.Close()

	dl, err := provision.SaveStream(result.Body, destPath)
	if err != nil {
		slog.Error("s3_download_failed", "s3_key", key, "error", err)
		return nil, errors.Wrap(err, "failed to save object")
	}

	slog.Info("s3_download_complete", "s3_key", key, "size_mb", dl.Size/1024/1024)
	return dl, nil
}

// ListObjects lists the mirrored assets under the prefix
func (c *Client) ListObjects(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix),
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("s3_list_failed", "prefix", c.prefix, "error", err)
			return nil, errors.Wrap(err, "failed to list objects")
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	slog.Info("s3_list_complete", "prefix", c.prefix, "object_count", len(keys))
	return keys, nil
}

// MissingAssets returns the assets that have no object in the mirror.
func (c *Client) MissingAssets(ctx context.Context, assets ...provision.Asset) ([]provision.Asset, error) {
	keys, err := c.ListObjects(ctx)
	if err != nil {
		return nil, err
	}

	mirrored := make(map[string]bool, len(keys))
	for _, k := range keys {
		mirrored[k] = true
	}

	var missing []provision.Asset
	for _, a := range assets {
		if !mirrored[c.Key(a)] {
			missing = append(missing, a)
		}
	}
	return missing, nil
}
