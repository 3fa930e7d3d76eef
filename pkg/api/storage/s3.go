package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/perfstor/pkg/config"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Backend = (*s3Backend)(nil)

type s3Backend struct {
	log    logrus.FieldLogger
	client *s3.Client
	bucket string
}

// NewS3Backend creates a Backend backed by an S3-compatible bucket.
func NewS3Backend(log logrus.FieldLogger, cfg *config.S3Config) Backend {
	return &s3Backend{
		log:    log.WithField("component", "storage-s3"),
		client: newS3Client(cfg),
		bucket: cfg.Bucket,
	}
}

func (b *s3Backend) Name() string {
	return "s3"
}

// Preflight verifies S3 connectivity by writing a small test object.
func (b *s3Backend) Preflight(ctx context.Context) error {
	content := fmt.Sprintf("perfstor write test: %s", time.Now().UTC().Format(time.RFC3339))

	if err := b.Put(ctx, preflightKey, []byte(content), "text/plain"); err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", b.bucket, err)
	}

	return nil
}

// List returns every key under prefix.
func (b *s3Backend) List(ctx context.Context, prefix string) ([]string, error) {
	prefix = listPrefix(prefix)

	paginator := s3.NewListObjectsV2Paginator(
		b.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(b.bucket),
			Prefix: aws.String(prefix),
		},
	)

	var keys []string

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects under %q: %w", prefix, err)
		}

		for _, obj := range page.Contents {
			if obj.Key != nil && !strings.HasSuffix(*obj.Key, "/") {
				keys = append(keys, *obj.Key)
			}
		}
	}

	sort.Strings(keys)

	return keys, nil
}

// Get reads an object. Returns (nil, nil) when the key does not exist.
func (b *s3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting object %q: %w", key, err)
	}

	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", key, err)
	}

	return data, nil
}

// Put uploads an object.
func (b *s3Backend) Put(
	ctx context.Context, key string, data []byte, contentType string,
) error {
	if contentType == "" {
		contentType = DetectContentType(key)
	}

	b.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": b.bucket,
	}).Debug("Uploading object")

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("PutObject %q: %w", key, err)
	}

	return nil
}

// listPrefix turns a key prefix into a directory-style S3 prefix so that
// "incoming" does not also match "incoming-old/...".
func listPrefix(prefix string) string {
	prefix = strings.TrimLeft(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return prefix
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	return strings.Contains(err.Error(), "NoSuchKey")
}

func newS3Client(cfg *config.S3Config) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}
