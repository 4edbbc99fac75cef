package content

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
)

// S3Oracle is the reference Oracle: it answers digest-existence checks
// against S3-compatible object storage, keyed by the digest's textual
// form. It never uploads or reads the object body — that is a content
// cache's job, out of scope here.
type S3Oracle struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3OracleConfig configures an S3Oracle.
type S3OracleConfig struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
	Prefix   string
}

// NewS3Oracle builds an Oracle backed by the given S3 bucket.
func NewS3Oracle(ctx context.Context, cfg S3OracleConfig) (*S3Oracle, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("content: failed to load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}

	return &S3Oracle{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (o *S3Oracle) key(digest hashing.AnyHash) string {
	return o.prefix + string(digest.Alg) + "/" + digest.String()
}

// Exists reports whether an object keyed by digest is present in the
// bucket. Any HeadObject error (not found, access denied, transient)
// is treated as "not present" per the oracle's existence-check
// contract; the core treats missing content as a gate to clear, not a
// hard failure to surface.
func (o *S3Oracle) Exists(ctx context.Context, digest hashing.AnyHash) (bool, error) {
	_, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key(digest)),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}
