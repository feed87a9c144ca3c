package objstore

import (
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"

	ierr "github.com/costplane/costplane/internal/errors"
)

const listPageSize = 1000

// S3Client implements Client against an S3 bucket.
type S3Client struct {
	client *s3.Client
	bucket string
}

// NewS3Client builds a client bound to one bucket. Static credentials are
// used when provided, the SDK default chain otherwise.
func NewS3Client(ctx context.Context, bucket string, creds Credentials) (*S3Client, error) {
	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(creds.Region),
	}
	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to load aws config").
			Mark(ierr.ErrTransport)
	}

	return &S3Client{
		client: s3.NewFromConfig(awsCfg),
		bucket: bucket,
	}, nil
}

func (c *S3Client) Bucket() string {
	return c.bucket
}

func (c *S3Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(listPageSize),
	})

	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := retryTransient(ctx, func() error {
			var perr error
			page, perr = paginator.NextPage(ctx)
			return perr
		})
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("failed to list s3://%s/%s", c.bucket, prefix).
				Mark(ierr.ErrTransport)
		}

		for _, obj := range page.Contents {
			info := ObjectInfo{Key: aws.ToString(obj.Key)}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			objects = append(objects, info)
		}
	}

	return objects, nil
}

func (c *S3Client) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := retryTransient(ctx, func() error {
		out, gerr := c.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if gerr != nil {
			if isS3NotFound(gerr) {
				return backoff.Permanent(gerr)
			}
			return gerr
		}
		body = out.Body
		return nil
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ierr.WithError(err).
				WithHintf("object s3://%s/%s does not exist", c.bucket, key).
				Mark(ierr.ErrObjectNotFound)
		}
		return nil, ierr.WithError(err).
			WithHintf("failed to fetch s3://%s/%s", c.bucket, key).
			Mark(ierr.ErrTransport)
	}
	return body, nil
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

// retryTransient runs op with exponential backoff, capped at four attempts.
func retryTransient(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(200*time.Millisecond),
		), 3),
		ctx,
	)
	return backoff.Retry(op, policy)
}
