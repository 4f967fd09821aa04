package blob

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/ragline/ragline/internal/errors"
)

// S3Config configures the S3-compatible blob client.
type S3Config struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Client is a blob Client backed by any S3-compatible store.
// Custom endpoint plus path-style addressing covers MinIO and friends.
type S3Client struct {
	client *s3.Client
}

var _ Client = (*S3Client)(nil)

// NewS3Client creates an S3-backed blob client.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeBlobUnavailable, "load aws config", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Client{client: client}, nil
}

// Get downloads the object bytes.
func (c *S3Client) Get(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeBlobUnavailable,
			fmt.Sprintf("get object %s", uri), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeBlobUnavailable,
			fmt.Sprintf("read object %s", uri), err)
	}
	return data, nil
}

// Put uploads the object bytes.
func (c *S3Client) Put(ctx context.Context, uri string, data []byte, contentType string) error {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := c.client.PutObject(ctx, input); err != nil {
		return errors.Backend(errors.ErrCodeBlobUnavailable,
			fmt.Sprintf("put object %s", uri), err)
	}
	return nil
}

// List enumerates objects under a bucket prefix, paging through results.
func (c *S3Client) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: &bucket,
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Backend(errors.ErrCodeBlobUnavailable,
				fmt.Sprintf("list bucket %s", bucket), err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
				ETag: strings.Trim(aws.ToString(obj.ETag), `"`),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}

// Delete removes the object. S3 treats deleting a missing key as success.
func (c *S3Client) Delete(ctx context.Context, uri string) error {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}
	if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}); err != nil {
		return errors.Backend(errors.ErrCodeBlobUnavailable,
			fmt.Sprintf("delete object %s", uri), err)
	}
	return nil
}

// Stat returns object metadata via HeadObject.
func (c *S3Client) Stat(ctx context.Context, uri string) (*ObjectInfo, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NotFound(errors.ErrCodeDocumentNotFound, "object", uri)
		}
		return nil, errors.Backend(errors.ErrCodeBlobUnavailable,
			fmt.Sprintf("stat object %s", uri), err)
	}
	info := &ObjectInfo{
		Key:  key,
		Size: aws.ToInt64(out.ContentLength),
		ETag: strings.Trim(aws.ToString(out.ETag), `"`),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

// Close releases resources. The s3 client holds no persistent connections.
func (c *S3Client) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	if stderrors.As(err, &notFound) || stderrors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	return stderrors.As(err, &apiErr) && strings.EqualFold(apiErr.ErrorCode(), "NotFound")
}
