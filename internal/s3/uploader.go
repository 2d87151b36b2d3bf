// internal/s3/uploader.go
package s3

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"

	"pickup-map-api-server/config"
)

// KeyPrefix is the folder every pickup photo is stored under.
const KeyPrefix = "pickups/"

// ObjectAPI is the part of the S3 client the uploader uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Uploader struct {
	Client           ObjectAPI
	Bucket           string
	Region           string
	CloudFrontDomain string
	Endpoint         string
}

func NewUploader(ctx context.Context, cfg config.S3Config) (*Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "s3: load AWS config")
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Uploader{
		Client:           s3Client,
		Bucket:           cfg.Bucket,
		Region:           cfg.Region,
		CloudFrontDomain: cfg.CloudFrontDomain,
		Endpoint:         cfg.Endpoint,
	}, nil
}

// UploadFile uploads a file to S3 and returns its public URL.
func (u *Uploader) UploadFile(ctx context.Context, file io.Reader, objectKey, contentType string) (string, error) {
	_, err := u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.Bucket),
		Key:         aws.String(objectKey),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", eris.Wrapf(err, "s3: upload %s", objectKey)
	}
	return u.PublicURL(objectKey), nil
}

// DeleteFile removes an object, used to undo an upload whose record was never saved.
func (u *Uploader) DeleteFile(ctx context.Context, objectKey string) error {
	_, err := u.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return eris.Wrapf(err, "s3: delete %s", objectKey)
	}
	return nil
}

// PublicURL prefers the CloudFront domain, then a custom endpoint, then the
// regional S3 URL.
func (u *Uploader) PublicURL(objectKey string) string {
	if u.CloudFrontDomain != "" {
		return fmt.Sprintf("https://%s/%s", u.CloudFrontDomain, objectKey)
	}
	if u.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(u.Endpoint, "/"), u.Bucket, objectKey)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.Bucket, u.Region, objectKey)
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	underscores = regexp.MustCompile(`_{2,}`)
)

// SanitizeFileName keeps letters, digits, dots and dashes, turning anything
// else into a single underscore.
func SanitizeFileName(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "photo"
	}
	return name
}

// ObjectKey builds "pickups/<unix millis>_<sanitized name>".
func ObjectKey(now time.Time, originalName string) string {
	return fmt.Sprintf("%s%d_%s", KeyPrefix, now.UnixMilli(), SanitizeFileName(originalName))
}
