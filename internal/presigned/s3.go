package presigned

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sharegate/sharegate/internal/clock"
	"github.com/sharegate/sharegate/internal/config"
	"github.com/sirupsen/logrus"
)

// MaxExpiration is the longest lifetime S3 accepts for a presigned URL
const MaxExpiration = 7 * 24 * time.Hour

var (
	ErrBucketRequired     = errors.New("storage bucket is required")
	ErrStorageKeyRequired = errors.New("storage key is required")
	ErrInvalidExpiration  = errors.New("presigned url lifetime must be between 1s and 7 days")
)

// Link is a time-limited download URL
type Link struct {
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

// S3Issuer presigns GET requests against an S3-compatible bucket
type S3Issuer struct {
	presigner *s3.PresignClient
	bucket    string
	clock     clock.Clock
	logger    *logrus.Logger
}

// NewS3Issuer creates an issuer for the configured bucket. Presigning is a
// local operation; no request is sent to the endpoint.
func NewS3Issuer(cfg config.StorageConfig, clk clock.Clock, logger *logrus.Logger) (*S3Issuer, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Issuer{
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		clock:     clk,
		logger:    logger,
	}, nil
}

// GetDownloadLink presigns a GET for storageKey. When fileName is set the
// response is served as an attachment with that name.
func (i *S3Issuer) GetDownloadLink(ctx context.Context, storageKey string, ttl time.Duration, fileName string) (*Link, error) {
	if storageKey == "" {
		return nil, ErrStorageKeyRequired
	}
	if ttl < time.Second || ttl > MaxExpiration {
		return nil, ErrInvalidExpiration
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(i.bucket),
		Key:    aws.String(storageKey),
	}
	if fileName != "" {
		input.ResponseContentDisposition = aws.String(ContentDisposition(fileName))
	}

	signedAt := i.clock.Now()
	req, err := i.presigner.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		i.logger.WithError(err).WithFields(logrus.Fields{
			"bucket": i.bucket,
			"key":    storageKey,
		}).Error("Failed to presign download URL")
		return nil, fmt.Errorf("failed to presign download url: %w", err)
	}

	i.logger.WithFields(logrus.Fields{
		"bucket": i.bucket,
		"key":    storageKey,
		"ttl":    ttl.String(),
	}).Debug("Presigned download URL issued")

	return &Link{
		URL:       req.URL,
		Method:    req.Method,
		ExpiresAt: signedAt.Add(ttl),
	}, nil
}

// ContentDisposition renders an attachment header value for fileName.
// Non-ASCII names are encoded per RFC 2231.
func ContentDisposition(fileName string) string {
	value := mime.FormatMediaType("attachment", map[string]string{"filename": fileName})
	if value == "" {
		return "attachment"
	}
	return value
}
