// internal/clips/resolver.go

// Package clips resolves opaque clip storage keys to playable URLs. The
// engines only ever store and forward keys; resolution happens at the
// transport edge when state is broadcast.
package clips

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Resolver turns a clip key into a URL a client can stream.
type Resolver interface {
	ResolveURL(ctx context.Context, key string) (string, error)
}

// S3Resolver presigns GET URLs against an S3-compatible bucket (R2 in
// production).
type S3Resolver struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

// S3Config carries the bucket endpoint and credentials.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	AccessKeySecret string
	URLTTL          time.Duration
}

// NewS3Resolver builds a presigning resolver for the configured bucket.
func NewS3Resolver(ctx context.Context, cfg S3Config) (*S3Resolver, error) {
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 15 * time.Minute
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Resolver{
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		ttl:     cfg.URLTTL,
	}, nil
}

// ResolveURL presigns a time-limited GET for the clip object.
func (r *S3Resolver) ResolveURL(ctx context.Context, key string) (string, error) {
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return "", fmt.Errorf("presign clip %s: %w", key, err)
	}
	return req.URL, nil
}

// StaticResolver joins keys onto a public CDN base URL. Used in development
// and tests where presigning is unnecessary.
type StaticResolver struct {
	BaseURL string
}

// ResolveURL returns baseURL/key.
func (r *StaticResolver) ResolveURL(_ context.Context, key string) (string, error) {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(r.BaseURL, "/"), key), nil
}
