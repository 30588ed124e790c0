// Package s3store implements store.FileService on an S3-compatible bucket.
//
// Objects live at "<absoluteId>/<name>". Create-only writes use a conditional
// PUT (If-None-Match: *), which the bucket rejects with 412 when the key exists.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	apperrors "github.com/tendant/wirekit/internal/errors"
	"github.com/tendant/wirekit/internal/resource"
	"github.com/tendant/wirekit/internal/store"
)

// API is the subset of *s3.Client the store needs.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Options locate the bucket.
type Options struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// Store maps resources onto key prefixes of one bucket.
type Store struct {
	client API
	bucket string
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New builds an S3 client from the default AWS credential chain.
func New(ctx context.Context, o Options, opts ...Option) (*Store, error) {
	if o.Bucket == "" {
		return nil, apperrors.Configuration("s3 bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if o.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(o.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
		}
		so.UsePathStyle = o.UsePathStyle
	})
	return NewWithClient(client, o.Bucket, opts...), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, bucket string, opts ...Option) *Store {
	s := &Store{
		client: client,
		bucket: bucket,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Factory returns a store.Factory producing services backed by the bucket.
func (s *Store) Factory() store.Factory {
	return s.Service
}

// Service returns the FileService for the resource (scope, id).
func (s *Store) Service(scope resource.Scope, id string) (store.FileService, error) {
	res := resource.New(scope, id)
	abs, err := res.AbsoluteID()
	if err != nil {
		return nil, err
	}
	return &Service{store: s, res: res, prefix: abs + "/"}, nil
}

// Service is the FileService of one resource.
type Service struct {
	store  *Store
	res    *resource.Resource
	prefix string
}

func (f *Service) Resource() *resource.Resource { return f.res }

func (f *Service) Read(ctx context.Context, name string) ([]byte, error) {
	out, err := f.store.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.store.bucket),
		Key:    aws.String(f.prefix + name),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, apperrors.NotFound("object", name)
		}
		return nil, apperrors.Internal("failed to get object", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperrors.Internal("failed to read object", err)
	}
	return data, nil
}

func (f *Service) Write(ctx context.Context, name string, data []byte, opts ...store.WriteOption) error {
	o := store.ApplyWriteOptions(opts...)
	input := &s3.PutObjectInput{
		Bucket: aws.String(f.store.bucket),
		Key:    aws.String(f.prefix + name),
		Body:   bytes.NewReader(data),
	}
	if o.OnlyIfNotExists {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := f.store.client.PutObject(ctx, input); err != nil {
		if isPreconditionFailed(err) {
			return apperrors.AlreadyExists("object", name, err)
		}
		return apperrors.Internal("failed to put object", err)
	}
	f.store.logger.Debug("object written", "bucket", f.store.bucket, "key", f.prefix+name)
	return nil
}

func (f *Service) Delete(ctx context.Context, name string) error {
	_, err := f.store.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(f.store.bucket),
		Key:    aws.String(f.prefix + name),
	})
	if err != nil {
		return apperrors.Internal("failed to delete object", err)
	}
	return nil
}

func (f *Service) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		pages := s3.NewListObjectsV2Paginator(f.store.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(f.store.bucket),
			Prefix: aws.String(f.prefix + prefix),
		})
		for pages.HasMorePages() {
			page, err := pages.NextPage(ctx)
			if err != nil {
				yield("", apperrors.Internal("failed to list objects", err))
				return
			}
			for _, obj := range page.Contents {
				if !yield(strings.TrimPrefix(aws.ToString(obj.Key), f.prefix), nil) {
					return
				}
			}
		}
	}
}

func (f *Service) IsAlreadyExists(err error) bool {
	return isPreconditionFailed(err)
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusPreconditionFailed
}
