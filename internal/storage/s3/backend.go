package s3

import (
	"bytes"
	"context"
	stderr "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/memorykeep/docsync/pkg/errors"
	"github.com/memorykeep/docsync/pkg/retry"
	"github.com/memorykeep/docsync/pkg/types"
)

// maxDocumentBytes caps how much of a fetched blob is read into memory.
const maxDocumentBytes = 4 << 20

// tooLargeCodes are the S3-compatible API error codes reported when a
// listing request exceeds what the store is willing to serve in one page.
var tooLargeCodes = map[string]bool{
	"RequestTooLarge":          true,
	"EntityTooLarge":           true,
	"MaxMessageLengthExceeded": true,
}

// apiError is satisfied by smithy API errors returned from the SDK.
type apiError interface {
	ErrorCode() string
}

// Backend implements types.BlobStore on an S3 bucket
type Backend struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
	httpClient    *http.Client
	transporter   *cargoships3.Transporter
	retryer       *retry.Retryer
	metrics       *MetricsCollector
	logger        *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithRetryer sets the retryer used for list and fetch calls.
func WithRetryer(r *retry.Retryer) Option {
	return func(b *Backend) {
		b.retryer = r
	}
}

// WithHTTPClient sets the client used to fetch public URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) {
		b.httpClient = c
	}
}

// WithLogger sets the backend logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// NewBackend creates an S3 blob store for cfg.Bucket.
func NewBackend(ctx context.Context, cfg *Config, opts ...Option) (*Backend, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	b := &Backend{
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		httpClient:    &http.Client{Timeout: cfg.RequestTimeout},
		retryer:       retry.New(retry.DefaultConfig()),
		metrics:       NewMetricsCollector(),
		logger:        slog.Default().With("component", "s3-backend", "bucket", cfg.Bucket),
	}
	for _, opt := range opts {
		opt(b)
	}

	cm, err := NewClientManager(ctx, cfg, b.logger)
	if err != nil {
		return nil, err
	}
	b.client = cm.GetClient()
	b.transporter = cm.GetTransporter()

	b.logger.Info("S3 blob store configured",
		"region", cfg.Region,
		"endpoint", cfg.Endpoint,
		"public_base_url", b.publicBaseURL,
		"cargoship", cm.IsCargoShipEnabled())

	return b, nil
}

// List returns up to maxKeys objects under prefix.
func (b *Backend) List(ctx context.Context, prefix string, maxKeys int) ([]types.ObjectInfo, error) {
	start := time.Now()

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	}
	if maxKeys > 0 {
		if maxKeys > 0x7FFFFFFF {
			maxKeys = 0x7FFFFFFF
		}
		input.MaxKeys = aws.Int32(int32(maxKeys))
	}

	var result *s3.ListObjectsV2Output
	err := b.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		out, err := b.client.ListObjectsV2(ctx, input)
		if err != nil {
			return b.translateError(err, "list", prefix)
		}
		result = out
		return nil
	})
	b.metrics.RecordRequest("list", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	objects := make([]types.ObjectInfo, 0, len(result.Contents))
	for _, obj := range result.Contents {
		key := aws.ToString(obj.Key)
		objects = append(objects, types.ObjectInfo{
			Key:          key,
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
			ContentType:  b.detectContentType(key),
		})
	}
	return objects, nil
}

// Upload stores content at folder/fileName, overwriting any existing object.
func (b *Backend) Upload(ctx context.Context, content []byte, fileName, folder string) (*types.UploadResult, error) {
	start := time.Now()
	key := joinKey(folder, fileName)
	contentType := b.detectContentType(key)

	if b.transporter != nil {
		archive := cargoships3.Archive{
			Key:    key,
			Reader: bytes.NewReader(content),
			Size:   int64(len(content)),
			Metadata: map[string]string{
				"docsync-upload": "true",
				"content-type":   contentType,
			},
		}
		result, err := b.transporter.Upload(ctx, archive)
		if err == nil {
			b.logger.Debug("CargoShip upload completed",
				"key", key,
				"size", len(content),
				"duration", result.Duration)
			b.metrics.RecordRequest("upload", time.Since(start), nil)
			b.metrics.RecordBytesUploaded(len(content))
			return &types.UploadResult{Success: true, URL: b.PublicURL(key), Key: key}, nil
		}
		b.metrics.RecordCargoShipFallback()
		b.logger.Warn("CargoShip upload failed, falling back to PutObject", "key", key, "error", err)
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		err = b.translateError(err, "upload", key)
	}
	b.metrics.RecordRequest("upload", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	b.metrics.RecordBytesUploaded(len(content))

	return &types.UploadResult{Success: true, URL: b.PublicURL(key), Key: key}, nil
}

// PublicURL derives the direct read URL for key. Without a public base URL
// the result is an s3:// URL that Fetch resolves through GetObject.
func (b *Backend) PublicURL(key string) string {
	if b.publicBaseURL == "" {
		return fmt.Sprintf("s3://%s/%s", b.bucket, key)
	}
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return b.publicBaseURL + "/" + strings.Join(segments, "/")
}

// Fetch reads the content behind a URL produced by PublicURL.
func (b *Backend) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()

	var data []byte
	err := b.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		var err error
		if key, ok := strings.CutPrefix(rawURL, "s3://"+b.bucket+"/"); ok {
			data, err = b.getObject(ctx, key)
		} else {
			data, err = b.httpGet(ctx, rawURL)
		}
		return err
	})
	b.metrics.RecordRequest("fetch", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	b.metrics.RecordBytesDownloaded(len(data))
	return data, nil
}

func (b *Backend) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, b.translateError(err, "fetch", key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxDocumentBytes))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNetworkError, "reading object body").
			WithComponent("s3-backend").
			WithContext("key", key)
	}
	return data, nil
}

func (b *Backend) httpGet(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "building fetch request").
			WithComponent("s3-backend").
			WithRetryable(false)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrCodeOperationCanceled, "fetch canceled")
		}
		return nil, errors.Wrap(err, errors.ErrCodeNetworkError, "fetch failed").
			WithComponent("s3-backend").
			WithContext("url", rawURL)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NewError(errors.ErrCodeObjectNotFound, "object not found").
			WithComponent("s3-backend").
			WithContext("url", rawURL)
	case resp.StatusCode >= 500:
		return nil, errors.NewError(errors.ErrCodeNetworkError, fmt.Sprintf("fetch returned status %d", resp.StatusCode)).
			WithComponent("s3-backend").
			WithContext("url", rawURL)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.NewError(errors.ErrCodeStorageRead, fmt.Sprintf("fetch returned status %d", resp.StatusCode)).
			WithComponent("s3-backend").
			WithContext("url", rawURL).
			WithRetryable(false)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNetworkError, "reading fetch body").
			WithComponent("s3-backend")
	}
	return data, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	start := time.Now()
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil && isErrorType[*s3types.NoSuchKey](err) {
		err = nil
	}
	if err != nil {
		err = b.translateError(err, "delete", key)
	}
	b.metrics.RecordRequest("delete", time.Since(start), err)
	return err
}

// GetMetrics returns current backend metrics
func (b *Backend) GetMetrics() BackendMetrics {
	return b.metrics.GetMetrics()
}

// ErrorRate returns the share of blob store calls that failed.
func (b *Backend) ErrorRate() float64 {
	return b.metrics.GetErrorRate()
}

func (b *Backend) translateError(err error, operation, key string) error {
	var se *errors.SyncError
	switch {
	case isErrorType[*s3types.NoSuchKey](err):
		se = errors.Wrap(err, errors.ErrCodeObjectNotFound, "object not found")
	case isErrorType[*s3types.NoSuchBucket](err):
		se = errors.Wrap(err, errors.ErrCodeBucketNotFound, "bucket not found").
			WithContext("bucket", b.bucket)
	case stderr.Is(err, context.DeadlineExceeded):
		se = errors.Wrap(err, errors.ErrCodeConnectionTimeout, operation+" timed out")
	case stderr.Is(err, context.Canceled):
		se = errors.Wrap(err, errors.ErrCodeOperationCanceled, operation+" canceled")
	default:
		var api apiError
		if stderr.As(err, &api) {
			switch {
			case tooLargeCodes[api.ErrorCode()]:
				se = errors.Wrap(err, errors.ErrCodeRequestTooLarge, "request too large")
			case api.ErrorCode() == "AccessDenied":
				se = errors.Wrap(err, errors.ErrCodeAccessDenied, "access denied")
			}
		}
		if se == nil {
			se = errors.Wrap(err, operationCode(operation), operation+" failed")
		}
	}
	return se.WithComponent("s3-backend").WithOperation(operation).WithContext("key", key)
}

func operationCode(operation string) errors.ErrorCode {
	switch operation {
	case "upload":
		return errors.ErrCodeStorageWrite
	case "delete":
		return errors.ErrCodeStorageDelete
	default:
		return errors.ErrCodeStorageRead
	}
}

func (b *Backend) detectContentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".txt"):
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func joinKey(folder, fileName string) string {
	folder = strings.TrimSuffix(folder, "/")
	if folder == "" {
		return fileName
	}
	return folder + "/" + fileName
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return stderr.As(err, &target)
}
