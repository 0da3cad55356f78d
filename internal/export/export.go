// Package export writes heatmap snapshots as JSON documents to a local
// directory or an S3 bucket.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kass/go-eco-route/pkg/models"
)

// Heatmap is the exported document
type Heatmap struct {
	City        string                 `json:"city"`
	Kind        string                 `json:"kind"`
	GeneratedAt time.Time              `json:"generated_at"`
	Step        float64                `json:"step"`
	Samples     []models.HeatmapSample `json:"samples"`
}

// ObjectName is the relative name a heatmap is stored under
func ObjectName(h *Heatmap) string {
	return fmt.Sprintf("%s/%s/%s.json",
		strings.ToLower(h.City), h.Kind, h.GeneratedAt.UTC().Format("20060102T150405Z"))
}

// Sink opens named destinations for exported documents
type Sink interface {
	NewWriter(ctx context.Context, name string) (io.WriteCloser, error)
	Location(name string) string
}

// WriteHeatmap encodes h into sink and returns where it was written
func WriteHeatmap(ctx context.Context, sink Sink, h *Heatmap) (string, error) {
	name := ObjectName(h)

	w, err := sink.NewWriter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", name, err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to encode heatmap: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return sink.Location(name), nil
}

// FileSink writes below a local directory
type FileSink struct {
	Dir string
}

func (s FileSink) NewWriter(_ context.Context, name string) (io.WriteCloser, error) {
	path := filepath.Join(s.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return os.Create(path)
}

func (s FileSink) Location(name string) string {
	return filepath.Join(s.Dir, filepath.FromSlash(name))
}

// PutObjectAPI is the part of the S3 client the sink needs
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads each document as one object under Prefix
type S3Sink struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Sink loads the default AWS configuration for region
func NewS3Sink(ctx context.Context, region, bucket, prefix string) (*S3Sink, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewS3SinkWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func NewS3SinkWithClient(client PutObjectAPI, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Sink) NewWriter(ctx context.Context, name string) (io.WriteCloser, error) {
	return &s3Writer{
		ctx:    ctx,
		client: s.client,
		bucket: s.bucket,
		key:    s.prefix + name,
	}, nil
}

func (s *S3Sink) Location(name string) string {
	return fmt.Sprintf("s3://%s/%s%s", s.bucket, s.prefix, name)
}

// s3Writer buffers the document and uploads it on Close
type s3Writer struct {
	ctx    context.Context
	client PutObjectAPI
	bucket string
	key    string
	buffer bytes.Buffer
}

func (w *s3Writer) Write(data []byte) (int, error) {
	return w.buffer.Write(data)
}

func (w *s3Writer) Close() error {
	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(w.key),
		Body:        bytes.NewReader(w.buffer.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("unable to upload file to S3: %w", err)
	}
	return nil
}
