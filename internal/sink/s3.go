package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterSink("s3", NewS3)
}

// S3Config configures the s3 sink.
type S3Config struct {
	Bucket string `mapstructure:"bucket"`

	// KeyPrefix is expanded with time partitions: one object per batch at
	// <prefix>/<yyyy>/<MM>/<dd>/<unix-nanos>-<seq>.ndjson.
	KeyPrefix string `mapstructure:"key_prefix"`
	Region    string `mapstructure:"region"`

	// EndpointURL points at an S3-compatible store (MinIO, localstack).
	EndpointURL string `mapstructure:"endpoint_url"`
}

// s3PutAPI is the slice of the S3 client the sink uses, injectable for
// testing.
type s3PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 writes each batch as one NDJSON object under a time-partitioned key.
type S3 struct {
	name   string
	cfg    S3Config
	client s3PutAPI
	log    logger.ILogger
	seq    atomic.Uint64
}

// NewS3 creates an s3 sink from its opaque config mapping.
func NewS3(name string, cfg map[string]any, log logger.ILogger) (plugin.Sink, error) {
	c := S3Config{
		KeyPrefix: "logs",
		Region:    "us-east-1",
	}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("s3 sink %q: %w", name, err)
	}
	if c.Bucket == "" {
		return nil, plugin.Configf("s3 sink %q: bucket is required", name)
	}
	return &S3{name: name, cfg: c, log: log.SubLogger("S3Sink")}, nil
}

// NewS3WithClient creates an s3 sink over an injected client (for testing).
func NewS3WithClient(name string, cfg S3Config, client s3PutAPI, log logger.ILogger) *S3 {
	return &S3{name: name, cfg: cfg, client: client, log: log.SubLogger("S3Sink")}
}

// Name returns the instance name.
func (s *S3) Name() string { return s.name }

// Open builds the S3 client from the ambient AWS credential chain.
func (s *S3) Open(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.cfg.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s.cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(s.cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})
	return nil
}

// Flush is a no-op; each batch is durably put before Write returns.
func (s *S3) Flush(ctx context.Context) error { return nil }

// Close is a no-op; the client holds no persistent connection.
func (s *S3) Close(ctx context.Context) error { return nil }

// Write puts the batch as one NDJSON object.
func (s *S3) Write(ctx context.Context, batch model.Batch) error {
	if s.client == nil {
		return plugin.Fatal(fmt.Errorf("s3 sink %q is not open", s.name))
	}

	var body bytes.Buffer
	for _, ev := range batch {
		data, err := json.Marshal(ev.ToMap())
		if err != nil {
			return plugin.Fatal(err)
		}
		body.Write(data)
		body.WriteByte('\n')
	}

	key := s.objectKey(time.Now().UTC())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return plugin.Retryable(err)
	}

	s.log.Debugf("wrote batch: key=%s, events=%d", key, len(batch))
	return nil
}

func (s *S3) objectKey(now time.Time) string {
	prefix := strings.TrimSuffix(s.cfg.KeyPrefix, "/")
	return fmt.Sprintf("%s/%s/%d-%d.ndjson",
		prefix, now.Format("2006/01/02"), now.UnixNano(), s.seq.Add(1))
}
