package source

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterSource("s3", NewS3)
}

// S3Config configures the s3 source.
type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`

	// EndpointURL points at an S3-compatible store (MinIO, localstack).
	EndpointURL string `mapstructure:"endpoint_url"`

	// PollInterval is how often the bucket is listed for new objects.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// s3API is the slice of the S3 client the source uses, injectable for
// testing.
type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 polls a bucket prefix and reads new objects line by line. Object keys
// already read are remembered for the lifetime of the run.
type S3 struct {
	name string
	cfg  S3Config
	log  logger.ILogger

	client    s3API
	processed map[string]struct{}
}

// NewS3 creates an s3 source from its opaque config mapping.
func NewS3(name string, cfg map[string]any, log logger.ILogger) (plugin.Source, error) {
	c := S3Config{
		Region:       "us-east-1",
		PollInterval: time.Minute,
	}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("s3 source %q: %w", name, err)
	}
	if c.Bucket == "" {
		return nil, plugin.Configf("s3 source %q: bucket is required", name)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}

	return &S3{
		name:      name,
		cfg:       c,
		log:       log.SubLogger("S3Source"),
		processed: make(map[string]struct{}),
	}, nil
}

// NewS3WithClient creates an s3 source over an injected client (for
// testing).
func NewS3WithClient(name string, cfg S3Config, client s3API, log logger.ILogger) *S3 {
	return &S3{
		name:      name,
		cfg:       cfg,
		log:       log.SubLogger("S3Source"),
		client:    client,
		processed: make(map[string]struct{}),
	}
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

// Close is a no-op; the client holds no persistent connection.
func (s *S3) Close(ctx context.Context) error { return nil }

// Run polls the bucket until the context is cancelled. A failed read of one
// object is transient: logged and retried on the next poll.
func (s *S3) Run(ctx context.Context, emit plugin.EmitFunc) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	// First sweep happens immediately; the ticker paces the rest.
	if err := s.sweep(ctx, emit); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweep(ctx, emit); err != nil {
				return err
			}
		}
	}
}

// sweep lists the prefix and reads every object not yet processed.
func (s *S3) sweep(ctx context.Context, emit plugin.EmitFunc) error {
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(s.cfg.Prefix),
			ContinuationToken: token,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warningf("listing s3://%s/%s: %v", s.cfg.Bucket, s.cfg.Prefix, err)
			return nil
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if _, done := s.processed[key]; done {
				continue
			}
			if err := s.readObject(ctx, key, emit); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Warningf("reading s3://%s/%s: %v", s.cfg.Bucket, key, err)
				continue
			}
			s.processed[key] = struct{}{}
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			return nil
		}
		token = out.NextContinuationToken
	}
}

func (s *S3) readObject(ctx context.Context, key string, emit plugin.EmitFunc) error {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	scanner := bufio.NewScanner(obj.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		ev := model.NewLogEvent(s.name, line)
		ev.Metadata["bucket"] = s.cfg.Bucket
		ev.Metadata["key"] = key

		if err := emit(ctx, ev); err != nil {
			return err
		}
	}
	return scanner.Err()
}
