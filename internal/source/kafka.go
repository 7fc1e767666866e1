package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/segmentio/kafka-go"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterSource("kafka", NewKafka)
}

// KafkaConfig configures the kafka source.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`

	// Topic and Topics are merged. Consuming more than one topic requires
	// a consumer group.
	Topic  string   `mapstructure:"topic"`
	Topics []string `mapstructure:"topics"`

	GroupID string `mapstructure:"group_id"`

	// StartOffset is "earliest" or "latest" and applies when no committed
	// offset exists.
	StartOffset string `mapstructure:"start_offset"`
}

// Kafka consumes log lines from Kafka topics. Offset management is handled
// by the client library; its internal retries diverge from the standard
// source backoff policy by design of the library.
type Kafka struct {
	name string
	cfg  KafkaConfig
	log  logger.ILogger

	reader *kafka.Reader
}

// NewKafka creates a kafka source from its opaque config mapping.
func NewKafka(name string, cfg map[string]any, log logger.ILogger) (plugin.Source, error) {
	c := KafkaConfig{StartOffset: "latest"}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("kafka source %q: %w", name, err)
	}
	if len(c.Brokers) == 0 {
		return nil, plugin.Configf("kafka source %q: brokers are required", name)
	}
	if c.Topic != "" {
		c.Topics = append(c.Topics, c.Topic)
		c.Topic = ""
	}
	if len(c.Topics) == 0 {
		return nil, plugin.Configf("kafka source %q: at least one topic is required", name)
	}
	if len(c.Topics) > 1 && c.GroupID == "" {
		return nil, plugin.Configf("kafka source %q: multiple topics require a group_id", name)
	}
	switch c.StartOffset {
	case "earliest", "latest":
	default:
		return nil, plugin.Configf("kafka source %q: invalid start_offset %q", name, c.StartOffset)
	}

	return &Kafka{name: name, cfg: c, log: log.SubLogger("KafkaSource")}, nil
}

// Name returns the instance name.
func (k *Kafka) Name() string { return k.name }

// Open builds the reader. The connection itself is established lazily by
// the client on first fetch.
func (k *Kafka) Open(ctx context.Context) error {
	startOffset := kafka.LastOffset
	if k.cfg.StartOffset == "earliest" {
		startOffset = kafka.FirstOffset
	}

	rc := kafka.ReaderConfig{
		Brokers:     k.cfg.Brokers,
		GroupID:     k.cfg.GroupID,
		StartOffset: startOffset,
	}
	if k.cfg.GroupID != "" {
		rc.GroupTopics = k.cfg.Topics
	} else {
		rc.Topic = k.cfg.Topics[0]
	}

	if err := rc.Validate(); err != nil {
		return fmt.Errorf("kafka reader config: %w", err)
	}

	k.reader = kafka.NewReader(rc)
	return nil
}

// Close closes the reader, committing outstanding offsets.
func (k *Kafka) Close(ctx context.Context) error {
	if k.reader == nil {
		return nil
	}
	err := k.reader.Close()
	k.reader = nil
	return err
}

// Run consumes messages until the context is cancelled. A failed read of a
// single record is transient: logged and skipped. No counter is kept for
// these failures.
func (k *Kafka) Run(ctx context.Context, emit plugin.EmitFunc) error {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return ctx.Err()
			}
			k.log.Warningf("kafka read error: %v", err)
			continue
		}

		ev := model.NewLogEvent(k.name, string(msg.Value))
		if !msg.Time.IsZero() {
			ev.Timestamp = msg.Time.UTC()
		}
		ev.Metadata["topic"] = msg.Topic
		ev.Metadata["partition"] = strconv.Itoa(msg.Partition)
		ev.Metadata["offset"] = strconv.FormatInt(msg.Offset, 10)
		if len(msg.Key) > 0 {
			ev.Metadata["key"] = string(msg.Key)
		}

		if err := emit(ctx, ev); err != nil {
			return err
		}
	}
}
