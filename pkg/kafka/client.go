// Package kafka carries ingestion tasks between the upload API and the
// ingest worker.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/tasks"
)

const attemptsTTL = 24 * time.Hour

// TaskProcessor runs one ingestion task.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
}

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes ingestion tasks.
type Producer struct {
	writer messageWriter
}

// NewProducer returns a producer for cfg.Topic.
func NewProducer(cfg config.KafkaConfig) *Producer {
	log.Infof("[Kafka] producer ready for topic '%s'", cfg.Topic)
	return &Producer{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg.Brokers)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

// ProduceIngestTask publishes task keyed by its file hash.
func (p *Producer) ProduceIngestTask(ctx context.Context, task tasks.IngestTask) error {
	value, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(task.Key()), Value: value}); err != nil {
		return fmt.Errorf("produce ingest task %s: %w", task.Source, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error { return p.writer.Close() }

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AttemptStore counts failed attempts per task. *redis.Client satisfies it.
type AttemptStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Consumer feeds ingestion tasks to a processor one at a time. A failed
// task is retried by leaving its offset uncommitted until it has failed
// maxAttempts times.
type Consumer struct {
	reader      messageReader
	attempts    AttemptStore
	processor   TaskProcessor
	maxAttempts int64
}

// NewConsumer returns a consumer of cfg.Topic in group cfg.GroupID.
func NewConsumer(cfg config.KafkaConfig, attempts AttemptStore, processor TaskProcessor) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return newConsumer(r, attempts, processor, cfg.MaxAttempts)
}

func newConsumer(r messageReader, attempts AttemptStore, processor TaskProcessor, maxAttempts int) *Consumer {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Consumer{reader: r, attempts: attempts, processor: processor, maxAttempts: int64(maxAttempts)}
}

// Run consumes until ctx is cancelled or the reader fails.
func (c *Consumer) Run(ctx context.Context) error {
	log.Info("[Kafka] consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("[Kafka] close reader: %v", err)
		}
	}()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}
		c.handleMessage(ctx, m)
	}
}

// handleMessage processes m and reports whether its offset was committed.
func (c *Consumer) handleMessage(ctx context.Context, m kafka.Message) bool {
	log.Debugf("[Kafka] message at offset %d", m.Offset)

	var task tasks.IngestTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		// a malformed message would block the partition forever
		log.Errorf("[Kafka] cannot decode message: %v, value: %s", err, string(m.Value))
		return c.commit(ctx, m)
	}

	log.Infof("[Kafka] processing ingest task: source=%s md5=%s", task.Source, task.FileMD5)
	key := "kafka:attempts:" + task.Key()
	if err := c.processor.Process(ctx, task); err != nil {
		log.Errorf("[Kafka] ingest task failed: source=%s err=%v", task.Source, err)
		if errors.Is(err, context.Canceled) {
			return false
		}
		attempts, incErr := c.attempts.Incr(ctx, key).Result()
		if incErr != nil {
			// without a counter, leave the offset for Kafka to redeliver
			log.Errorf("[Kafka] count attempts for %s: %v", key, incErr)
			return false
		}
		_ = c.attempts.Expire(ctx, key, attemptsTTL).Err()
		if attempts < c.maxAttempts {
			return false
		}
		log.Errorf("[Kafka] task failed %d times, giving up: source=%s", attempts, task.Source)
		return c.commit(ctx, m)
	}

	log.Infof("[Kafka] ingest task done: source=%s", task.Source)
	_ = c.attempts.Del(ctx, key).Err()
	return c.commit(ctx, m)
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) bool {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("[Kafka] commit offset %d: %v", m.Offset, err)
		return false
	}
	return true
}

func brokers(list string) []string {
	var out []string
	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
