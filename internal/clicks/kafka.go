package clicks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Kosench/go-link-resolver/internal/metrics"
	"github.com/Kosench/go-link-resolver/internal/model"
)

const defaultGroupID = "link-resolver-clicks"

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// messageWriter is the subset of *kafka.Writer used by KafkaRecorder.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaRecorder publishes click events so any instance's consumer can persist them.
type KafkaRecorder struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaRecorder(cfg KafkaConfig, logger *zap.Logger) *KafkaRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := logger.Named("clicks.kafka")

	return &KafkaRecorder{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			Async:        true,
			BatchTimeout: 50 * time.Millisecond,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					metrics.ClicksDropped.WithLabelValues("publish_failed").Add(float64(len(messages)))
					l.Error("click publish failed", zap.Int("count", len(messages)), zap.Error(err))
				}
			},
		},
		logger: l,
	}
}

// Record is non-blocking: the writer runs in async mode.
func (k *KafkaRecorder) Record(click model.Click) {
	data, err := json.Marshal(click)
	if err != nil {
		k.logger.Error("click encode failed", zap.Error(err))
		return
	}

	err = k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(click.LinkID),
		Value: data,
	})
	if err != nil {
		metrics.ClicksDropped.WithLabelValues("publish_failed").Inc()
		k.logger.Error("click publish failed", zap.String("short_code", click.ShortCode), zap.Error(err))
	}
}

func (k *KafkaRecorder) Close() error {
	return k.writer.Close()
}

// messageReader is the subset of *kafka.Reader used by KafkaSource.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaSource feeds events from the topic into a channel for a Consumer.
type KafkaSource struct {
	reader    messageReader
	events    chan model.Click
	logger    *zap.Logger
	closeOnce sync.Once
}

func NewKafkaSource(cfg KafkaConfig, bufferSize int, logger *zap.Logger) *KafkaSource {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = defaultGroupID
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return newKafkaSource(reader, bufferSize, logger)
}

func newKafkaSource(reader messageReader, bufferSize int, logger *zap.Logger) *KafkaSource {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSource{
		reader: reader,
		events: make(chan model.Click, bufferSize),
		logger: logger.Named("clicks.kafka"),
	}
}

func (s *KafkaSource) Events() <-chan model.Click {
	return s.events
}

// Run reads until ctx is done or the reader is closed, then closes Events.
func (s *KafkaSource) Run(ctx context.Context) {
	defer close(s.events)

	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			// The reader returns io.EOF once closed.
			if errors.Is(err, io.EOF) {
				return
			}
			s.logger.Error("click read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var click model.Click
		if err := json.Unmarshal(msg.Value, &click); err != nil {
			s.logger.Warn("click decode failed", zap.Int64("offset", msg.Offset), zap.Error(err))
			continue
		}

		select {
		case s.events <- click:
		case <-ctx.Done():
			return
		}
	}
}

func (s *KafkaSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.reader.Close()
	})
	return err
}
