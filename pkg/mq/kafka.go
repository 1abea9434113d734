// Package mq 提供 Kafka producer 通用实现，用于提交后的账务事件发布
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/cryptocustody/pkg/logger"
)

// Config Kafka 配置
type Config struct {
	Brokers      []string
	MaxRetries   int
	RetryBackoff int
}

// Producer Kafka 生产者
type Producer struct {
	writer *kafka.Writer
	config Config
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg Config) (*Producer, error) {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxRetries,
		WriteBackoffMin:        time.Duration(cfg.RetryBackoff) * time.Millisecond,
		WriteBackoffMax:        time.Duration(cfg.RetryBackoff*10) * time.Millisecond,
	}

	logger.Info(context.Background(), "Kafka producer created successfully", "brokers", cfg.Brokers)
	return &Producer{writer: writer, config: cfg}, nil
}

// SendMessage 发送单条消息，value 会被序列化为 JSON
func (p *Producer) SendMessage(ctx context.Context, topic string, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error(ctx, "Failed to send Kafka message",
			"topic", topic,
			"key", key,
			"error", err,
		)
		return err
	}

	logger.Debug(ctx, "Kafka message sent", "topic", topic, "key", key)
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}
