// Package messaging 账务事件的 Kafka 发布实现
package messaging

import (
	"context"

	"github.com/wyfcoding/cryptocustody/internal/ledger/application"
	"github.com/wyfcoding/cryptocustody/pkg/logger"
	"github.com/wyfcoding/cryptocustody/pkg/mq"
)

// KafkaPublisher 基于 Kafka 的事件发布器
// 发布为尽力而为：事件写入失败只记录日志，不回滚已提交的账务结果。
type KafkaPublisher struct {
	producer *mq.Producer
	topic    string
}

// NewKafkaPublisher 创建 Kafka 事件发布器
func NewKafkaPublisher(producer *mq.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish 发布账务事件，按用户 ID 分区保证单用户事件有序
func (p *KafkaPublisher) Publish(ctx context.Context, event application.LedgerEvent) {
	if err := p.producer.SendMessage(ctx, p.topic, event.UserID, event); err != nil {
		logger.Error(ctx, "Failed to publish ledger event",
			"type", event.Type,
			"user_id", event.UserID,
			"error", err,
		)
	}
}
