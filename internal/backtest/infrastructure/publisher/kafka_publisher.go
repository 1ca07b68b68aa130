// Package publisher 回测事件的 Kafka 发布实现
package publisher

import (
	"context"
	"encoding/json"

	"github.com/wyfcoding/stockbacktest/internal/backtest/domain"
	"github.com/wyfcoding/stockbacktest/pkg/mq"
	"github.com/wyfcoding/stockbacktest/pkg/utils"
)

// KafkaEventPublisher 事件发布器。消息体为扁平 JSON
// {type, job_id, timestamp, ...payload}；key 为 job_id，同一任务的
// 事件落在同一分区，消费者按序观察到单调的进度计数。
type KafkaEventPublisher struct {
	producer *mq.KafkaProducer
	topic    string
}

// NewKafkaEventPublisher 创建事件发布器
func NewKafkaEventPublisher(producer *mq.KafkaProducer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) publish(ctx context.Context, eventType domain.EventType, jobID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	flat := map[string]any{}
	if err := json.Unmarshal(body, &flat); err != nil {
		return err
	}
	flat["type"] = eventType
	flat["job_id"] = jobID
	flat["timestamp"] = utils.TimeNow()
	return p.producer.SendMessage(ctx, p.topic, jobID, flat)
}

// PublishProgress 实现 domain.EventPublisher
func (p *KafkaEventPublisher) PublishProgress(ctx context.Context, event domain.JobProgressEvent) error {
	return p.publish(ctx, domain.EventTypeProgress, event.JobID, event)
}

// PublishResult 实现 domain.EventPublisher
func (p *KafkaEventPublisher) PublishResult(ctx context.Context, event domain.CombinationResultEvent) error {
	return p.publish(ctx, domain.EventTypeResult, event.JobID, event)
}

// PublishLog 实现 domain.EventPublisher
func (p *KafkaEventPublisher) PublishLog(ctx context.Context, event domain.JobLogEvent) error {
	return p.publish(ctx, domain.EventTypeLog, event.JobID, event)
}

// PublishJobComplete 实现 domain.EventPublisher
func (p *KafkaEventPublisher) PublishJobComplete(ctx context.Context, event domain.JobCompleteEvent) error {
	return p.publish(ctx, domain.EventTypeJobComplete, event.JobID, event)
}
