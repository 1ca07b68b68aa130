// Package consumer 回测控制消息入口。
// 生成摘要：
// 1) 从控制主题消费 submit_job / cancel_job / register_strategy 命令
// 2) 命令处理失败只记日志不重投，幂等性由命令服务保证
package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/wyfcoding/stockbacktest/internal/backtest/application"
	"github.com/wyfcoding/stockbacktest/pkg/logger"
	"github.com/wyfcoding/stockbacktest/pkg/mq"
)

// 控制命令动作
const (
	ActionSubmitJob        = "submit_job"
	ActionCancelJob        = "cancel_job"
	ActionRegisterStrategy = "register_strategy"
)

// controlMessage 控制消息外层结构
type controlMessage struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// JobControlHandler 控制消息处理器
type JobControlHandler struct {
	commands *application.CommandService
	consumer *mq.KafkaConsumer
}

// NewJobControlHandler 创建控制消息处理器
func NewJobControlHandler(commands *application.CommandService, consumer *mq.KafkaConsumer) *JobControlHandler {
	return &JobControlHandler{commands: commands, consumer: consumer}
}

// Run 阻塞消费控制主题直至 ctx 取消
func (h *JobControlHandler) Run(ctx context.Context) error {
	logger.Info(ctx, "Job control consumer started")
	for {
		msg, err := h.consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error(ctx, "Failed to read control message", "error", err)
			continue
		}
		if err := h.Handle(ctx, msg); err != nil {
			logger.Error(ctx, "Failed to handle control message",
				"key", msg.Key,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// Handle 处理单条控制消息
func (h *JobControlHandler) Handle(ctx context.Context, msg *mq.Message) error {
	var cmd controlMessage
	if err := msg.UnmarshalPayload(&cmd); err != nil {
		return err
	}

	switch cmd.Action {
	case ActionSubmitJob:
		var submit application.SubmitJobCommand
		if err := json.Unmarshal(cmd.Payload, &submit); err != nil {
			return err
		}
		job, err := h.commands.SubmitJob(ctx, submit)
		if err != nil {
			return err
		}
		logger.Info(ctx, "Job submitted via control topic", "job_id", job.JobID)
		return nil

	case ActionCancelJob:
		var cancel struct {
			JobID string `json:"job_id"`
		}
		if err := json.Unmarshal(cmd.Payload, &cancel); err != nil {
			return err
		}
		return h.commands.CancelJob(ctx, cancel.JobID)

	case ActionRegisterStrategy:
		var register struct {
			Name   string             `json:"name"`
			Source string             `json:"source"`
			Params map[string]float64 `json:"params"`
		}
		if err := json.Unmarshal(cmd.Payload, &register); err != nil {
			return err
		}
		def, err := h.commands.RegisterStrategy(ctx, register.Name, register.Source, register.Params)
		if err != nil {
			return err
		}
		logger.Info(ctx, "Strategy registered via control topic", "strategy_id", def.StrategyID)
		return nil

	default:
		logger.Warn(ctx, "Unknown control action", "action", cmd.Action)
		return nil
	}
}
