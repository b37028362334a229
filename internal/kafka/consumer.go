package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lvdashuaibi/votecore/config"
	"github.com/lvdashuaibi/votecore/internal/logging"
	"github.com/lvdashuaibi/votecore/internal/model"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageHandler 处理一条投票事件，返回错误时只记录日志
type MessageHandler func(ctx context.Context, event *model.BallotCastEvent) error

// Consumer 消费者组，每个工作协程持有一个Reader，分区由组协调器分配
type Consumer struct {
	readers []messageReader
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewConsumer(cfg config.KafkaConfig) *Consumer {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	readers := make([]messageReader, 0, workers)
	for i := 0; i < workers; i++ {
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6, // 10MB
			MaxWait:  500 * time.Millisecond,
		}))
	}
	logging.Log.Infof("创建消费者组 %s，共 %d 个Reader", cfg.GroupID, workers)

	return newConsumer(readers)
}

func newConsumer(readers []messageReader) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{readers: readers, ctx: ctx, cancel: cancel}
}

// StartConsuming 开始消费消息，使用多个goroutine并发消费
func (c *Consumer) StartConsuming(handler MessageHandler) {
	for i, reader := range c.readers {
		c.wg.Add(1)
		go func(workerID int, r messageReader) {
			defer c.wg.Done()
			c.consumeMessages(workerID, r, handler)
		}(i, reader)
	}
	logging.Log.Infof("已启动 %d 个Kafka消费者工作线程", len(c.readers))
}

// consumeMessages 单个消费者goroutine的消费逻辑
func (c *Consumer) consumeMessages(workerID int, reader messageReader, handler MessageHandler) {
	log := logging.Log.WithField("worker", workerID)
	log.Debug("消费者工作线程已启动")

	for {
		m, err := reader.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				log.Debug("消费者工作线程收到停止信号")
				return
			}
			log.Warnf("读取消息失败: %v", err)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var event model.BallotCastEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			// 无法解析的消息直接跳过，避免阻塞分区
			log.Errorf("解析消息失败 partition=%d offset=%d: %v", m.Partition, m.Offset, err)
			c.commit(reader, m)
			continue
		}

		if err := handler(c.ctx, &event); err != nil {
			log.Warnf("处理选举 %s 的投票事件失败: %v", event.ElectionID, err)
			continue
		}
		c.commit(reader, m)
	}
}

func (c *Consumer) commit(reader messageReader, m kafka.Message) {
	if err := reader.CommitMessages(c.ctx, m); err != nil && c.ctx.Err() == nil {
		logging.Log.Warnf("提交偏移量失败 partition=%d offset=%d: %v", m.Partition, m.Offset, err)
	}
}

// Stop 停止消费
func (c *Consumer) Stop() error {
	logging.Log.Info("正在停止所有Kafka消费者工作线程...")
	c.cancel()
	c.wg.Wait()

	for i, reader := range c.readers {
		if err := reader.Close(); err != nil {
			logging.Log.Warnf("关闭消费者 #%d 失败: %v", i, err)
		}
	}
	logging.Log.Info("所有Kafka消费者工作线程已停止")
	return nil
}
