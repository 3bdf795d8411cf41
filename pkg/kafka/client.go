// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"report-intake-go/internal/config"
	"report-intake-go/pkg/log"
	"report-intake-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

const maxAttempts = 3

// StatusProcessor 处理一条状态事件。
// 返回 nil 表示事件已被消费（包括被判定为无需重试而丢弃的事件）。
type StatusProcessor interface {
	Process(ctx context.Context, event tasks.FileStatusEvent) error
}

// Producer 投递文件上传任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers(cfg.Brokers)...),
		Topic:        cfg.UploadTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// PublishFileUploaded 以 reportId 为 key 投递任务，同一报告的任务落在同一分区。
func (p *Producer) PublishFileUploaded(ctx context.Context, task tasks.FileUploadedTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.ReportID),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageSource 是消费循环用到的 kafka.Reader 方法。
type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// retryBackoff 是同一事件两次处理之间的基础等待时间，第 n 次失败后等待 n 倍。
var retryBackoff = 500 * time.Millisecond

// StartStatusConsumer 启动状态事件消费者，阻塞直到 ctx 结束或读取失败。
func StartStatusConsumer(ctx context.Context, cfg config.KafkaConfig, rdb redis.UniversalClient, processor StatusProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.StatusTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.StatusTopic)
	consume(ctx, r, rdb, processor)
}

func consume(ctx context.Context, src messageSource, rdb redis.UniversalClient, processor StatusProcessor) {
	for {
		m, err := src.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者收到停止信号")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}
		handleMessage(ctx, src, rdb, processor, m)
	}
}

// handleMessage 就地重试同一条消息，成功或失败满 3 次后提交 offset。
// 消费组 reader 不会重新投递未提交的消息，之后的提交会越过它。
// 失败次数记在 Redis 中，进程重启后重新投递的消息沿用已有计数。
func handleMessage(ctx context.Context, src messageSource, rdb redis.UniversalClient, processor StatusProcessor, m kafka.Message) {
	var event tasks.FileStatusEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		commit(ctx, src, m)
		return
	}

	key := attemptsKey(m)
	attempts := loadAttempts(ctx, rdb, key)
	for attempts < maxAttempts {
		err := processor.Process(ctx, event)
		if err == nil {
			clearAttempts(ctx, rdb, key)
			commit(ctx, src, m)
			return
		}
		attempts = recordFailure(ctx, rdb, key, attempts)
		log.Errorf("处理状态事件失败(第 %d 次): fileId=%s, status=%s, error: %v", attempts, event.FileID, event.Status, err)
		if attempts >= maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			// 不提交，重启后由 Kafka 重新投递
			return
		case <-time.After(time.Duration(attempts) * retryBackoff):
		}
	}

	log.Errorf("状态事件多次失败(>=%d)，提交 offset 终止重试: fileId=%s", maxAttempts, event.FileID)
	clearAttempts(ctx, rdb, key)
	commit(ctx, src, m)
}

func attemptsKey(m kafka.Message) string {
	return fmt.Sprintf("kafka:attempts:%s:%d:%d", m.Topic, m.Partition, m.Offset)
}

// loadAttempts 读取已记录的失败次数，Redis 异常时从 0 开始。
func loadAttempts(ctx context.Context, rdb redis.UniversalClient, key string) int {
	n, err := rdb.Get(ctx, key).Int()
	if err != nil {
		if err != redis.Nil {
			log.Warnf("读取重试计数失败, key: %s, error: %v", key, err)
		}
		return 0
	}
	return n
}

// recordFailure 递增失败计数。Redis 不可用时按本地计数推进，保证重试有上限。
// 停机时也要记下本次失败，因此不随 ctx 取消。
func recordFailure(ctx context.Context, rdb redis.UniversalClient, key string, attempts int) int {
	ctx = context.WithoutCancel(ctx)
	n, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		log.Warnf("记录重试计数失败, key: %s, error: %v", key, err)
		return attempts + 1
	}
	_ = rdb.Expire(ctx, key, 24*time.Hour).Err()
	return int(n)
}

func clearAttempts(ctx context.Context, rdb redis.UniversalClient, key string) {
	_ = rdb.Del(context.WithoutCancel(ctx), key).Err()
}

func commit(ctx context.Context, src messageSource, m kafka.Message) {
	if err := src.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
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
