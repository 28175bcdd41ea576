// 文件: pkg/feed/kafka.go
// Kafka 行情接入
//
// 消费交易所网关写入的行情 topic (JSON 编码的 MarketUpdate)，
// 解码进池化对象后同步交给行情处理器，处理完立即回池。

package feed

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"mdx.com/pkg/kafka"
	"mdx.com/pkg/mdata"
)

// TopicUpdates 行情更新的 Kafka topic
const TopicUpdates = "market.updates"

// KafkaFeedConfig Kafka 接入配置
type KafkaFeedConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
}

// DefaultKafkaFeedConfig 默认配置
func DefaultKafkaFeedConfig(brokers []string) KafkaFeedConfig {
	return KafkaFeedConfig{
		Brokers: brokers,
		GroupID: "md-engine",
		Topics:  []string{TopicUpdates},
	}
}

// KafkaFeed Kafka 行情数据源
type KafkaFeed struct {
	consumer *kafka.Consumer
	handler  *mdata.MarketDataHandler
	pool     *UpdatePool

	received  atomic.Uint64
	decodeErr atomic.Uint64
}

// NewKafkaFeed 创建 Kafka 数据源
func NewKafkaFeed(cfg KafkaFeedConfig, handler *mdata.MarketDataHandler) (*KafkaFeed, error) {
	f := &KafkaFeed{
		handler: handler,
		pool:    NewUpdatePool(),
	}
	consumerCfg := kafka.DefaultConsumerConfig(cfg.Brokers, cfg.GroupID, cfg.Topics)
	consumer, err := kafka.NewConsumer(consumerCfg, f.handleMessage)
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	f.consumer = consumer
	return f, nil
}

// handleMessage 解码并处理单条行情消息
func (f *KafkaFeed) handleMessage(topic string, key, value []byte) error {
	u := f.pool.Get()
	defer f.pool.Put(u)

	if err := json.Unmarshal(value, u); err != nil {
		f.decodeErr.Add(1)
		return fmt.Errorf("decode update: %w", err)
	}

	f.received.Add(1)
	f.handler.ProcessUpdate(u)
	return nil
}

// Start 启动消费
func (f *KafkaFeed) Start() {
	f.consumer.Start()
}

// Stop 停止消费
func (f *KafkaFeed) Stop() error {
	return f.consumer.Stop()
}

// KafkaFeedStats 统计快照
type KafkaFeedStats struct {
	Received   uint64
	DecodeErrs uint64
}

// Stats 统计快照
func (f *KafkaFeed) Stats() KafkaFeedStats {
	return KafkaFeedStats{
		Received:   f.received.Load(),
		DecodeErrs: f.decodeErr.Load(),
	}
}
