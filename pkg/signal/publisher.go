// 文件: pkg/signal/publisher.go
// 信号发布器
//
// NATS 作为信号的对外投递通道 (轻量级替代 Kafka):
// 消费侧用队列组订阅即可水平扩展。

package signal

import (
	"mdx.com/pkg/nats"
)

// Publisher 信号投递通道
type Publisher interface {
	PublishSignal(s *Signal) error
	Close() error
}

// NatsPublisher 基于 NATS 的信号发布器
type NatsPublisher struct {
	publisher *nats.Publisher
}

// NewNatsPublisher 创建发布器
func NewNatsPublisher(natsURL string) (*NatsPublisher, error) {
	publisher, err := nats.NewPublisher(natsURL)
	if err != nil {
		return nil, err
	}
	return &NatsPublisher{publisher: publisher}, nil
}

// PublishSignal 发布一个信号
func (p *NatsPublisher) PublishSignal(s *Signal) error {
	return p.publisher.Publish(TopicSignals, s)
}

// Close 关闭发布器
func (p *NatsPublisher) Close() error {
	p.publisher.Close()
	return nil
}
