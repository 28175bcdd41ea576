// 文件: pkg/nats/publisher.go
// NATS 消息发布者
// 信号投递的轻量通道，本地开发可替代 Kafka

package nats

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"
)

// Publisher NATS 发布者
type Publisher struct {
	conn      *nats.Conn
	published atomic.Int64
}

// NewPublisher 创建发布者
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("md-engine"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

// Publish 序列化为 JSON 后发布
func (p *Publisher) Publish(subject string, data any) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.PublishRaw(subject, bytes)
}

// PublishRaw 发布原始消息体
func (p *Publisher) PublishRaw(subject string, data []byte) error {
	if err := p.conn.Publish(subject, data); err != nil {
		return err
	}
	p.published.Add(1)
	return nil
}

// Published 累计发布数
func (p *Publisher) Published() int64 {
	return p.published.Load()
}

// Close 关闭连接
func (p *Publisher) Close() {
	p.conn.Close()
}
