// 文件: pkg/signal/db_writer.go
// 信号数据库写入器
//
// 监听 NATS 信号事件，批量写入 MySQL:
// - 批量写入提高吞吐
// - SignalID 唯一索引保证幂等
// - 队列组订阅，可多实例分摊负载

package signal

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"mdx.com/pkg/nats"
)

// DBWriterConfig 写入器配置
type DBWriterConfig struct {
	QueueGroup    string        // NATS 队列组; 留空则普通订阅 (每实例全量接收)
	BatchSize     int           // 批量大小
	FlushInterval time.Duration // 刷新间隔
}

// DefaultDBWriterConfig 默认配置
func DefaultDBWriterConfig() DBWriterConfig {
	return DBWriterConfig{
		QueueGroup:    "signal-db-writer",
		BatchSize:     100,
		FlushInterval: 500 * time.Millisecond,
	}
}

// DBWriterStats 写入统计
type DBWriterStats struct {
	Received int64 // 接收数量
	Written  int64 // 写入数量
	Errors   int64 // 错误数量
	Batches  int64 // 批次数量
}

// DBWriter 信号数据库写入器
type DBWriter struct {
	config     DBWriterConfig
	repo       *Repo
	subscriber *nats.Subscriber

	// 批量缓冲
	buffer   []*SignalRecord
	bufferMu sync.Mutex
	flushCh  chan struct{}

	received atomic.Int64
	written  atomic.Int64
	errors   atomic.Int64
	batches  atomic.Int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDBWriter 创建写入器
func NewDBWriter(config DBWriterConfig, repo *Repo, natsURL string) (*DBWriter, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 500 * time.Millisecond
	}
	w := &DBWriter{
		config:  config,
		repo:    repo,
		buffer:  make([]*SignalRecord, 0, config.BatchSize),
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
	subscriber, err := nats.NewSubscriber(natsURL, w.handleMessage)
	if err != nil {
		return nil, fmt.Errorf("create subscriber: %w", err)
	}
	w.subscriber = subscriber
	return w, nil
}

// Start 启动监听与定时刷新
func (w *DBWriter) Start() error {
	var err error
	if w.config.QueueGroup == "" {
		err = w.subscriber.Subscribe(TopicSignals)
	} else {
		err = w.subscriber.SubscribeQueue(TopicSignals, w.config.QueueGroup)
	}
	if err != nil {
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.config.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stopCh:
				w.flush() // 最后刷新一次
				return
			case <-ticker.C:
				w.flush()
			case <-w.flushCh:
				w.flush()
			}
		}
	}()

	log.Printf("[SignalDB] 写入器已启动 (批量 %d, 间隔 %v)",
		w.config.BatchSize, w.config.FlushInterval)
	return nil
}

// Stop 停止写入器
func (w *DBWriter) Stop() error {
	w.subscriber.Close()
	close(w.stopCh)
	w.wg.Wait()
	log.Printf("[SignalDB] 写入器已停止 (写入 %d 条, %d 批)",
		w.written.Load(), w.batches.Load())
	return nil
}

// handleMessage 处理单条信号消息
func (w *DBWriter) handleMessage(subject string, data []byte) error {
	s, err := nats.UnmarshalJSON[Signal](data)
	if err != nil {
		w.errors.Add(1)
		return fmt.Errorf("unmarshal signal: %w", err)
	}
	w.received.Add(1)

	w.bufferMu.Lock()
	w.buffer = append(w.buffer, RecordFromSignal(s))
	shouldFlush := len(w.buffer) >= w.config.BatchSize
	w.bufferMu.Unlock()

	if shouldFlush {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// flush 批量落库
func (w *DBWriter) flush() {
	w.bufferMu.Lock()
	recs := w.buffer
	w.buffer = make([]*SignalRecord, 0, w.config.BatchSize)
	w.bufferMu.Unlock()

	if len(recs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.repo.BatchInsert(ctx, recs); err != nil {
		w.errors.Add(1)
		log.Printf("[SignalDB] batch insert error: %v", err)
		return
	}
	w.written.Add(int64(len(recs)))
	w.batches.Add(1)
}

// Stats 统计快照
func (w *DBWriter) Stats() DBWriterStats {
	return DBWriterStats{
		Received: w.received.Load(),
		Written:  w.written.Load(),
		Errors:   w.errors.Load(),
		Batches:  w.batches.Load(),
	}
}
