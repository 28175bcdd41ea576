// 文件: pkg/signal/dispatcher.go
// 信号分发器
//
// 策略线程把池化的信号对象推进无锁队列就立刻返回;
// 分发协程批量出队、发布到 NATS、把对象归还池。
// 热路径 (策略) 与慢路径 (网络 IO) 被队列彻底隔开。

package signal

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"mdx.com/pkg/lfqueue"
	"mdx.com/pkg/mempool"
)

// DispatcherConfig 分发器配置
type DispatcherConfig struct {
	QueueCapacity int64         // 信号队列容量，0 = 不限制
	BatchSize     int           // 单轮批量出队上限
	IdleWait      time.Duration // 队列空时的休眠间隔
}

// DefaultDispatcherConfig 默认配置
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueCapacity: 65536,
		BatchSize:     64,
		IdleWait:      time.Millisecond,
	}
}

// DispatcherStats 分发统计
type DispatcherStats struct {
	Emitted   uint64 // 策略侧发出的信号数
	Published uint64 // 成功发布数
	Rejected  uint64 // 队列满被拒数
	Errors    uint64 // 发布失败数
}

// Dispatcher 信号分发器
type Dispatcher struct {
	config DispatcherConfig
	queue  *lfqueue.Queue[mempool.Ref[Signal]]
	pool   *mempool.Allocator[Signal]
	pub    Publisher

	emitted   atomic.Uint64
	published atomic.Uint64
	rejected  atomic.Uint64
	errors    atomic.Uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDispatcher 创建分发器
func NewDispatcher(config DispatcherConfig, pub Publisher) *Dispatcher {
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}
	if config.IdleWait <= 0 {
		config.IdleWait = time.Millisecond
	}
	qcfg := lfqueue.DefaultConfig()
	qcfg.Capacity = config.QueueCapacity
	return &Dispatcher{
		config: config,
		queue:  lfqueue.New[mempool.Ref[Signal]](qcfg),
		pool:   mempool.NewAllocator[Signal](mempool.DefaultConfig()),
		pub:    pub,
		stopCh: make(chan struct{}),
	}
}

// NewSignal 从池中取一个信号对象并填好 ID 与时间戳
// 调用方填完业务字段后必须 Emit 或 Recycle，否则泄漏。
func (d *Dispatcher) NewSignal() mempool.Ref[Signal] {
	ref := d.pool.Allocate(mempool.CatSignal)
	*ref.Value = Signal{
		ID:        GenerateSignalID(),
		CreatedAt: Now(),
	}
	return ref
}

// Emit 提交信号进入分发队列
// 队列满时信号被拒并立即回池，返回 false。
func (d *Dispatcher) Emit(ref mempool.Ref[Signal]) bool {
	if err := d.queue.Enqueue(ref); err != nil {
		d.rejected.Add(1)
		d.pool.Deallocate(mempool.CatSignal, ref)
		return false
	}
	d.emitted.Add(1)
	return true
}

// Recycle 不经发布直接归还信号对象
func (d *Dispatcher) Recycle(ref mempool.Ref[Signal]) {
	d.pool.Deallocate(mempool.CatSignal, ref)
}

// Start 启动分发协程
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.dispatchLoop()
	log.Printf("[Signal] 分发器已启动 (队列容量 %d)", d.config.QueueCapacity)
}

// dispatchLoop 批量出队并发布
func (d *Dispatcher) dispatchLoop() {
	defer d.wg.Done()
	for {
		refs := d.queue.DequeueBulk(d.config.BatchSize)
		if len(refs) == 0 {
			select {
			case <-d.stopCh:
				// 停机前把队列排干
				for {
					rest := d.queue.DequeueBulk(d.config.BatchSize)
					if len(rest) == 0 {
						return
					}
					d.publishBatch(rest)
				}
			case <-time.After(d.config.IdleWait):
			}
			continue
		}
		d.publishBatch(refs)
	}
}

// publishBatch 发布一批信号并回池
func (d *Dispatcher) publishBatch(refs []mempool.Ref[Signal]) {
	for _, ref := range refs {
		if err := d.pub.PublishSignal(ref.Value); err != nil {
			d.errors.Add(1)
			log.Printf("[Signal] 发布失败: id=%d, err=%v", ref.Value.ID, err)
		} else {
			d.published.Add(1)
		}
		d.pool.Deallocate(mempool.CatSignal, ref)
	}
}

// Stop 停止分发器，排干队列后返回; 重复调用幂等
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.wg.Wait()
		log.Printf("[Signal] 分发器已停止 (发布 %d, 拒绝 %d, 失败 %d)",
			d.published.Load(), d.rejected.Load(), d.errors.Load())
	})
}

// Stats 统计快照
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Emitted:   d.emitted.Load(),
		Published: d.published.Load(),
		Rejected:  d.rejected.Load(),
		Errors:    d.errors.Load(),
	}
}

// PoolStats 信号对象池统计
func (d *Dispatcher) PoolStats() mempool.Stats {
	return d.pool.Stats(mempool.CatSignal)
}
