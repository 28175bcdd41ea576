// 文件: pkg/mdata/metrics.go
// 行情处理指标
//
// 热路径计数全原子; 按交易所细分的延迟 EMA 走小锁 (低频读、写竞争极小)。

package mdata

import (
	"sync"
	"sync/atomic"
	"time"
)

// emaAlpha 延迟 EMA 平滑系数
const emaAlpha = 0.1

// exchangeStats 单个交易所的处理统计
type exchangeStats struct {
	messages  uint64
	latencyUs float64   // 单笔处理延迟 EMA (微秒)
	seeded    bool
	since     time.Time // 首笔消息时间，吞吐计算基准
}

// handlerMetrics 内部指标存储
type handlerMetrics struct {
	processed   atomic.Uint64
	dropped     atomic.Uint64
	contentions atomic.Uint64 // 锁等待超阈值次数
	lockWaitNs  atomic.Uint64 // 累计锁等待时间

	mu        sync.Mutex
	exchanges map[string]*exchangeStats
	since     time.Time
}

func newHandlerMetrics() *handlerMetrics {
	return &handlerMetrics{
		exchanges: make(map[string]*exchangeStats),
		since:     time.Now(),
	}
}

// noteProcessed 记录一笔成功处理
func (m *handlerMetrics) noteProcessed(exchange string, elapsed time.Duration) {
	m.processed.Add(1)

	us := float64(elapsed) / float64(time.Microsecond)
	m.mu.Lock()
	es := m.exchanges[exchange]
	if es == nil {
		es = &exchangeStats{since: time.Now()}
		m.exchanges[exchange] = es
	}
	es.messages++
	if !es.seeded {
		es.latencyUs = us
		es.seeded = true
	} else {
		es.latencyUs += emaAlpha * (us - es.latencyUs)
	}
	m.mu.Unlock()
}

// noteLockWait 记录一次锁等待；超过阈值的算作一次争用
func (m *handlerMetrics) noteLockWait(wait time.Duration, threshold time.Duration) {
	m.lockWaitNs.Add(uint64(wait))
	if wait > threshold {
		m.contentions.Add(1)
	}
}

// ExchangeMetrics 单交易所指标快照
type ExchangeMetrics struct {
	Messages       uint64  // 已处理消息数
	AvgLatencyUs   float64 // 处理延迟 EMA (微秒)
	ThroughputMsgS float64 // 自该交易所首笔消息以来的吞吐 (msg/s)
}

// Metrics 全局指标快照
type Metrics struct {
	Processed      uint64  // 成功处理的更新数
	Dropped        uint64  // 被丢弃的更新数 (未订阅等)
	Contentions    uint64  // 锁争用次数 (等待超过阈值)
	LockWaitNs     uint64  // 累计锁等待时间 (纳秒)
	ThroughputMsgS float64 // 自启动/重置以来的平均吞吐 (msg/s)

	Exchanges map[string]ExchangeMetrics
}

// snapshot 导出指标快照
func (m *handlerMetrics) snapshot() Metrics {
	s := Metrics{
		Processed:   m.processed.Load(),
		Dropped:     m.dropped.Load(),
		Contentions: m.contentions.Load(),
		LockWaitNs:  m.lockWaitNs.Load(),
		Exchanges:   make(map[string]ExchangeMetrics),
	}

	m.mu.Lock()
	elapsed := time.Since(m.since).Seconds()
	for name, es := range m.exchanges {
		em := ExchangeMetrics{
			Messages:     es.messages,
			AvgLatencyUs: es.latencyUs,
		}
		if sec := time.Since(es.since).Seconds(); sec > 0 {
			em.ThroughputMsgS = float64(es.messages) / sec
		}
		s.Exchanges[name] = em
	}
	m.mu.Unlock()

	if elapsed > 0 {
		s.ThroughputMsgS = float64(s.Processed) / elapsed
	}
	return s
}

// reset 清零全部指标并重开吞吐计时窗口
func (m *handlerMetrics) reset() {
	m.processed.Store(0)
	m.dropped.Store(0)
	m.contentions.Store(0)
	m.lockWaitNs.Store(0)

	m.mu.Lock()
	m.exchanges = make(map[string]*exchangeStats)
	m.since = time.Now()
	m.mu.Unlock()
}
