// 文件: pkg/lfqueue/metrics.go
// 队列运行指标
//
// 全原子、无锁读写。延迟用指数移动平均 (EMA) 而不是全量直方图:
// 热路径只付一次 CAS 的成本。

package lfqueue

import (
	"math"
	"sync/atomic"
)

// emaAlpha EMA 平滑系数: 新样本权重 10%
const emaAlpha = 0.1

// emaGauge 指数移动平均值，float64 按位存进 atomic.Uint64
type emaGauge struct {
	bits atomic.Uint64
}

// observe 记录一个样本；首个样本直接作为初值
func (g *emaGauge) observe(v float64) {
	for {
		old := g.bits.Load()
		var next float64
		if old == 0 {
			next = v
		} else {
			cur := math.Float64frombits(old)
			next = cur + emaAlpha*(v-cur)
		}
		if g.bits.CompareAndSwap(old, math.Float64bits(next)) {
			return
		}
	}
}

// value 当前 EMA 值
func (g *emaGauge) value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// queueMetrics 内部指标存储
type queueMetrics struct {
	enqTotal   atomic.Uint64
	deqTotal   atomic.Uint64
	enqFailed  atomic.Uint64 // 因容量满被拒绝的入队
	deqEmpty   atomic.Uint64 // 空队列的出队尝试
	peakSize   atomic.Int64
	enqLatency emaGauge
	deqLatency emaGauge
}

// notePeak 更新历史峰值长度
func (m *queueMetrics) notePeak(sz int64) {
	for {
		p := m.peakSize.Load()
		if sz <= p || m.peakSize.CompareAndSwap(p, sz) {
			return
		}
	}
}

// Metrics 指标快照（非原子，可自由拷贝）
type Metrics struct {
	Enqueued      uint64  // 累计入队
	Dequeued      uint64  // 累计出队
	EnqueueFailed uint64  // 容量满被拒次数
	DequeueEmpty  uint64  // 空队列出队尝试次数
	PeakSize      int64   // 历史峰值长度
	EnqLatencyNs  float64 // 入队延迟 EMA (纳秒)
	DeqLatencyNs  float64 // 出队延迟 EMA (纳秒)
}

// Metrics 返回指标快照
func (q *Queue[T]) Metrics() Metrics {
	return Metrics{
		Enqueued:      q.metrics.enqTotal.Load(),
		Dequeued:      q.metrics.deqTotal.Load(),
		EnqueueFailed: q.metrics.enqFailed.Load(),
		DequeueEmpty:  q.metrics.deqEmpty.Load(),
		PeakSize:      q.metrics.peakSize.Load(),
		EnqLatencyNs:  q.metrics.enqLatency.value(),
		DeqLatencyNs:  q.metrics.deqLatency.value(),
	}
}

// ResetMetrics 重置指标（峰值回落到当前长度）
func (q *Queue[T]) ResetMetrics() {
	q.metrics.enqTotal.Store(0)
	q.metrics.deqTotal.Store(0)
	q.metrics.enqFailed.Store(0)
	q.metrics.deqEmpty.Store(0)
	q.metrics.peakSize.Store(q.size.Load())
	q.metrics.enqLatency.bits.Store(0)
	q.metrics.deqLatency.bits.Store(0)
}
