// 文件: pkg/mempool/stats.go
// 分配统计
//
// 每个类别独立维护，读取不加锁（全原子），只在显式调用时重置。

package mempool

import (
	"time"
)

// Stats 某一类别的统计快照（非原子，可自由拷贝）
type Stats struct {
	TotalAllocs  uint64 // 累计分配次数
	ActiveAllocs int64  // 当前未归还数量
	PeakAllocs   int64  // 历史峰值
	BytesTotal   uint64 // 累计分配字节数
	Failures     uint64 // 池耗尽降级为直接分配的次数

	// 分配延迟（纳秒）
	MinLatencyNs uint64
	AvgLatencyNs uint64
	MaxLatencyNs uint64
}

// noteAlloc 记录一次分配（计数 + 峰值 + 延迟）
func (cs *catState) noteAlloc(itemSize uint64, start time.Time) {
	cs.totalAllocs.Add(1)
	cs.bytesTotal.Add(itemSize)

	v := cs.active.Add(1)
	for {
		p := cs.peak.Load()
		if v <= p || cs.peak.CompareAndSwap(p, v) {
			break
		}
	}

	d := uint64(time.Since(start))
	cs.latSum.Add(d)
	cs.latCount.Add(1)
	for {
		m := cs.latMin.Load()
		if d >= m || cs.latMin.CompareAndSwap(m, d) {
			break
		}
	}
	for {
		m := cs.latMax.Load()
		if d <= m || cs.latMax.CompareAndSwap(m, d) {
			break
		}
	}
}

// Stats 返回类别统计快照
func (a *Allocator[T]) Stats(cat Category) Stats {
	cs := &a.cats[cat]
	s := Stats{
		TotalAllocs:  cs.totalAllocs.Load(),
		ActiveAllocs: cs.active.Load(),
		PeakAllocs:   cs.peak.Load(),
		BytesTotal:   cs.bytesTotal.Load(),
		Failures:     cs.failures.Load(),
		MaxLatencyNs: cs.latMax.Load(),
	}
	if min := cs.latMin.Load(); min != ^uint64(0) {
		s.MinLatencyNs = min
	}
	if n := cs.latCount.Load(); n > 0 {
		s.AvgLatencyNs = cs.latSum.Load() / n
	}
	return s
}

// ResetStats 显式重置类别统计
func (a *Allocator[T]) ResetStats(cat Category) {
	cs := &a.cats[cat]
	cs.totalAllocs.Store(0)
	cs.peak.Store(cs.active.Load())
	cs.bytesTotal.Store(0)
	cs.failures.Store(0)
	cs.latMin.Store(^uint64(0))
	cs.latMax.Store(0)
	cs.latSum.Store(0)
	cs.latCount.Store(0)
}
