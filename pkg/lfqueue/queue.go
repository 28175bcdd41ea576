// 文件: pkg/lfqueue/queue.go
// Michael-Scott 无锁队列 (Lock-Free MPMC Queue)
//
// 特点:
// - 多生产者多消费者，入队出队全程无锁
// - 节点来自 mempool 回收分配器，稳态下热路径零堆分配
// - 基于静默期 (Quiescence) 的延迟节点回收，规避 use-after-free
// - 可选容量上限，满时快速失败而非阻塞

package lfqueue

import (
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"mdx.com/pkg/mempool"
)

var (
	// ErrFull 队列已达容量上限
	ErrFull = errors.New("lfqueue: queue is full")
	// ErrTimeout 限时操作在截止前未能完成
	ErrTimeout = errors.New("lfqueue: operation timed out")
)

// reclaimInterval 每多少次出队尝试一轮节点回收
const reclaimInterval = 64

// =============================================================================
// 配置
// =============================================================================

// Config 队列配置
type Config struct {
	Capacity   int64          // 容量上限，0 = 不限制
	PoolConfig mempool.Config // 节点池配置
}

// DefaultConfig 默认配置: 无容量上限，节点池按需扩容
func DefaultConfig() Config {
	return Config{
		Capacity:   0,
		PoolConfig: mempool.DefaultConfig(),
	}
}

// =============================================================================
// 节点与队列
// =============================================================================

// node 队列节点
// slot 记录节点在池中的槽位，出队后凭它退休归还。
type node[T any] struct {
	value T
	slot  int32
	next  atomic.Pointer[node[T]]
}

// Queue 无锁 MPMC 队列
//
// 【面试高频】Michael-Scott 算法的三个关键点:
// 1. 哨兵节点 (Sentinel): head 永远指向一个"已消费"的哑节点，
//    避免 head/tail 在空队列时指向同一个有效元素的边界问题。
// 2. 帮忙推进 (Helping): tail 可能落后于真实队尾一个节点，
//    任何发现 tail.next != nil 的线程都先帮它 CAS 前进。
// 3. 一致性快照: 读完 head/tail/next 后重读确认未变，才能继续。
//
// 【核心设计】节点为什么不能出队后立刻复用？
// 其他线程可能仍持有指向旧节点的引用 (ABA / use-after-free)。
// 方案: 每次操作前 active+1 (pin)，退出时 -1；降到 0 时推进
// quiet 纪元。节点退休时盖上当时的 quiet 戳，只有当 quiet 已经
// 越过该戳（即退休时在场的所有操作都已离开），才归还空闲链表。
type Queue[T any] struct {
	head atomic.Pointer[node[T]]
	_    [56]byte
	tail atomic.Pointer[node[T]]
	_    [56]byte

	// 静默期纪元
	active atomic.Int64
	_      [56]byte
	quiet  atomic.Uint64
	_      [56]byte

	size     atomic.Int64
	deqCount atomic.Uint64

	capacity int64
	alloc    *mempool.Allocator[node[T]]
	metrics  queueMetrics
}

// New 创建队列
func New[T any](config Config) *Queue[T] {
	q := &Queue[T]{
		capacity: config.Capacity,
		alloc:    mempool.NewAllocator[node[T]](config.PoolConfig),
	}
	// 哨兵节点: 初始时 head 和 tail 都指向它
	ref := q.alloc.Allocate(mempool.CatNode)
	sentinel := ref.Value
	sentinel.slot = ref.Slot
	sentinel.next.Store(nil)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// pin 标记一次操作进入临界区
func (q *Queue[T]) pin() { q.active.Add(1) }

// unpin 操作离开临界区；最后一个离开的推进静默期纪元
func (q *Queue[T]) unpin() {
	if q.active.Add(-1) == 0 {
		q.quiet.Add(1)
	}
}

// =============================================================================
// 入队
// =============================================================================

// Enqueue 入队一个元素
// 队列已满返回 ErrFull，元素不入队；其余情况总是成功。
func (q *Queue[T]) Enqueue(v T) error {
	start := time.Now()
	if q.capacity > 0 && q.size.Load() >= q.capacity {
		q.metrics.enqFailed.Add(1)
		return ErrFull
	}

	q.pin()
	ref := q.alloc.Allocate(mempool.CatNode)
	n := ref.Value
	n.value = v
	n.slot = ref.Slot
	n.next.Store(nil)

	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue // 快照已过期，重来
		}
		if next != nil {
			// tail 落后了，帮它前进一步
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			// 链接成功即入队成功; tail 推进失败也没关系，后人会帮
			q.tail.CompareAndSwap(tail, n)
			break
		}
	}
	q.unpin()

	sz := q.size.Add(1)
	q.metrics.notePeak(sz)
	q.metrics.enqTotal.Add(1)
	q.metrics.enqLatency.observe(float64(time.Since(start)))
	return nil
}

// EnqueueBulk 批量入队
// 返回实际入队数量；容量不足时在中途停下并返回 ErrFull。
func (q *Queue[T]) EnqueueBulk(vs []T) (int, error) {
	for i, v := range vs {
		if err := q.Enqueue(v); err != nil {
			return i, err
		}
	}
	return len(vs), nil
}

// TryEnqueue 限时入队
// 队列满时退避重试，直到成功或超时 (返回 ErrTimeout)。
func (q *Queue[T]) TryEnqueue(v T, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for spins := 0; ; spins++ {
		if err := q.Enqueue(v); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		backoff(spins)
	}
}

// =============================================================================
// 出队
// =============================================================================

// Dequeue 出队一个元素
// 队列为空时返回 (零值, false)，不阻塞。
func (q *Queue[T]) Dequeue() (T, bool) {
	start := time.Now()
	var zero T

	q.pin()
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if head == tail {
			if next == nil {
				// 空队列
				q.unpin()
				q.metrics.deqEmpty.Add(1)
				return zero, false
			}
			// tail 落后于真实队尾，先帮忙推进
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		// 先读值再推进 head: 推进后 next 可能被后续出队退休
		v := next.value
		if q.head.CompareAndSwap(head, next) {
			// 旧哨兵退休，盖上当前纪元戳
			q.alloc.Retire(mempool.CatNode,
				mempool.Ref[node[T]]{Value: head, Slot: head.slot}, q.quiet.Load())
			q.unpin()

			q.size.Add(-1)
			q.metrics.deqTotal.Add(1)
			q.metrics.deqLatency.observe(float64(time.Since(start)))
			q.maybeReclaim()
			return v, true
		}
	}
}

// DequeueBulk 批量出队，最多 max 个
func (q *Queue[T]) DequeueBulk(max int) []T {
	out := make([]T, 0, max)
	for len(out) < max {
		v, ok := q.Dequeue()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// TryDequeue 限时出队
// 队列空时退避重试，直到取到元素或超时 (返回 ErrTimeout)。
func (q *Queue[T]) TryDequeue(timeout time.Duration) (T, error) {
	deadline := time.Now().Add(timeout)
	for spins := 0; ; spins++ {
		if v, ok := q.Dequeue(); ok {
			return v, nil
		}
		if time.Now().After(deadline) {
			var zero T
			return zero, ErrTimeout
		}
		backoff(spins)
	}
}

// maybeReclaim 周期性地把已安全的退休节点归还节点池
func (q *Queue[T]) maybeReclaim() {
	if q.deqCount.Add(1)%reclaimInterval == 0 {
		q.alloc.Reclaim(mempool.CatNode, q.quiet.Load())
	}
}

// Reclaim 主动回收一轮退休节点，返回归还数量。
// 出队路径会周期性自动回收，通常无需调用；空闲期可手动触发。
func (q *Queue[T]) Reclaim() int {
	return q.alloc.Reclaim(mempool.CatNode, q.quiet.Load())
}

// =============================================================================
// 观测
// =============================================================================

// Size 近似当前长度（并发下只是瞬时快照）
func (q *Queue[T]) Size() int64 { return q.size.Load() }

// Empty 近似判空
func (q *Queue[T]) Empty() bool { return q.size.Load() <= 0 }

// Capacity 容量上限，0 表示不限制
func (q *Queue[T]) Capacity() int64 { return q.capacity }

// AllocStats 节点池统计，可观测节点复用情况
func (q *Queue[T]) AllocStats() mempool.Stats {
	return q.alloc.Stats(mempool.CatNode)
}

// backoff 失败重试的退避: 先让出调度，再短暂休眠
func backoff(spins int) {
	if spins < 16 {
		runtime.Gosched()
		return
	}
	time.Sleep(10 * time.Microsecond)
}
