// 文件: pkg/mempool/allocator.go
// 回收式内存分配器 (Recycling Allocator)
//
// 特点:
// - 按类别隔离的无锁空闲链表 (Lock-Free Free List)
// - 热路径零分配: 弹出/压入全部基于 CAS
// - 耗尽时降级为直接分配，绝不阻塞、绝不失败
// - 每类别独立统计 (总量/活跃/峰值/字节/失败/延迟)

package mempool

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

// =============================================================================
// 类别定义
// =============================================================================

// Category 对象类别
// 每个类别拥有独立的空闲链表和统计块，互不竞争。
type Category uint8

const (
	CatUpdate   Category = iota // 行情更新对象
	CatSignal                   // 策略信号对象
	CatNode                     // 无锁队列节点
	CatSnapshot                 // 行情快照/报价对象

	// NumCategories 类别总数（固定枚举）
	NumCategories = 4
)

// String 类别名称（用于日志和统计输出）
func (c Category) String() string {
	switch c {
	case CatUpdate:
		return "update"
	case CatSignal:
		return "signal"
	case CatNode:
		return "node"
	case CatSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// =============================================================================
// 配置
// =============================================================================

// Config 分配器配置
type Config struct {
	InitialChunks int // 每类别预分配的 chunk 数
	MaxChunks     int // 每类别 chunk 上限，0 = 不限制
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		InitialChunks: 1,
		MaxChunks:     0,
	}
}

// =============================================================================
// 核心常量与句柄
// =============================================================================

const (
	// chunkShift 每个 chunk 容纳 2^8 = 256 个对象
	// 槽位下标 = chunk 序号 << chunkShift | chunk 内偏移
	chunkShift = 8
	chunkSize  = 1 << chunkShift
	chunkMask  = chunkSize - 1

	// noSlot 空链表哨兵下标
	noSlot = ^uint32(0)
)

// Ref 分配句柄
//
// 【核心设计】为什么返回句柄而不是裸指针？
// 归还时需要知道对象在池中的槽位。Slot < 0 表示该对象来自
// 直接分配（池耗尽时的降级路径），归还时直接交给 GC。
type Ref[T any] struct {
	Value *T
	Slot  int32
}

// Pooled 该句柄是否来自池（而非直接分配）
func (r Ref[T]) Pooled() bool { return r.Slot >= 0 }

// =============================================================================
// 无锁空闲链表
// =============================================================================
//
// 【面试高频】Treiber Stack 的 ABA 问题
//
// 朴素实现: head 是裸指针，pop 时 CAS(head, head.next)。
// 问题: 线程 A 读到 head=X, next=Y；线程 B 弹出 X、Y 又压回 X；
// A 的 CAS 仍然成功，但 Y 已经被别人拿走 → 链表损坏。
//
// 解法: head 打包为 {版本号:32 | 槽位下标:32}，每次成功 CAS 版本号 +1。
// 只要 head 被动过，版本号必然不同，过期的 CAS 一定失败。
// 槽位下标代替指针，对象全部住在 chunk 数组里，天然支持 32 位打包。

func packHead(tag, idx uint32) uint64 { return uint64(tag)<<32 | uint64(idx) }
func headTag(h uint64) uint32         { return uint32(h >> 32) }
func headIdx(h uint64) uint32         { return uint32(h) }

// slotMeta 槽位元数据（链表指针与退休时间戳）
type slotMeta struct {
	next  atomic.Uint32 // 空闲/退休链表的后继槽位
	stamp atomic.Uint64 // 退休时间戳（延迟回收用）
}

// chunk 一段连续的对象存储
// chunk 一旦创建就不再移动，槽位指针因此全程稳定。
type chunk[T any] struct {
	items []T
	meta  []slotMeta
}

// catState 类别控制块
// 按缓存行对齐填充，避免不同类别的线程互相伪共享 (False Sharing)。
type catState struct {
	freeHead atomic.Uint64 // {tag|idx} 空闲链表头
	_        [56]byte

	retireHead atomic.Uint64 // {tag|idx} 退休链表头
	_          [56]byte

	// 统计（全部原子，读写不加锁）
	totalAllocs atomic.Uint64
	active      atomic.Int64
	peak        atomic.Int64
	bytesTotal  atomic.Uint64
	failures    atomic.Uint64
	latMin      atomic.Uint64
	latMax      atomic.Uint64
	latSum      atomic.Uint64
	latCount    atomic.Uint64
	_           [48]byte
}

// =============================================================================
// 分配器本体
// =============================================================================

// Allocator 按类别回收同尺寸对象的池
//
// 并发模型:
// - Allocate/Deallocate/Retire/Reclaim: 任意 goroutine 并发调用，无锁
// - chunk 注册表: Copy-on-Write，读路径只做一次原子加载
// - 扩容: TryLock 抢不到就走直接分配，因此 Allocate 永不阻塞
type Allocator[T any] struct {
	config   Config
	itemSize uint64

	cats [NumCategories]catState

	// chunks Copy-on-Write 注册表
	// 读多写少: 每次查槽位都要读，扩容才写。写时复制整个切片后
	// 原子替换指针，读者永远看到一个完整一致的版本。
	chunks [NumCategories]atomic.Pointer[[]*chunk[T]]
	growMu [NumCategories]sync.Mutex
}

// NewAllocator 创建分配器
func NewAllocator[T any](config Config) *Allocator[T] {
	var zero T
	a := &Allocator[T]{
		config:   config,
		itemSize: uint64(unsafe.Sizeof(zero)),
	}
	for c := 0; c < NumCategories; c++ {
		a.cats[c].freeHead.Store(packHead(0, noSlot))
		a.cats[c].retireHead.Store(packHead(0, noSlot))
		a.cats[c].latMin.Store(^uint64(0))
		empty := make([]*chunk[T], 0, 4)
		a.chunks[c].Store(&empty)
		for i := 0; i < config.InitialChunks; i++ {
			a.growLocked(Category(c))
		}
	}
	return a
}

// slot 按下标定位槽位
func (a *Allocator[T]) slot(cat Category, idx uint32) (*T, *slotMeta) {
	chunks := *a.chunks[cat].Load()
	ck := chunks[idx>>chunkShift]
	off := idx & chunkMask
	return &ck.items[off], &ck.meta[off]
}

// =============================================================================
// 分配与归还
// =============================================================================

// Allocate 从类别池中取出一个对象
//
// 路径优先级:
// 1. 空闲链表弹出（CAS 循环，常态路径）
// 2. 链表耗尽 → 扩容一个 chunk 并取其中一个槽位
// 3. 扩容被占用或已达上限 → 直接堆分配，计入 Failures
//
// 任何路径都不阻塞、不返回 nil。对象内容不做清零，由调用方负责。
func (a *Allocator[T]) Allocate(cat Category) Ref[T] {
	start := time.Now()
	cs := &a.cats[cat]
	for {
		h := cs.freeHead.Load()
		idx := headIdx(h)
		if idx == noSlot {
			if r, ok := a.grow(cat); ok {
				cs.noteAlloc(a.itemSize, start)
				return r
			}
			// 降级: 直接分配，不入池
			cs.failures.Add(1)
			cs.noteAlloc(a.itemSize, start)
			return Ref[T]{Value: new(T), Slot: -1}
		}
		_, meta := a.slot(cat, idx)
		next := meta.next.Load()
		if cs.freeHead.CompareAndSwap(h, packHead(headTag(h)+1, next)) {
			item, _ := a.slot(cat, idx)
			cs.noteAlloc(a.itemSize, start)
			return Ref[T]{Value: item, Slot: int32(idx)}
		}
	}
}

// Deallocate 归还对象
// 不校验、不清零；重复归还同一句柄属于调用方错误，后果未定义。
func (a *Allocator[T]) Deallocate(cat Category, r Ref[T]) {
	cs := &a.cats[cat]
	if r.Slot < 0 {
		// 直接分配的对象交还 GC
		cs.active.Add(-1)
		return
	}
	a.pushFree(cat, uint32(r.Slot))
	cs.active.Add(-1)
}

// AllocateBulk 批量分配
// 返回实际取得的句柄；只有内存压力（MaxChunks 已满且统计直通失败）
// 才可能少于 n —— 当前实现的降级路径永不失败，因此总是返回 n 个。
func (a *Allocator[T]) AllocateBulk(cat Category, n int) []Ref[T] {
	refs := make([]Ref[T], 0, n)
	for i := 0; i < n; i++ {
		refs = append(refs, a.Allocate(cat))
	}
	return refs
}

// DeallocateBulk 批量归还，返回实际归还数量
func (a *Allocator[T]) DeallocateBulk(cat Category, refs []Ref[T]) int {
	for _, r := range refs {
		a.Deallocate(cat, r)
	}
	return len(refs)
}

// pushFree 将槽位压入空闲链表
func (a *Allocator[T]) pushFree(cat Category, idx uint32) {
	cs := &a.cats[cat]
	_, meta := a.slot(cat, idx)
	for {
		h := cs.freeHead.Load()
		meta.next.Store(headIdx(h))
		if cs.freeHead.CompareAndSwap(h, packHead(headTag(h)+1, idx)) {
			return
		}
	}
}

// =============================================================================
// 延迟回收 (Deferred Reclamation)
// =============================================================================
//
// 无锁数据结构不能在 CAS 重试循环里同步复用节点: 其他线程可能仍持有
// 对旧节点的引用。消费方将节点 Retire 到退休链表并附带时间戳，等到
// 自己的静默期推进后再 Reclaim 回空闲链表。

// Retire 延迟归还: 槽位进入退休链表，暂不可复用
// stamp 由调用方提供（通常是调用方的静默期纪元）。
func (a *Allocator[T]) Retire(cat Category, r Ref[T], stamp uint64) {
	cs := &a.cats[cat]
	if r.Slot < 0 {
		// 直接分配的对象没有复用风险，GC 天然保证安全回收
		cs.active.Add(-1)
		return
	}
	idx := uint32(r.Slot)
	_, meta := a.slot(cat, idx)
	meta.stamp.Store(stamp)
	for {
		h := cs.retireHead.Load()
		meta.next.Store(headIdx(h))
		if cs.retireHead.CompareAndSwap(h, packHead(headTag(h)+1, idx)) {
			break
		}
	}
	cs.active.Add(-1)
}

// Reclaim 将时间戳早于 safe 的退休槽位归还空闲链表
// 返回实际回收的数量。遇到第一个尚不安全的槽位即停止（保守策略）。
func (a *Allocator[T]) Reclaim(cat Category, safe uint64) int {
	cs := &a.cats[cat]
	reclaimed := 0
	for {
		h := cs.retireHead.Load()
		idx := headIdx(h)
		if idx == noSlot {
			return reclaimed
		}
		_, meta := a.slot(cat, idx)
		if meta.stamp.Load() >= safe {
			return reclaimed
		}
		next := meta.next.Load()
		if cs.retireHead.CompareAndSwap(h, packHead(headTag(h)+1, next)) {
			a.pushFree(cat, idx)
			reclaimed++
		}
	}
}

// =============================================================================
// 扩容
// =============================================================================

// grow 追加一个 chunk，返回其中一个槽位给调用者
// 用 TryLock 保证永不阻塞: 抢不到锁说明别人正在扩容，
// 调用方直接走降级路径即可。
func (a *Allocator[T]) grow(cat Category) (Ref[T], bool) {
	if !a.growMu[cat].TryLock() {
		return Ref[T]{}, false
	}
	defer a.growMu[cat].Unlock()
	return a.growLockedTake(cat)
}

// growLocked 持锁扩容，槽位全部入空闲链表
func (a *Allocator[T]) growLocked(cat Category) bool {
	old := *a.chunks[cat].Load()
	if a.config.MaxChunks > 0 && len(old) >= a.config.MaxChunks {
		return false
	}
	ck := &chunk[T]{
		items: make([]T, chunkSize),
		meta:  make([]slotMeta, chunkSize),
	}
	next := make([]*chunk[T], len(old)+1)
	copy(next, old)
	next[len(old)] = ck
	base := uint32(len(old)) << chunkShift
	a.chunks[cat].Store(&next)
	for i := 0; i < chunkSize; i++ {
		a.pushFree(cat, base+uint32(i))
	}
	return true
}

// growLockedTake 持锁扩容，保留 0 号槽位给调用者，其余入链表
func (a *Allocator[T]) growLockedTake(cat Category) (Ref[T], bool) {
	old := *a.chunks[cat].Load()
	if a.config.MaxChunks > 0 && len(old) >= a.config.MaxChunks {
		return Ref[T]{}, false
	}
	ck := &chunk[T]{
		items: make([]T, chunkSize),
		meta:  make([]slotMeta, chunkSize),
	}
	next := make([]*chunk[T], len(old)+1)
	copy(next, old)
	next[len(old)] = ck
	base := uint32(len(old)) << chunkShift
	a.chunks[cat].Store(&next)
	for i := 1; i < chunkSize; i++ {
		a.pushFree(cat, base+uint32(i))
	}
	return Ref[T]{Value: &ck.items[0], Slot: int32(base)}, true
}

// Reserve 预留至少 n 个可用槽位（低频管理操作，允许加锁）
func (a *Allocator[T]) Reserve(cat Category, n int) {
	a.growMu[cat].Lock()
	defer a.growMu[cat].Unlock()
	for a.Available(cat) < n {
		if !a.growLocked(cat) {
			return
		}
	}
}

// Available 当前类别的近似可用容量
func (a *Allocator[T]) Available(cat Category) int {
	chunks := *a.chunks[cat].Load()
	capacity := len(chunks) * chunkSize
	active := int(a.cats[cat].active.Load())
	if active > capacity {
		return 0
	}
	return capacity - active
}
