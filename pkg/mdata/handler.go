// 文件: pkg/mdata/handler.go
// 行情数据处理器 (Market Data Handler)
//
// 职责:
// - 维护多个交易对的有界订单簿
// - 接收多路交易所数据源，读多写少的锁策略
// - 订阅回调在锁外触发，杜绝回调内再取锁的死锁
//
// 【核心设计】锁升级 (Lock Escalation)
// 查簿用读锁，改簿用写锁。不能原地把 RLock 升级为 Lock (Go 的
// sync.RWMutex 不支持，硬来必然死锁)，必须先放读锁再抢写锁。
// 放锁到抢到写锁之间世界可能变了，所以拿到写锁后必须重新查找。

package mdata

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrAtCapacity 订阅数已达上限
	ErrAtCapacity = errors.New("mdata: symbol capacity reached")
	// ErrAlreadyStarted 处理器已启动，禁止再做拓扑变更
	ErrAlreadyStarted = errors.New("mdata: handler already started")
	// ErrDuplicateExchange 数据源名称已被注册
	ErrDuplicateExchange = errors.New("mdata: exchange already registered")
	// ErrNotRunning 处理器未在运行
	ErrNotRunning = errors.New("mdata: handler not running")
)

// State 处理器生命周期状态
type State int32

const (
	StateCreated State = iota
	StateStarted       // Start 已被调用，工作协程启动中
	StateRunning
	StateStopping
	StateStopped
)

// String 状态名称
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// HandlerConfig 处理器配置
type HandlerConfig struct {
	MaxSymbols          int           // 可订阅交易对上限
	Depth               int           // 每个订单簿的档位深度
	FeedBuffer          int           // 每路数据源的通道缓冲
	ContentionThreshold time.Duration // 锁等待超过该值计一次争用

	// Release 通道投递的更新处理完后的回收钩子 (可选)
	// 数据源用对象池时由它归还; 为 nil 则交给 GC。
	Release func(*MarketUpdate)
}

// DefaultHandlerConfig 默认配置
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		MaxSymbols:          256,
		Depth:               DefaultDepth,
		FeedBuffer:          1024,
		ContentionThreshold: 100 * time.Microsecond,
	}
}

// bookEntry 单个交易对的订单簿与回调
type bookEntry struct {
	book *OrderBook
	cb   UpdateCallback
}

// MarketDataHandler 行情数据处理器
type MarketDataHandler struct {
	config HandlerConfig
	state  atomic.Int32

	mu    sync.RWMutex
	books map[string]*bookEntry

	feedMu sync.Mutex
	feeds  map[string]chan *MarketUpdate

	metrics *handlerMetrics

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMarketDataHandler 创建处理器
func NewMarketDataHandler(config HandlerConfig) *MarketDataHandler {
	if config.MaxSymbols <= 0 {
		config.MaxSymbols = 256
	}
	if config.FeedBuffer <= 0 {
		config.FeedBuffer = 1024
	}
	if config.ContentionThreshold <= 0 {
		config.ContentionThreshold = 100 * time.Microsecond
	}
	return &MarketDataHandler{
		config:  config,
		books:   make(map[string]*bookEntry),
		feeds:   make(map[string]chan *MarketUpdate),
		metrics: newHandlerMetrics(),
		stopCh:  make(chan struct{}),
	}
}

// State 当前生命周期状态
func (h *MarketDataHandler) State() State {
	return State(h.state.Load())
}

// =============================================================================
// 数据源管理
// =============================================================================

// AddExchange 注册一路交易所数据源，返回投递通道
// 只能在 Start 之前调用；重复注册同名数据源返回 ErrDuplicateExchange。
func (h *MarketDataHandler) AddExchange(name string) (chan<- *MarketUpdate, error) {
	if h.State() != StateCreated {
		return nil, ErrAlreadyStarted
	}
	h.feedMu.Lock()
	defer h.feedMu.Unlock()
	if _, ok := h.feeds[name]; ok {
		return nil, ErrDuplicateExchange
	}
	ch := make(chan *MarketUpdate, h.config.FeedBuffer)
	h.feeds[name] = ch
	log.Printf("[MarketData] 注册数据源: %s (缓冲 %d)", name, h.config.FeedBuffer)
	return ch, nil
}

// =============================================================================
// 订阅管理
// =============================================================================

// Subscribe 订阅一个交易对
// 首次订阅时懒创建订单簿; 同一交易对重复订阅会替换回调。
func (h *MarketDataHandler) Subscribe(symbol string, cb UpdateCallback) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.books[symbol]
	if !ok {
		if len(h.books) >= h.config.MaxSymbols {
			return ErrAtCapacity
		}
		entry = &bookEntry{book: NewOrderBook(symbol, h.config.Depth)}
		h.books[symbol] = entry
	}
	entry.cb = cb
	return nil
}

// Unsubscribe 取消订阅回调
// 订单簿保留，继续接收更新; 只有回调被移除。
func (h *MarketDataHandler) Unsubscribe(symbol string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.books[symbol]; ok {
		entry.cb = nil
	}
}

// =============================================================================
// 核心处理路径
// =============================================================================

// ProcessUpdate 处理一笔行情更新
// 返回 false 表示被丢弃 (交易对未订阅)。可被任意 goroutine 并发调用。
func (h *MarketDataHandler) ProcessUpdate(u *MarketUpdate) bool {
	start := time.Now()

	// 第一阶段: 读锁探测
	h.mu.RLock()
	_, ok := h.books[u.Symbol]
	h.mu.RUnlock()
	if !ok {
		h.metrics.dropped.Add(1)
		return false
	}

	// 第二阶段: 升级为写锁修改
	lockStart := time.Now()
	h.mu.Lock()
	h.metrics.noteLockWait(time.Since(lockStart), h.config.ContentionThreshold)

	// 放读锁到抢到写锁之间簿可能被移除，必须重查
	entry, ok := h.books[u.Symbol]
	if !ok {
		h.mu.Unlock()
		h.metrics.dropped.Add(1)
		return false
	}
	entry.book.Apply(u)
	cb := entry.cb
	h.mu.Unlock()

	// 第三阶段: 锁外触发回调，回调内再查簿也不会死锁
	if cb != nil {
		cb(u)
	}

	h.metrics.noteProcessed(u.Exchange, time.Since(start))
	return true
}

// GetOrderBook 读取订单簿快照
func (h *MarketDataHandler) GetOrderBook(symbol string) (BookSnapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.books[symbol]
	if !ok {
		return BookSnapshot{}, false
	}
	return entry.book.Snapshot(0), true
}

// Symbols 当前已建簿的交易对列表
func (h *MarketDataHandler) Symbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.books))
	for s := range h.books {
		out = append(out, s)
	}
	return out
}

// =============================================================================
// 生命周期
// =============================================================================

// Start 启动全部数据源工作协程
// 运行中重复调用是无害的空操作; 停机后不可重启。
func (h *MarketDataHandler) Start() error {
	if !h.state.CompareAndSwap(int32(StateCreated), int32(StateStarted)) {
		switch h.State() {
		case StateStarted, StateRunning:
			return nil
		default:
			// 停机后不支持重启
			return ErrAlreadyStarted
		}
	}

	h.feedMu.Lock()
	for name, ch := range h.feeds {
		h.wg.Add(1)
		go h.sourceLoop(name, ch)
	}
	n := len(h.feeds)
	h.feedMu.Unlock()

	h.state.Store(int32(StateRunning))
	log.Printf("[MarketData] 处理器已启动: %d 路数据源", n)
	return nil
}

// sourceLoop 单路数据源的消费循环
func (h *MarketDataHandler) sourceLoop(name string, ch <-chan *MarketUpdate) {
	defer h.wg.Done()
	for {
		select {
		case u := <-ch:
			h.ProcessUpdate(u)
			if h.config.Release != nil {
				h.config.Release(u)
			}
		case <-h.stopCh:
			// 停机前清空通道里的积压
			for {
				select {
				case u := <-ch:
					h.ProcessUpdate(u)
					if h.config.Release != nil {
						h.config.Release(u)
					}
				default:
					log.Printf("[MarketData] 数据源 %s 已停止", name)
					return
				}
			}
		}
	}
}

// Stop 停止处理器并等待全部工作协程退出
func (h *MarketDataHandler) Stop() error {
	if !h.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrNotRunning
	}
	close(h.stopCh)
	h.wg.Wait()
	h.state.Store(int32(StateStopped))
	log.Printf("[MarketData] 处理器已停止 (处理 %d 笔, 丢弃 %d 笔)",
		h.metrics.processed.Load(), h.metrics.dropped.Load())
	return nil
}

// GetMetrics 指标快照
func (h *MarketDataHandler) GetMetrics() Metrics {
	return h.metrics.snapshot()
}

// ResetMetrics 重置指标
func (h *MarketDataHandler) ResetMetrics() {
	h.metrics.reset()
}
